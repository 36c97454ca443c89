package crypto

import "testing"

type stubEncodable struct{ s string }

func (s stubEncodable) CanonicalBytes() []byte { return []byte(s.s) }

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	v := stubEncodable{"hello"}
	sig := SignOf(priv, v)
	if err := sig.Verify(pub, v); err != nil {
		t.Errorf("valid signature failed to verify: %v", err)
	}
	if err := sig.Verify(pub, stubEncodable{"tampered"}); err == nil {
		t.Error("tampered value should fail verification")
	}
}

func TestHashOfDeterministic(t *testing.T) {
	a := HashOf(stubEncodable{"x"})
	b := HashOf(stubEncodable{"x"})
	if a != b {
		t.Error("HashOf should be deterministic for equal inputs")
	}
	c := HashOf(stubEncodable{"y"})
	if a == c {
		t.Error("HashOf should differ for different inputs")
	}
}

func TestCombinePairOddDuplication(t *testing.T) {
	h1 := HashOf(stubEncodable{"a"})
	h2 := HashOf(stubEncodable{"b"})
	left := CombinePair(h1, h2)
	right := CombinePair(h2, h1)
	if left == right {
		t.Error("CombinePair should not be order-symmetric")
	}
	self := CombinePair(h1, h1)
	if self != CombinePair(h1, h1) {
		t.Error("CombinePair should be deterministic")
	}
}

func TestHashJSONRoundTrip(t *testing.T) {
	h := HashOf(stubEncodable{"roundtrip"})
	data, err := h.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var out Hash[stubEncodable]
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if out != h {
		t.Error("hash did not round-trip through JSON")
	}
}

func TestKeyExchangeDerivesSharedSecret(t *testing.T) {
	aPriv, aPub, err := GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	bPriv, bPub, err := GenerateEphemeralKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	aSecret, err := DeriveShared(aPriv, bPub)
	if err != nil {
		t.Fatal(err)
	}
	bSecret, err := DeriveShared(bPriv, aPub)
	if err != nil {
		t.Fatal(err)
	}
	if string(aSecret) != string(bSecret) {
		t.Error("both sides should derive the same shared secret")
	}
}

func TestAEADSealOpenRoundTrip(t *testing.T) {
	aPriv, aPub, _ := GenerateEphemeralKeyPair()
	bPriv, bPub, _ := GenerateEphemeralKeyPair()
	secretA, _ := DeriveShared(aPriv, bPub)
	secretB, _ := DeriveShared(bPriv, aPub)

	encA, err := NewEncryptor(secretA)
	if err != nil {
		t.Fatal(err)
	}
	encB, err := NewEncryptor(secretB)
	if err != nil {
		t.Fatal(err)
	}

	plaintext := []byte("handshake complete")
	sealed, err := encA.Seal(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	opened, err := encB.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if string(opened) != string(plaintext) {
		t.Errorf("Open returned %q, want %q", opened, plaintext)
	}
}
