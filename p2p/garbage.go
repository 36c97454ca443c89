package p2p

import (
	"crypto/rand"
	"io"
)

// maxHandshakeLength bounds any single pre-hello field (the garbage length
// byte is unsigned, so this is also its natural ceiling).
const maxHandshakeLength = 255

// minGarbageLength and maxGarbageLength bound the random padding each side
// sends before its hello, matching the original Garbage::generate: a
// single length byte followed by that many random bytes, discarded by the
// reader without being interpreted.
const (
	minGarbageLength = 64
	maxGarbageLength = 254
)

func generateGarbage() ([]byte, error) {
	lenByte := make([]byte, 1)
	if _, err := rand.Read(lenByte); err != nil {
		return nil, ioErrorf("generating garbage length: %w", err)
	}
	n := minGarbageLength + int(lenByte[0])%(maxGarbageLength-minGarbageLength+1)
	buf := make([]byte, 1+n)
	buf[0] = byte(n)
	if _, err := rand.Read(buf[1:]); err != nil {
		return nil, ioErrorf("generating garbage payload: %w", err)
	}
	return buf, nil
}

func writeGarbage(w io.Writer) error {
	g, err := generateGarbage()
	if err != nil {
		return err
	}
	if _, err := w.Write(g); err != nil {
		return ioErrorf("writing garbage: %w", err)
	}
	return nil
}

// readGarbage reads and discards one length-prefixed garbage block. The
// length byte's own domain is [0,255], so the guard must be >= (not >) to
// ever reject anything — a peer sending the maximal byte value 255 is
// exactly the garbage-length guard failure the handshake is meant to catch.
func readGarbage(r io.Reader) error {
	lenByte := make([]byte, 1)
	if _, err := io.ReadFull(r, lenByte); err != nil {
		return ioErrorf("reading garbage length: %w", err)
	}
	n := int(lenByte[0])
	if n >= maxHandshakeLength {
		return handshakeErrorf("garbage length %d exceeds handshake limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return ioErrorf("reading garbage payload: %w", err)
	}
	return nil
}
