package wsv

import (
	"encoding/json"
	"testing"
)

func TestMemoryWSVCloneIsIndependent(t *testing.T) {
	base := NewMemoryWSV()
	base.SetAccount(Account{Address: "alice", Balance: 100})

	clone := base.Clone().(*MemoryWSV)
	clone.SetAccount(Account{Address: "alice", Balance: 0})

	acc, ok := base.Account("alice")
	if !ok || acc.Balance != 100 {
		t.Errorf("mutating the clone should not affect the original, got balance %d", acc.Balance)
	}
}

func TestMemoryWSVMarkCommitted(t *testing.T) {
	w := NewMemoryWSV()
	if w.ContainsTx("deadbeef") {
		t.Fatal("fresh state should not contain any tx")
	}
	w.MarkCommitted("deadbeef")
	if !w.ContainsTx("deadbeef") {
		t.Error("MarkCommitted should make ContainsTx report true")
	}
}

func TestTransferInstructionExecute(t *testing.T) {
	w := NewMemoryWSV()
	w.SetAccount(Account{Address: "alice", Balance: 50})

	instr := TransferInstruction{To: "bob", Amount: 30}
	if err := instr.Execute("alice", w); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	alice, _ := w.Account("alice")
	bob, _ := w.Account("bob")
	if alice.Balance != 20 {
		t.Errorf("alice.Balance = %d, want 20", alice.Balance)
	}
	if bob.Balance != 30 {
		t.Errorf("bob.Balance = %d, want 30", bob.Balance)
	}
}

func TestTransferInstructionInsufficientBalance(t *testing.T) {
	w := NewMemoryWSV()
	w.SetAccount(Account{Address: "alice", Balance: 5})

	instr := TransferInstruction{To: "bob", Amount: 30}
	if err := instr.Execute("alice", w); err == nil {
		t.Error("expected insufficient-balance error")
	}
}

func TestInstructionRegistryRoundTrip(t *testing.T) {
	instr := TransferInstruction{To: "bob", Amount: 42}
	data, err := json.Marshal(instr)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeInstruction(instr.Tag(), data)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	got, ok := decoded.(TransferInstruction)
	if !ok {
		t.Fatalf("decoded instruction has type %T, want TransferInstruction", decoded)
	}
	if got != instr {
		t.Errorf("decoded instruction = %+v, want %+v", got, instr)
	}
}
