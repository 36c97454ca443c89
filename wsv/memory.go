package wsv

import (
	"encoding/json"
	"fmt"

	"github.com/tolchain/consensuscore/crypto"
)

// Account mirrors the teacher's core.Account: a balance and a
// replay-protection nonce, keyed by the owner's hex-encoded public key.
type Account struct {
	Address string
	Balance uint64
	Nonce   uint64
}

// AccountStore is the narrower interface TransferInstruction actually
// needs: any WorldStateView implementation that keeps Account records this
// way can execute it, not just MemoryWSV — storage.StateDB (a durable,
// LevelDB-backed WorldStateView) implements it too.
type AccountStore interface {
	Account(address string) (Account, bool)
	SetAccount(acc Account)
}

// MemoryWSV is a minimal in-memory WorldStateView, adapted from the
// teacher's storage.StateDB write-buffer idea but flattened to a single
// map since clones are full copies rather than dirty overlays — there is
// no underlying durable DB to overlay onto here, only the in-process
// reference state tests run against.
type MemoryWSV struct {
	accounts     map[string]Account
	committedTxs map[string]struct{}
}

// NewMemoryWSV returns an empty MemoryWSV.
func NewMemoryWSV() *MemoryWSV {
	return &MemoryWSV{
		accounts:     make(map[string]Account),
		committedTxs: make(map[string]struct{}),
	}
}

// Clone returns a deep copy so the caller can execute speculatively and
// discard the copy on failure.
func (m *MemoryWSV) Clone() WorldStateView {
	out := &MemoryWSV{
		accounts:     make(map[string]Account, len(m.accounts)),
		committedTxs: make(map[string]struct{}, len(m.committedTxs)),
	}
	for k, v := range m.accounts {
		out.accounts[k] = v
	}
	for k := range m.committedTxs {
		out.committedTxs[k] = struct{}{}
	}
	return out
}

// ContainsTx reports whether hashHex has been recorded via MarkCommitted.
func (m *MemoryWSV) ContainsTx(hashHex string) bool {
	_, ok := m.committedTxs[hashHex]
	return ok
}

// MarkCommitted records a transaction hash as part of the chain. Called by
// the block-commit path, not by instruction execution.
func (m *MemoryWSV) MarkCommitted(hashHex string) {
	m.committedTxs[hashHex] = struct{}{}
}

// Account returns the account at address, or the zero Account if absent.
func (m *MemoryWSV) Account(address string) (Account, bool) {
	acc, ok := m.accounts[address]
	return acc, ok
}

// SetAccount stores acc.
func (m *MemoryWSV) SetAccount(acc Account) {
	m.accounts[acc.Address] = acc
}

// TransferInstruction moves Amount tokens from the signing account to To.
// Adapted from the teacher's vm/executor.go applyTx balance/nonce handling
// as the one concrete Instruction this module ships, since value transfer
// is the instruction spec.md's transaction-lifecycle walkthrough (§4.4)
// implicitly exercises.
type TransferInstruction struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func init() {
	RegisterInstruction(transferTag, func(data json.RawMessage) (Instruction, error) {
		var t TransferInstruction
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, err
		}
		return t, nil
	})
}

const transferTag = "transfer"

// Tag identifies TransferInstruction in wire-encoded instruction lists.
func (t TransferInstruction) Tag() string { return transferTag }

// CanonicalBytes encodes the instruction deterministically: the tag so
// future instruction kinds can share the same domain without collision,
// then the recipient and amount.
func (t TransferInstruction) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.String(transferTag)
	e.String(t.To)
	e.Uint64(t.Amount)
	return e.Out()
}

// Execute debits account and credits To, failing on insufficient balance.
// Works against any WorldStateView that also implements AccountStore.
func (t TransferInstruction) Execute(account string, w WorldStateView) error {
	store, ok := w.(AccountStore)
	if !ok {
		return fmt.Errorf("wsv: TransferInstruction requires an AccountStore, got %T", w)
	}
	from, ok := store.Account(account)
	if !ok {
		return fmt.Errorf("wsv: unknown account %q", account)
	}
	if from.Balance < t.Amount {
		return fmt.Errorf("wsv: insufficient balance: have %d need %d", from.Balance, t.Amount)
	}
	to, _ := store.Account(t.To)
	to.Address = t.To
	from.Balance -= t.Amount
	to.Balance += t.Amount
	store.SetAccount(from)
	store.SetAccount(to)
	return nil
}

// MintInstruction credits Amount to To out of nothing, creating the account
// if it does not yet exist. It is the instruction the genesis transaction
// uses to allocate initial balances (the way Iroha's genesis block carries
// real Mint instructions rather than side-loading account state outside the
// transaction lifecycle) rather than a general-purpose instruction every
// account is expected to be able to sign — a deployment's permission
// validator is what would restrict it to privileged callers outside
// genesis, same as Iroha's CanMintUserAssets permission token.
type MintInstruction struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

func init() {
	RegisterInstruction(mintTag, func(data json.RawMessage) (Instruction, error) {
		var m MintInstruction
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	})
}

const mintTag = "mint"

// Tag identifies MintInstruction in wire-encoded instruction lists.
func (m MintInstruction) Tag() string { return mintTag }

// CanonicalBytes encodes the instruction deterministically.
func (m MintInstruction) CanonicalBytes() []byte {
	e := crypto.NewEncoder()
	e.String(mintTag)
	e.String(m.To)
	e.Uint64(m.Amount)
	return e.Out()
}

// Execute credits To with Amount, regardless of the signing account's own
// balance.
func (m MintInstruction) Execute(account string, w WorldStateView) error {
	store, ok := w.(AccountStore)
	if !ok {
		return fmt.Errorf("wsv: MintInstruction requires an AccountStore, got %T", w)
	}
	to, _ := store.Account(m.To)
	to.Address = m.To
	to.Balance += m.Amount
	store.SetAccount(to)
	return nil
}
