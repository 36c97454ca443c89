package wallet

import (
	"time"

	"github.com/tolchain/consensuscore/crypto"
	"github.com/tolchain/consensuscore/tx"
	"github.com/tolchain/consensuscore/wsv"
)

// Wallet holds a key pair and provides transaction-building helpers for one
// account.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewTx builds and signs a transaction for account, carrying instructions,
// with a time-to-live of ttl from the given creation time.
func (w *Wallet) NewTx(account string, instructions []wsv.Instruction, createdAt time.Time, ttl time.Duration) tx.Transaction {
	txn := tx.Transaction{
		Payload: tx.Payload{
			Account:      account,
			Instructions: instructions,
			CreatedAtMs:  uint64(createdAt.UnixMilli()),
			TimeToLiveMs: uint64(ttl.Milliseconds()),
		},
	}
	txn.Sign(w.priv)
	return txn
}

// Transfer builds and signs a single-instruction transfer transaction.
func (w *Wallet) Transfer(account, to string, amount uint64, createdAt time.Time, ttl time.Duration) tx.Transaction {
	return w.NewTx(account, []wsv.Instruction{wsv.TransferInstruction{To: to, Amount: amount}}, createdAt, ttl)
}
