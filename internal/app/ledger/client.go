// Package ledger defines the capability contract for the payment ledger and
// a local simulator that stands in for a real network client. The rest of
// the application only sees the Client interface, so a real chain client can
// be substituted without touching the state machine.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Transaction status values reported by the ledger.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

var (
	// ErrNoWallet is returned by ConnectExisting when no wallet has been
	// provisioned before.
	ErrNoWallet = errors.New("no wallet found")

	// ErrUnavailable wraps ledger failures and timeouts. Callers treat it
	// as an external-service error, never as a business failure.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrFaucetExhausted is returned when an address asks the faucet for
	// more than its allowance.
	ErrFaucetExhausted = errors.New("faucet allowance exhausted")
)

// Wallet is the ledger's view of an allocated identity.
type Wallet struct {
	Address  string
	Balance  float64
	Mnemonic string // recovery secret, present only on CreateWallet
}

// Receipt is returned for a submitted transaction.
type Receipt struct {
	TransactionID string
	Status        string
	Timestamp     time.Time
}

// TxStatus reports the confirmation state of a submitted transaction.
type TxStatus struct {
	Status        string
	Confirmations int
}

// Client is the boundary contract with the ledger network. Every call must
// resolve or fail within the caller's context deadline; none may hang.
type Client interface {
	// Initialize establishes readiness. It is idempotent.
	Initialize(ctx context.Context) (bool, error)

	// CreateWallet allocates a fresh identity.
	CreateWallet(ctx context.Context) (Wallet, error)

	// ConnectExisting restores the previously allocated identity, or fails
	// with ErrNoWallet.
	ConnectExisting(ctx context.Context) (Wallet, error)

	// GetBalance returns the current balance of an address.
	GetBalance(ctx context.Context, address string) (float64, error)

	// SendTransaction moves funds from the connected wallet. The ledger is
	// feeless; amount is debited in full.
	SendTransaction(ctx context.Context, to string, amount float64, payload []byte) (Receipt, error)

	// RequestFaucet credits an address from the network faucet.
	RequestFaucet(ctx context.Context, address string) (bool, error)

	// GetTransactionStatus reports the status of a submitted transaction.
	GetTransactionStatus(ctx context.Context, transactionID string) (TxStatus, error)
}
