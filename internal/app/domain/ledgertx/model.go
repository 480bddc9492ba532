// Package ledgertx defines the append-only transaction log entry.
package ledgertx

import "time"

// Transaction types.
const (
	TypePosting = "posting"
	TypeClaim   = "claim"
	TypePayment = "payment"
	TypeFaucet  = "faucet"
	TypeSend    = "send"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Record is one append-only ledger log entry. After confirmation only the
// Status field may change.
type Record struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Amount        float64   `json:"amount"`
	Status        string    `json:"status"`
	JobID         string    `json:"job_id,omitempty"`
	SchemaVersion int       `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
}
