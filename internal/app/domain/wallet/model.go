// Package wallet defines the transient per-session wallet state.
package wallet

import "time"

// Connection modes accepted by the wallet service.
const (
	ModeExisting = "existing"
	ModeNew      = "new"
)

// Session is the current user's wallet connection state. One session exists
// per running client; it is reconstructed from the persisted store on load
// and cleared on disconnect.
type Session struct {
	Connected     bool      `json:"connected"`
	Address       string    `json:"address"`
	Balance       float64   `json:"balance"`
	Network       string    `json:"network"`
	SchemaVersion int       `json:"schema_version"`
	ConnectedAt   time.Time `json:"connected_at,omitempty"`
}
