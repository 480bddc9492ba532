// Package user defines the per-wallet activity profile.
package user

import "time"

// Profile aggregates a wallet address's marketplace activity. Profiles are
// created implicitly on first activity and never deleted individually.
type Profile struct {
	Address       string    `json:"address"`
	JobsPosted    int       `json:"jobs_posted"`
	JobsCompleted int       `json:"jobs_completed"`
	TotalEarned   float64   `json:"total_earned"`
	TotalSpent    float64   `json:"total_spent"`
	Reputation    int       `json:"reputation"`
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
