// Package identity defines decentralized-identifier records, credentials and
// the reputation event model.
package identity

import "time"

// Reputation bounds and per-event deltas.
const (
	MinReputation = 0
	MaxReputation = 1000

	InitialReputation = 100
)

// Event enumerates the reputation-affecting activities.
type Event string

const (
	EventCompleted          Event = "completed"
	EventDisputed           Event = "disputed"
	EventCredentialVerified Event = "credentialVerified"
	EventLateCompletion     Event = "lateCompletion"
)

// deltas are fixed per event kind.
var deltas = map[Event]int{
	EventCompleted:          +10,
	EventDisputed:           -20,
	EventCredentialVerified: +5,
	EventLateCompletion:     -5,
}

// Delta returns the reputation delta for an event, or false for an unknown
// event kind.
func Delta(e Event) (int, bool) {
	d, ok := deltas[e]
	return d, ok
}

// Clamp bounds a reputation score to [MinReputation, MaxReputation].
func Clamp(score int) int {
	if score < MinReputation {
		return MinReputation
	}
	if score > MaxReputation {
		return MaxReputation
	}
	return score
}

// Credential attests a completed recycling activity for a subject identity.
type Credential struct {
	ID       string    `json:"id"`
	Issuer   string    `json:"issuer"`
	Subject  string    `json:"subject"`
	Activity string    `json:"activity"`
	IssuedAt time.Time `json:"issued_at"`
}

// Record is one identity entry per wallet address.
type Record struct {
	Address       string       `json:"address"`
	DID           string       `json:"did"`
	Reputation    int          `json:"reputation"`
	Credentials   []Credential `json:"credentials,omitempty"`
	SchemaVersion int          `json:"schema_version"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
