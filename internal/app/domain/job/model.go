// Package job defines the recycling job entity and its lifecycle state
// machine. Services mutate jobs exclusively through the transitions allowed
// by CanTransition.
package job

import "time"

// Status enumerates the job lifecycle states.
type Status string

const (
	StatusPosted         Status = "posted"
	StatusClaimed        Status = "claimed"
	StatusCompleted      Status = "completed"
	StatusPaymentPending Status = "payment_pending"
	StatusPaid           Status = "paid"
	StatusDisputed       Status = "disputed"
)

// Valid reports whether s is one of the defined lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPosted, StatusClaimed, StatusCompleted, StatusPaymentPending, StatusPaid, StatusDisputed:
		return true
	}
	return false
}

// Material enumerates the recyclable material categories.
type Material string

const (
	MaterialCardboard   Material = "cardboard"
	MaterialPlastic     Material = "plastic"
	MaterialGlass       Material = "glass"
	MaterialMetal       Material = "metal"
	MaterialPaper       Material = "paper"
	MaterialElectronics Material = "electronics"
	MaterialOther       Material = "other"
)

// Valid reports whether m is a known material category.
func (m Material) Valid() bool {
	switch m {
	case MaterialCardboard, MaterialPlastic, MaterialGlass, MaterialMetal, MaterialPaper, MaterialElectronics, MaterialOther:
		return true
	}
	return false
}

// Contact is revealed to the collector only after a job has been claimed.
type Contact struct {
	FullAddress string `json:"full_address,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Dispute records a disagreement raised by the collector over a claimed or
// completed job.
type Dispute struct {
	Reason         string    `json:"reason"`
	ProposedAmount float64   `json:"proposed_amount"`
	RaisedBy       string    `json:"raised_by"`
	RaisedAt       time.Time `json:"raised_at"`
}

// Job is a recycling pickup task posted by a recycler and fulfillable by a
// collector. Reward and LockedAmount are denominated in token units.
type Job struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Material       Material  `json:"material"`
	WeightKg       float64   `json:"weight_kg"`
	ActualWeightKg float64   `json:"actual_weight_kg,omitempty"`
	Location       string    `json:"location"`
	Contact        *Contact  `json:"contact,omitempty"`
	PhotoURI       string    `json:"photo_uri"`
	Reward         float64   `json:"reward"`
	Status         Status    `json:"status"`
	Poster         string    `json:"poster"`
	Collector      string    `json:"collector,omitempty"`
	LockedAmount   float64   `json:"locked_amount,omitempty"`
	CompletionNote string    `json:"completion_note,omitempty"`
	Dispute        *Dispute  `json:"dispute,omitempty"`
	SchemaVersion  int       `json:"schema_version"`
	CreatedAt      time.Time `json:"created_at"`
	ClaimedAt      time.Time `json:"claimed_at,omitempty"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
	PaidAt         time.Time `json:"paid_at,omitempty"`
}

// transitions is the directed graph of allowed status moves.
var transitions = map[Status][]Status{
	StatusPosted:         {StatusClaimed},
	StatusClaimed:        {StatusCompleted, StatusDisputed},
	StatusCompleted:      {StatusPaymentPending, StatusDisputed},
	StatusPaymentPending: {StatusPaid},
}

// CanTransition reports whether a job may move from one status to another.
// Terminal states (paid, disputed) have no outgoing edges.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
