// Package stats defines the single marketplace-wide aggregate record.
package stats

import "time"

// Aggregate is the one stats record maintained alongside job transitions.
// CompletedToday is reset by the daily rollover task.
type Aggregate struct {
	TotalJobs        int       `json:"total_jobs"`
	CompletedToday   int       `json:"completed_today"`
	ActiveCollectors int       `json:"active_collectors"`
	TotalRewardPaid  float64   `json:"total_reward_paid"`
	TotalWeightKg    float64   `json:"total_weight_kg"`
	SchemaVersion    int       `json:"schema_version"`
	UpdatedAt        time.Time `json:"updated_at"`
}
