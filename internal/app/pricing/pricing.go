// Package pricing holds the pure reward and currency arithmetic. Nothing in
// this package carries state; rate bands are loaded once and passed in.
package pricing

import (
	"fmt"
	"math"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
)

const (
	// ConvenienceFeeRate is charged on top of the raw material value to make
	// small pickups worth a collector's trip.
	ConvenienceFeeRate = 0.40

	// PlatformFeeRate is taken on the material value plus convenience fee.
	// The poster bears it entirely; the collector's net receipt is
	// reward × (1 − PlatformFeeRate).
	PlatformFeeRate = 0.05

	// MinimumReward is the posting floor in token units.
	MinimumReward = 5.0

	// FiatPerToken is the fixed demo peg between the token and the fiat
	// display unit. The underlying ledger is feeless, so no network fee
	// enters any calculation.
	FiatPerToken = 1.0
)

// RateBand is the per-kilogram token rate range for one material category.
type RateBand struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
	Avg float64 `yaml:"avg" json:"avg"`
}

// DefaultRates are the built-in per-kg rate bands, used when no rates file
// is configured.
func DefaultRates() map[job.Material]RateBand {
	return map[job.Material]RateBand{
		job.MaterialCardboard:   {Min: 0.30, Max: 0.60, Avg: 0.45},
		job.MaterialPlastic:     {Min: 0.80, Max: 1.60, Avg: 1.20},
		job.MaterialGlass:       {Min: 0.10, Max: 0.30, Avg: 0.20},
		job.MaterialMetal:       {Min: 1.50, Max: 4.50, Avg: 3.00},
		job.MaterialPaper:       {Min: 0.20, Max: 0.50, Avg: 0.35},
		job.MaterialElectronics: {Min: 3.00, Max: 9.00, Avg: 6.00},
		job.MaterialOther:       {Min: 0.20, Max: 1.00, Avg: 0.60},
	}
}

// Quote is the itemised outcome of a reward calculation.
type Quote struct {
	MaterialValue  float64 `json:"material_value"`
	ConvenienceFee float64 `json:"convenience_fee"`
	PlatformFee    float64 `json:"platform_fee"`
	Reward         float64 `json:"reward"`
	CollectorNet   float64 `json:"collector_net"`
}

// ComputeReward prices a job from its material category and weight using the
// given rate bands. The reward is clamped up to MinimumReward.
func ComputeReward(rates map[job.Material]RateBand, material job.Material, weightKg float64) (Quote, error) {
	if weightKg <= 0 {
		return Quote{}, fmt.Errorf("weight must be positive, got %v", weightKg)
	}
	band, ok := rates[material]
	if !ok {
		return Quote{}, fmt.Errorf("no rate band for material %q", material)
	}

	materialValue := weightKg * band.Avg
	convenienceFee := materialValue * ConvenienceFeeRate
	platformFee := (materialValue + convenienceFee) * PlatformFeeRate

	reward := Round2(materialValue + convenienceFee + platformFee)
	if reward < MinimumReward {
		reward = MinimumReward
	}

	return Quote{
		MaterialValue:  Round2(materialValue),
		ConvenienceFee: Round2(convenienceFee),
		PlatformFee:    Round2(platformFee),
		Reward:         reward,
		CollectorNet:   CollectorNet(reward),
	}, nil
}

// CollectorNet is the amount a collector actually receives for a reward.
func CollectorNet(reward float64) float64 {
	return Round2(reward * (1 - PlatformFeeRate))
}

// BelowVerifiedThreshold reports whether a reward recomputed from an actual
// weight undercuts the original by more than 20%. Such completions require a
// dispute-eligible explanation before payment.
func BelowVerifiedThreshold(original, recomputed float64) bool {
	if original <= 0 {
		return false
	}
	return recomputed < original*0.80
}

// TokenToFiat converts a token amount to the fiat display unit.
func TokenToFiat(tokens float64) float64 {
	return Round2(tokens * FiatPerToken)
}

// FiatToToken converts a fiat display amount to token units.
func FiatToToken(fiat float64) float64 {
	return Round2(fiat / FiatPerToken)
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
