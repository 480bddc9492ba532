package pricing

import (
	"math"
	"testing"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
)

func TestComputeRewardBreakdown(t *testing.T) {
	q, err := ComputeReward(DefaultRates(), job.MaterialCardboard, 20)
	if err != nil {
		t.Fatalf("ComputeReward failed: %v", err)
	}
	if q.MaterialValue != 9.00 {
		t.Fatalf("material value = %v, want 9.00", q.MaterialValue)
	}
	if q.ConvenienceFee != 3.60 {
		t.Fatalf("convenience fee = %v, want 3.60", q.ConvenienceFee)
	}
	if q.PlatformFee != 0.63 {
		t.Fatalf("platform fee = %v, want 0.63", q.PlatformFee)
	}
	if q.Reward != 13.23 {
		t.Fatalf("reward = %v, want 13.23", q.Reward)
	}
	if q.CollectorNet != 12.57 {
		t.Fatalf("collector net = %v, want 12.57", q.CollectorNet)
	}
}

func TestComputeRewardDeterministic(t *testing.T) {
	first, err := ComputeReward(DefaultRates(), job.MaterialPlastic, 7.5)
	if err != nil {
		t.Fatalf("ComputeReward failed: %v", err)
	}
	for i := 0; i < 100; i++ {
		q, err := ComputeReward(DefaultRates(), job.MaterialPlastic, 7.5)
		if err != nil {
			t.Fatalf("ComputeReward failed on run %d: %v", i, err)
		}
		if q != first {
			t.Fatalf("run %d produced %+v, first run produced %+v", i, q, first)
		}
	}
}

func TestComputeRewardClampsToMinimum(t *testing.T) {
	// 5kg of cardboard prices at 3.31, below the posting floor.
	q, err := ComputeReward(DefaultRates(), job.MaterialCardboard, 5)
	if err != nil {
		t.Fatalf("ComputeReward failed: %v", err)
	}
	raw := Round2(q.MaterialValue + q.ConvenienceFee + q.PlatformFee)
	if raw != 3.31 {
		t.Fatalf("raw price = %v, want 3.31", raw)
	}
	if q.Reward != MinimumReward {
		t.Fatalf("reward = %v, want clamp to %v", q.Reward, MinimumReward)
	}
	if q.CollectorNet != 4.75 {
		t.Fatalf("collector net = %v, want 4.75", q.CollectorNet)
	}
}

func TestComputeRewardRejectsBadInput(t *testing.T) {
	if _, err := ComputeReward(DefaultRates(), job.MaterialGlass, 0); err == nil {
		t.Fatal("expected error for zero weight")
	}
	if _, err := ComputeReward(DefaultRates(), job.MaterialGlass, -3); err == nil {
		t.Fatal("expected error for negative weight")
	}
	if _, err := ComputeReward(DefaultRates(), job.Material("unobtainium"), 5); err == nil {
		t.Fatal("expected error for unknown material")
	}
}

func TestBelowVerifiedThreshold(t *testing.T) {
	cases := []struct {
		name       string
		original   float64
		recomputed float64
		want       bool
	}{
		{"well below", 10, 7.9, true},
		{"exactly eighty percent", 10, 8.0, false},
		{"above threshold", 10, 9.5, false},
		{"higher than original", 10, 12, false},
		{"zero original", 0, 5, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BelowVerifiedThreshold(tc.original, tc.recomputed); got != tc.want {
				t.Fatalf("BelowVerifiedThreshold(%v, %v) = %v, want %v", tc.original, tc.recomputed, got, tc.want)
			}
		})
	}
}

func TestCurrencyConversionRoundTrip(t *testing.T) {
	for _, amount := range []float64{0, 1, 3.31, 42.42, 1000} {
		back := FiatToToken(TokenToFiat(amount))
		if math.Abs(back-amount) > 0.005 {
			t.Fatalf("round trip of %v produced %v", amount, back)
		}
	}
}

func TestDefaultRatesCoverEveryMaterial(t *testing.T) {
	rates := DefaultRates()
	for _, m := range []job.Material{
		job.MaterialCardboard, job.MaterialPlastic, job.MaterialGlass,
		job.MaterialMetal, job.MaterialPaper, job.MaterialElectronics, job.MaterialOther,
	} {
		band, ok := rates[m]
		if !ok {
			t.Fatalf("no rate band for %s", m)
		}
		if band.Min <= 0 || band.Avg < band.Min || band.Max < band.Avg {
			t.Fatalf("malformed band for %s: %+v", m, band)
		}
	}
}
