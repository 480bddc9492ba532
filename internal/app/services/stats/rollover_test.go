package stats

import (
	"context"
	"testing"

	domain "github.com/ReLoop-Network/market_layer/internal/app/domain/stats"
	"github.com/ReLoop-Network/market_layer/internal/app/storage/memory"
)

func TestResetClearsOnlyDailyCounter(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	if _, err := store.PutStats(ctx, domain.Aggregate{
		TotalJobs:       10,
		CompletedToday:  4,
		TotalRewardPaid: 99.5,
		TotalWeightKg:   120,
	}); err != nil {
		t.Fatalf("PutStats failed: %v", err)
	}

	agg, err := Reset(ctx, store)
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if agg.CompletedToday != 0 {
		t.Fatalf("completed today = %d, want 0", agg.CompletedToday)
	}
	if agg.TotalJobs != 10 || agg.TotalRewardPaid != 99.5 || agg.TotalWeightKg != 120 {
		t.Fatalf("lifetime counters mutated: %+v", agg)
	}
}

func TestRolloverStartStop(t *testing.T) {
	ctx := context.Background()
	r := NewRollover(memory.New(), "@midnight", nil)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// Stop without Start is a no-op.
	if err := NewRollover(memory.New(), "", nil).Stop(ctx); err != nil {
		t.Fatalf("Stop of unstarted rollover failed: %v", err)
	}
}

func TestRolloverRejectsBadSchedule(t *testing.T) {
	r := NewRollover(memory.New(), "not a schedule", nil)
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error for malformed schedule")
	}
}
