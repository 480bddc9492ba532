package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
	"github.com/ReLoop-Network/market_layer/internal/app/ledger"
	"github.com/ReLoop-Network/market_layer/internal/app/storage/memory"
	"github.com/ReLoop-Network/market_layer/pkg/testutil"
)

func waitForStatus(t *testing.T, store *memory.Store, txID, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, err := store.GetTransaction(context.Background(), txID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if rec.Status == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("transaction %s stuck at %s, want %s", txID, rec.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMonitorConfirmsTransaction(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockLedgerClient()
	store := memory.New()
	store.AppendTransaction(ctx, ledgertx.Record{ID: "0xaa", Type: ledgertx.TypeSend, Status: ledgertx.StatusPending})
	client.SetStatus("0xaa", ledger.StatusConfirmed)

	m := NewMonitor(client, store, nil).WithTiming(5*time.Millisecond, time.Second)
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop(ctx)

	// Start resumes pending sends without an explicit Watch.
	waitForStatus(t, store, "0xaa", ledgertx.StatusConfirmed)
}

func TestMonitorMarksFailure(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockLedgerClient()
	store := memory.New()
	store.AppendTransaction(ctx, ledgertx.Record{ID: "0xbb", Type: ledgertx.TypeSend, Status: ledgertx.StatusPending})
	client.SetStatus("0xbb", ledger.StatusFailed)

	m := NewMonitor(client, store, nil).WithTiming(5*time.Millisecond, time.Second)
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop(ctx)

	waitForStatus(t, store, "0xbb", ledgertx.StatusFailed)
}

func TestMonitorCeilingLeavesTransactionPending(t *testing.T) {
	ctx := context.Background()
	client := testutil.NewMockLedgerClient()
	store := memory.New()
	store.AppendTransaction(ctx, ledgertx.Record{ID: "0xcc", Type: ledgertx.TypeSend, Status: ledgertx.StatusPending})
	client.SetStatus("0xcc", ledger.StatusPending) // never resolves

	m := NewMonitor(client, store, nil).WithTiming(5*time.Millisecond, 30*time.Millisecond)
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	rec, err := store.GetTransaction(ctx, "0xcc")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	// The monitor gives up but never invents a failure.
	if rec.Status != ledgertx.StatusPending {
		t.Fatalf("status = %s, want pending after ceiling", rec.Status)
	}
}

func TestWatchAfterStopIsNoop(t *testing.T) {
	client := testutil.NewMockLedgerClient()
	store := memory.New()
	m := NewMonitor(client, store, nil)
	// Never started: Watch must not panic or leak.
	m.Watch("0xdd")
}
