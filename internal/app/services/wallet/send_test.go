package wallet

import (
	"context"
	"errors"
	"testing"

	domain "github.com/ReLoop-Network/market_layer/internal/app/domain/wallet"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
)

func TestSendRequiresConnection(t *testing.T) {
	svc, _, store := newService(t)
	_, err := svc.Send(context.Background(), store, TxRequest{To: "Mother", Amount: 5})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("error = %v, want ErrNotConnected", err)
	}
}

func TestSendValidatesRequest(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newService(t)
	if _, err := svc.Connect(ctx, domain.ModeNew); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if _, err := svc.Send(ctx, store, TxRequest{Amount: 5}); err == nil {
		t.Fatal("send accepted without a recipient")
	}
	if _, err := svc.Send(ctx, store, TxRequest{To: "Mother", Amount: 0}); err == nil {
		t.Fatal("send accepted a zero amount")
	}
	if _, err := svc.Send(ctx, store, TxRequest{To: "Mother", Amount: -3}); err == nil {
		t.Fatal("send accepted a negative amount")
	}
}

func TestSendRecordsPendingAndDebits(t *testing.T) {
	ctx := context.Background()
	svc, client, store := newService(t)
	sess, err := svc.Connect(ctx, domain.ModeNew)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	// Faucet seeded 50.
	rec, err := svc.Send(ctx, store, TxRequest{To: "Mother", Amount: 20, JobID: "job-1"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if rec.Status != ledgertx.StatusPending {
		t.Fatalf("record status = %s, want pending", rec.Status)
	}
	if rec.From != sess.Address || rec.To != "Mother" || rec.JobID != "job-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	stored, err := store.GetTransaction(ctx, rec.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if stored.Amount != 20 {
		t.Fatalf("persisted amount = %v, want 20", stored.Amount)
	}

	// The send triggers an eager refresh, so the session reflects the debit.
	if got := svc.Session().Balance; got != 30 {
		t.Fatalf("session balance = %v, want 30", got)
	}
	if client.SendCalls != 1 {
		t.Fatalf("send calls = %d, want 1", client.SendCalls)
	}
}

func TestSendFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	svc, client, store := newService(t)
	if _, err := svc.Connect(ctx, domain.ModeNew); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	client.SendErr = errors.New("broadcast failed")
	if _, err := svc.Send(ctx, store, TxRequest{To: "Mother", Amount: 5}); err == nil {
		t.Fatal("expected send failure to surface")
	}
	// A mutating call fails exactly once; no automatic resubmission.
	if client.SendCalls != 1 {
		t.Fatalf("send calls = %d, want 1", client.SendCalls)
	}
	if pending, _ := store.ListPendingTransactions(ctx); len(pending) != 0 {
		t.Fatalf("failed send left %d pending records, want 0", len(pending))
	}
}
