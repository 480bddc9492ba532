package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/user"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/wallet"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)
	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	j, err := store.CreateJob(ctx, job.Job{
		Title:    "Metal scrap",
		Material: job.MaterialMetal,
		WeightKg: 8,
		Status:   job.StatusPosted,
		Poster:   "Mposter",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	j.Status = job.StatusClaimed
	j.Collector = "Mcollector"
	if _, err := store.UpdateJob(ctx, j); err != nil {
		t.Fatalf("update job: %v", err)
	}
	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != job.StatusClaimed || got.Collector != "Mcollector" {
		t.Fatalf("unexpected job: %+v", got)
	}
	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing job error = %v, want ErrNotFound", err)
	}

	if _, err := store.UpsertProfile(ctx, user.Profile{Address: "Mposter", JobsPosted: 1}); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	p, err := store.GetProfile(ctx, "Mposter")
	if err != nil || p.JobsPosted != 1 {
		t.Fatalf("get profile: %+v err=%v", p, err)
	}

	rec, err := store.AppendTransaction(ctx, ledgertx.Record{
		Type: ledgertx.TypeSend, From: "Mposter", To: "Mcollector", Amount: 5, Status: ledgertx.StatusPending,
	})
	if err != nil {
		t.Fatalf("append transaction: %v", err)
	}
	if _, err := store.UpdateTransactionStatus(ctx, rec.ID, ledgertx.StatusConfirmed); err != nil {
		t.Fatalf("update transaction: %v", err)
	}
	if pending, _ := store.ListPendingTransactions(ctx); len(pending) != 0 {
		t.Fatalf("pending after confirm = %d, want 0", len(pending))
	}

	if _, err := store.PutSession(ctx, wallet.Session{Connected: true, Address: "Mposter"}); err != nil {
		t.Fatalf("put session: %v", err)
	}
	sess, err := store.GetSession(ctx)
	if err != nil || sess.Address != "Mposter" {
		t.Fatalf("get session: %+v err=%v", sess, err)
	}
	if err := store.ClearSession(ctx); err != nil {
		t.Fatalf("clear session: %v", err)
	}
	if _, err := store.GetSession(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("session after clear = %v, want ErrNotFound", err)
	}

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if jobs, _ := store.ListJobs(ctx); len(jobs) != 0 {
		t.Fatalf("jobs after clear = %d, want 0", len(jobs))
	}
}
