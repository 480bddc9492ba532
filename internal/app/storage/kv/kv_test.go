package kv

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/stats"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/user"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/wallet"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
)

func TestReopenRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := store.CreateJob(ctx, job.Job{
		ID:       "job-1",
		Title:    "Glass jars",
		Material: job.MaterialGlass,
		WeightKg: 12,
		Status:   job.StatusPosted,
		Poster:   "Mposter",
		Contact:  &job.Contact{Phone: "555-0100"},
	}); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if _, err := store.UpsertProfile(ctx, user.Profile{Address: "Mposter", JobsPosted: 1}); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}
	if _, err := store.AppendTransaction(ctx, ledgertx.Record{
		ID: "0xaa", Type: ledgertx.TypePosting, From: "Mposter", Status: ledgertx.StatusConfirmed,
	}); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}
	if _, err := store.PutStats(ctx, stats.Aggregate{TotalJobs: 1}); err != nil {
		t.Fatalf("PutStats failed: %v", err)
	}
	if _, err := store.PutSession(ctx, wallet.Session{Connected: true, Address: "Mposter"}); err != nil {
		t.Fatalf("PutSession failed: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	j, err := reopened.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob after reopen failed: %v", err)
	}
	if j.Title != "Glass jars" || j.Material != job.MaterialGlass || j.Contact == nil || j.Contact.Phone != "555-0100" {
		t.Fatalf("job did not survive reopen: %+v", j)
	}
	if j.SchemaVersion != storage.SchemaVersion {
		t.Fatalf("schema version = %d, want %d", j.SchemaVersion, storage.SchemaVersion)
	}

	p, err := reopened.GetProfile(ctx, "Mposter")
	if err != nil {
		t.Fatalf("GetProfile after reopen failed: %v", err)
	}
	if p.JobsPosted != 1 {
		t.Fatalf("profile did not survive reopen: %+v", p)
	}

	txs, err := reopened.ListTransactions(ctx, "Mposter")
	if err != nil {
		t.Fatalf("ListTransactions after reopen failed: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "0xaa" {
		t.Fatalf("transactions did not survive reopen: %+v", txs)
	}

	agg, err := reopened.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats after reopen failed: %v", err)
	}
	if agg.TotalJobs != 1 {
		t.Fatalf("stats did not survive reopen: %+v", agg)
	}

	sess, err := reopened.GetSession(ctx)
	if err != nil {
		t.Fatalf("GetSession after reopen failed: %v", err)
	}
	if !sess.Connected || sess.Address != "Mposter" {
		t.Fatalf("session did not survive reopen: %+v", sess)
	}
}

func TestAppendOrderSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for _, id := range []string{"0x01", "0x02", "0x03"} {
		if _, err := store.AppendTransaction(ctx, ledgertx.Record{ID: id, From: "Maddr"}); err != nil {
			t.Fatalf("AppendTransaction %s failed: %v", id, err)
		}
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	txs, err := reopened.ListTransactions(ctx, "Maddr")
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	for i, want := range []string{"0x01", "0x02", "0x03"} {
		if txs[i].ID != want {
			t.Fatalf("record %d = %s, want %s", i, txs[i].ID, want)
		}
	}
}

func TestRefusesNewerSchema(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := store.CreateJob(context.Background(), job.Job{ID: "job-1"}); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	// Rewrite the jobs file claiming a future schema.
	path := filepath.Join(dir, Namespace+".jobs.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read jobs file: %v", err)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("parse jobs file: %v", err)
	}
	env["schema_version"] = json.RawMessage("999")
	bumped, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal jobs file: %v", err)
	}
	if err := os.WriteFile(path, bumped, 0o600); err != nil {
		t.Fatalf("write jobs file: %v", err)
	}

	if _, err := Open(dir); err == nil {
		t.Fatal("expected Open to refuse a newer schema version")
	}
}

func TestClearAllRemovesPersistedState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	store.CreateJob(ctx, job.Job{ID: "job-1"})
	store.PutSession(ctx, wallet.Session{Connected: true})

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if jobs, _ := reopened.ListJobs(ctx); len(jobs) != 0 {
		t.Fatalf("jobs survived ClearAll and reopen: %d", len(jobs))
	}
	if _, err := reopened.GetSession(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("session survived ClearAll: %v", err)
	}
}
