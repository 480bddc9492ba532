package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/user"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/wallet"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
)

func TestJobCRUD(t *testing.T) {
	ctx := context.Background()
	store := New()

	created, err := store.CreateJob(ctx, job.Job{
		ID:       "job-1",
		Title:    "Cardboard pickup",
		Material: job.MaterialCardboard,
		WeightKg: 5,
		Status:   job.StatusPosted,
		Poster:   "Mposter",
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if created.SchemaVersion != storage.SchemaVersion {
		t.Fatalf("schema version = %d, want %d", created.SchemaVersion, storage.SchemaVersion)
	}

	if _, err := store.CreateJob(ctx, job.Job{ID: "job-1"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate create error = %v, want ErrConflict", err)
	}

	created.Status = job.StatusClaimed
	created.Collector = "Mcollector"
	if _, err := store.UpdateJob(ctx, created); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != job.StatusClaimed || got.Collector != "Mcollector" {
		t.Fatalf("unexpected job after update: %+v", got)
	}

	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing job error = %v, want ErrNotFound", err)
	}
	if _, err := store.UpdateJob(ctx, job.Job{ID: "missing"}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update missing error = %v, want ErrNotFound", err)
	}

	jobs, err := store.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("ListJobs returned %d jobs, want 1", len(jobs))
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	store := New()

	seed := job.Job{
		ID:      "job-1",
		Status:  job.StatusPosted,
		Contact: &job.Contact{Phone: "555-0100"},
	}
	if _, err := store.CreateJob(ctx, seed); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	got, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	got.Status = job.StatusPaid
	got.Contact.Phone = "mutated"

	again, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if again.Status != job.StatusPosted {
		t.Fatalf("stored status mutated through returned copy: %s", again.Status)
	}
	if again.Contact.Phone != "555-0100" {
		t.Fatalf("stored contact mutated through returned copy: %s", again.Contact.Phone)
	}
}

func TestProfileUpsert(t *testing.T) {
	ctx := context.Background()
	store := New()

	if _, err := store.GetProfile(ctx, "Maddr"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing profile error = %v, want ErrNotFound", err)
	}

	p, err := store.UpsertProfile(ctx, user.Profile{Address: "Maddr", JobsPosted: 1})
	if err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}
	p.JobsCompleted = 2
	if _, err := store.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("second UpsertProfile failed: %v", err)
	}

	got, err := store.GetProfile(ctx, "Maddr")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.JobsPosted != 1 || got.JobsCompleted != 2 {
		t.Fatalf("unexpected profile: %+v", got)
	}
}

func TestTransactionLogOrderAndStatus(t *testing.T) {
	ctx := context.Background()
	store := New()

	for i, id := range []string{"0xaa", "0xbb", "0xcc"} {
		_, err := store.AppendTransaction(ctx, ledgertx.Record{
			ID:        id,
			Type:      ledgertx.TypeSend,
			From:      "Mfrom",
			Status:    ledgertx.StatusPending,
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("AppendTransaction %s failed: %v", id, err)
		}
	}

	if _, err := store.UpdateTransactionStatus(ctx, "0xbb", ledgertx.StatusConfirmed); err != nil {
		t.Fatalf("UpdateTransactionStatus failed: %v", err)
	}

	all, err := store.ListTransactions(ctx, "Mfrom")
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListTransactions returned %d records, want 3", len(all))
	}
	for i, want := range []string{"0xaa", "0xbb", "0xcc"} {
		if all[i].ID != want {
			t.Fatalf("record %d = %s, want %s (append order must hold)", i, all[i].ID, want)
		}
	}

	pending, err := store.ListPendingTransactions(ctx)
	if err != nil {
		t.Fatalf("ListPendingTransactions failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending count = %d, want 2", len(pending))
	}

	other, err := store.ListTransactions(ctx, "Mstranger")
	if err != nil {
		t.Fatalf("ListTransactions failed: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("unrelated address sees %d records, want 0", len(other))
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()

	if _, err := store.GetSession(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("empty session error = %v, want ErrNotFound", err)
	}

	if _, err := store.PutSession(ctx, wallet.Session{Connected: true, Address: "Maddr"}); err != nil {
		t.Fatalf("PutSession failed: %v", err)
	}
	got, err := store.GetSession(ctx)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.Connected || got.Address != "Maddr" {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := store.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}
	if _, err := store.GetSession(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cleared session error = %v, want ErrNotFound", err)
	}
}

func TestClearAllWipesEveryCollection(t *testing.T) {
	ctx := context.Background()
	store := New()

	store.CreateJob(ctx, job.Job{ID: "job-1"})
	store.UpsertProfile(ctx, user.Profile{Address: "Maddr"})
	store.AppendTransaction(ctx, ledgertx.Record{ID: "0xaa"})
	store.PutSession(ctx, wallet.Session{Connected: true})

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	if jobs, _ := store.ListJobs(ctx); len(jobs) != 0 {
		t.Fatalf("jobs survived ClearAll: %d", len(jobs))
	}
	if profiles, _ := store.ListProfiles(ctx); len(profiles) != 0 {
		t.Fatalf("profiles survived ClearAll: %d", len(profiles))
	}
	if _, err := store.GetSession(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("session survived ClearAll: %v", err)
	}
	agg, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats after ClearAll failed: %v", err)
	}
	if agg.TotalJobs != 0 {
		t.Fatalf("stats survived ClearAll: %+v", agg)
	}
}
