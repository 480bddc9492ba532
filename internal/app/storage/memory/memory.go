package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/identity"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/stats"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/user"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/wallet"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu           sync.RWMutex
	jobs         map[string]job.Job
	profiles     map[string]user.Profile
	transactions map[string]ledgertx.Record
	txOrder      []string
	identities   map[string]identity.Record
	aggregate    stats.Aggregate
	session      *wallet.Session
}

var _ storage.JobStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.TransactionStore = (*Store)(nil)
var _ storage.StatsStore = (*Store)(nil)
var _ storage.IdentityStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.AdminStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.jobs = make(map[string]job.Job)
	s.profiles = make(map[string]user.Profile)
	s.transactions = make(map[string]ledgertx.Record)
	s.txOrder = nil
	s.identities = make(map[string]identity.Record)
	s.aggregate = stats.Aggregate{SchemaVersion: storage.SchemaVersion}
	s.session = nil
}

// JobStore implementation ----------------------------------------------------

func (s *Store) CreateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	} else if _, exists := s.jobs[j.ID]; exists {
		return job.Job{}, storage.ErrConflict
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.SchemaVersion = storage.SchemaVersion
	s.jobs[j.ID] = cloneJob(j)
	return j, nil
}

func (s *Store) UpdateJob(_ context.Context, j job.Job) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.jobs[j.ID]
	if !ok {
		return job.Job{}, storage.ErrNotFound
	}
	j.CreatedAt = original.CreatedAt
	j.SchemaVersion = storage.SchemaVersion
	s.jobs[j.ID] = cloneJob(j)
	return j, nil
}

func (s *Store) GetJob(_ context.Context, id string) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, storage.ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *Store) ListJobs(_ context.Context) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

// UserStore implementation ---------------------------------------------------

func (s *Store) GetProfile(_ context.Context, address string) (user.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[address]
	if !ok {
		return user.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) UpsertProfile(_ context.Context, p user.Profile) (user.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.profiles[p.Address]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.SchemaVersion = storage.SchemaVersion
	s.profiles[p.Address] = p
	return p, nil
}

func (s *Store) ListProfiles(_ context.Context) ([]user.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Address < out[k].Address })
	return out, nil
}

// TransactionStore implementation --------------------------------------------

func (s *Store) AppendTransaction(_ context.Context, rec ledgertx.Record) (ledgertx.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	} else if _, exists := s.transactions[rec.ID]; exists {
		return ledgertx.Record{}, storage.ErrConflict
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.SchemaVersion = storage.SchemaVersion
	s.transactions[rec.ID] = rec
	s.txOrder = append(s.txOrder, rec.ID)
	return rec, nil
}

func (s *Store) UpdateTransactionStatus(_ context.Context, id, status string) (ledgertx.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.transactions[id]
	if !ok {
		return ledgertx.Record{}, storage.ErrNotFound
	}
	rec.Status = status
	s.transactions[id] = rec
	return rec, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (ledgertx.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.transactions[id]
	if !ok {
		return ledgertx.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListTransactions(_ context.Context, address string) ([]ledgertx.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledgertx.Record
	for _, id := range s.txOrder {
		rec := s.transactions[id]
		if address == "" || rec.From == address || rec.To == address {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) ListPendingTransactions(_ context.Context) ([]ledgertx.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledgertx.Record
	for _, id := range s.txOrder {
		if rec := s.transactions[id]; rec.Status == ledgertx.StatusPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

// StatsStore implementation --------------------------------------------------

func (s *Store) GetStats(_ context.Context) (stats.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregate, nil
}

func (s *Store) PutStats(_ context.Context, agg stats.Aggregate) (stats.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg.SchemaVersion = storage.SchemaVersion
	agg.UpdatedAt = time.Now().UTC()
	s.aggregate = agg
	return agg, nil
}

// IdentityStore implementation -----------------------------------------------

func (s *Store) GetIdentity(_ context.Context, address string) (identity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.identities[address]
	if !ok {
		return identity.Record{}, storage.ErrNotFound
	}
	return cloneIdentity(rec), nil
}

func (s *Store) PutIdentity(_ context.Context, rec identity.Record) (identity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.identities[rec.Address]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.SchemaVersion = storage.SchemaVersion
	s.identities[rec.Address] = cloneIdentity(rec)
	return rec, nil
}

// SessionStore implementation ------------------------------------------------

func (s *Store) GetSession(_ context.Context) (wallet.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return wallet.Session{}, storage.ErrNotFound
	}
	return *s.session, nil
}

func (s *Store) PutSession(_ context.Context, sess wallet.Session) (wallet.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess.SchemaVersion = storage.SchemaVersion
	s.session = &sess
	return sess, nil
}

func (s *Store) ClearSession(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

// AdminStore implementation --------------------------------------------------

func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

// clone helpers keep callers from aliasing internal state.

func cloneJob(j job.Job) job.Job {
	if j.Contact != nil {
		c := *j.Contact
		j.Contact = &c
	}
	if j.Dispute != nil {
		d := *j.Dispute
		j.Dispute = &d
	}
	return j
}

func cloneIdentity(rec identity.Record) identity.Record {
	if rec.Credentials != nil {
		creds := make([]identity.Credential, len(rec.Credentials))
		copy(creds, rec.Credentials)
		rec.Credentials = creds
	}
	return rec
}
