// Package kv is a file-backed key-value implementation of the storage
// interfaces. Each collection is serialized as one JSON document under a
// namespaced key, mirroring a browser local-storage layout, with an explicit
// schema version on the envelope.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
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

// Namespace prefixes every collection key on disk.
const Namespace = "market.v1"

// Collection keys.
const (
	keyJobs         = "jobs"
	keyUsers        = "users"
	keyTransactions = "transactions"
	keyStats        = "stats"
	keyIdentities   = "identities"
	keySession      = "session"
)

// envelope wraps every persisted collection with its schema version.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

// Store persists collections as JSON files under a directory. All state is
// held in memory and flushed on every mutation; files are replaced
// atomically via rename.
type Store struct {
	mu  sync.RWMutex
	dir string

	jobs         map[string]job.Job
	profiles     map[string]user.Profile
	transactions []ledgertx.Record
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

// Open loads (or initialises) a store rooted at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &Store{dir: dir}
	s.resetLocked()
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) resetLocked() {
	s.jobs = make(map[string]job.Job)
	s.profiles = make(map[string]user.Profile)
	s.transactions = nil
	s.identities = make(map[string]identity.Record)
	s.aggregate = stats.Aggregate{SchemaVersion: storage.SchemaVersion}
	s.session = nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.%s.json", Namespace, key))
}

func (s *Store) load() error {
	if err := readCollection(s.path(keyJobs), &s.jobs); err != nil {
		return err
	}
	if err := readCollection(s.path(keyUsers), &s.profiles); err != nil {
		return err
	}
	if err := readCollection(s.path(keyTransactions), &s.transactions); err != nil {
		return err
	}
	if err := readCollection(s.path(keyIdentities), &s.identities); err != nil {
		return err
	}
	if err := readCollection(s.path(keyStats), &s.aggregate); err != nil {
		return err
	}
	var sess wallet.Session
	if err := readCollection(s.path(keySession), &sess); err != nil {
		return err
	}
	if sess.Address != "" {
		s.session = &sess
	}
	return nil
}

func readCollection(path string, out interface{}) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if env.SchemaVersion > storage.SchemaVersion {
		return fmt.Errorf("%s: schema version %d is newer than supported %d", path, env.SchemaVersion, storage.SchemaVersion)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (s *Store) flush(key string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	env, err := json.MarshalIndent(envelope{SchemaVersion: storage.SchemaVersion, Data: raw}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", key, err)
	}
	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, env, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
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
	s.jobs[j.ID] = j
	if err := s.flush(keyJobs, s.jobs); err != nil {
		delete(s.jobs, j.ID)
		return job.Job{}, err
	}
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
	s.jobs[j.ID] = j
	if err := s.flush(keyJobs, s.jobs); err != nil {
		s.jobs[j.ID] = original
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) GetJob(_ context.Context, id string) (job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, storage.ErrNotFound
	}
	return j, nil
}

func (s *Store) ListJobs(_ context.Context) ([]job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
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
	if err := s.flush(keyUsers, s.profiles); err != nil {
		return user.Profile{}, err
	}
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
	} else {
		for _, existing := range s.transactions {
			if existing.ID == rec.ID {
				return ledgertx.Record{}, storage.ErrConflict
			}
		}
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.SchemaVersion = storage.SchemaVersion
	s.transactions = append(s.transactions, rec)
	if err := s.flush(keyTransactions, s.transactions); err != nil {
		s.transactions = s.transactions[:len(s.transactions)-1]
		return ledgertx.Record{}, err
	}
	return rec, nil
}

func (s *Store) UpdateTransactionStatus(_ context.Context, id, status string) (ledgertx.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.transactions {
		if rec.ID == id {
			prev := rec.Status
			s.transactions[i].Status = status
			if err := s.flush(keyTransactions, s.transactions); err != nil {
				s.transactions[i].Status = prev
				return ledgertx.Record{}, err
			}
			return s.transactions[i], nil
		}
	}
	return ledgertx.Record{}, storage.ErrNotFound
}

func (s *Store) GetTransaction(_ context.Context, id string) (ledgertx.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.transactions {
		if rec.ID == id {
			return rec, nil
		}
	}
	return ledgertx.Record{}, storage.ErrNotFound
}

func (s *Store) ListTransactions(_ context.Context, address string) ([]ledgertx.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledgertx.Record
	for _, rec := range s.transactions {
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
	for _, rec := range s.transactions {
		if rec.Status == ledgertx.StatusPending {
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
	prev := s.aggregate
	s.aggregate = agg
	if err := s.flush(keyStats, s.aggregate); err != nil {
		s.aggregate = prev
		return stats.Aggregate{}, err
	}
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
	return rec, nil
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
	s.identities[rec.Address] = rec
	if err := s.flush(keyIdentities, s.identities); err != nil {
		return identity.Record{}, err
	}
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
	if err := s.flush(keySession, sess); err != nil {
		return wallet.Session{}, err
	}
	return sess, nil
}

func (s *Store) ClearSession(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	return s.flush(keySession, wallet.Session{})
}

// AdminStore implementation --------------------------------------------------

func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	for _, key := range []string{keyJobs, keyUsers, keyTransactions, keyIdentities, keyStats, keySession} {
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear %s: %w", key, err)
		}
	}
	return nil
}
