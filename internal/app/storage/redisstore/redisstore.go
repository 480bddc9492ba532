// Package redisstore implements the storage interfaces on Redis. Records are
// stored as JSON blobs in per-collection hashes under a namespaced key
// prefix, keeping the same collection layout as the file-backed store.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/identity"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/stats"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/user"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/wallet"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
)

// Store persists marketplace collections in Redis.
type Store struct {
	rdb *redis.Client
	ns  string
}

var _ storage.JobStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.TransactionStore = (*Store)(nil)
var _ storage.StatsStore = (*Store)(nil)
var _ storage.IdentityStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.AdminStore = (*Store)(nil)

// New wraps an existing Redis client. The namespace defaults to "market.v1".
func New(rdb *redis.Client, namespace string) (*Store, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if namespace == "" {
		namespace = "market.v1"
	}
	s := &Store{rdb: rdb, ns: namespace}
	if err := s.checkSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) key(parts ...string) string {
	key := s.ns
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (s *Store) checkSchema(ctx context.Context) error {
	raw, err := s.rdb.Get(ctx, s.key("schema")).Result()
	if errors.Is(err, redis.Nil) {
		return s.rdb.Set(ctx, s.key("schema"), storage.SchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	if version > storage.SchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, storage.SchemaVersion)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, collection, id string, out interface{}) error {
	raw, err := s.rdb.HGet(ctx, s.key(collection), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get %s/%s: %w", collection, id, err)
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) putJSON(ctx context.Context, collection, id string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, s.key(collection), id, raw).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", collection, id, err)
	}
	return nil
}

// JobStore implementation ----------------------------------------------------

func (s *Store) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.SchemaVersion = storage.SchemaVersion

	raw, err := json.Marshal(j)
	if err != nil {
		return job.Job{}, err
	}
	created, err := s.rdb.HSetNX(ctx, s.key("jobs"), j.ID, raw).Result()
	if err != nil {
		return job.Job{}, fmt.Errorf("redis create job: %w", err)
	}
	if !created {
		return job.Job{}, storage.ErrConflict
	}
	return j, nil
}

func (s *Store) UpdateJob(ctx context.Context, j job.Job) (job.Job, error) {
	var original job.Job
	if err := s.getJSON(ctx, "jobs", j.ID, &original); err != nil {
		return job.Job{}, err
	}
	j.CreatedAt = original.CreatedAt
	j.SchemaVersion = storage.SchemaVersion
	if err := s.putJSON(ctx, "jobs", j.ID, j); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (job.Job, error) {
	var j job.Job
	if err := s.getJSON(ctx, "jobs", id, &j); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]job.Job, error) {
	entries, err := s.rdb.HGetAll(ctx, s.key("jobs")).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list jobs: %w", err)
	}
	out := make([]job.Job, 0, len(entries))
	for _, raw := range entries {
		var j job.Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

// UserStore implementation ---------------------------------------------------

func (s *Store) GetProfile(ctx context.Context, address string) (user.Profile, error) {
	var p user.Profile
	if err := s.getJSON(ctx, "users", address, &p); err != nil {
		return user.Profile{}, err
	}
	return p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	now := time.Now().UTC()
	var existing user.Profile
	err := s.getJSON(ctx, "users", p.Address, &existing)
	switch {
	case err == nil:
		p.CreatedAt = existing.CreatedAt
	case errors.Is(err, storage.ErrNotFound):
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
	default:
		return user.Profile{}, err
	}
	p.UpdatedAt = now
	p.SchemaVersion = storage.SchemaVersion
	if err := s.putJSON(ctx, "users", p.Address, p); err != nil {
		return user.Profile{}, err
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]user.Profile, error) {
	entries, err := s.rdb.HGetAll(ctx, s.key("users")).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list users: %w", err)
	}
	out := make([]user.Profile, 0, len(entries))
	for _, raw := range entries {
		var p user.Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Address < out[k].Address })
	return out, nil
}

// TransactionStore implementation --------------------------------------------

func (s *Store) AppendTransaction(ctx context.Context, rec ledgertx.Record) (ledgertx.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.SchemaVersion = storage.SchemaVersion

	raw, err := json.Marshal(rec)
	if err != nil {
		return ledgertx.Record{}, err
	}
	created, err := s.rdb.HSetNX(ctx, s.key("transactions"), rec.ID, raw).Result()
	if err != nil {
		return ledgertx.Record{}, fmt.Errorf("redis append transaction: %w", err)
	}
	if !created {
		return ledgertx.Record{}, storage.ErrConflict
	}
	if err := s.rdb.RPush(ctx, s.key("transactions", "log"), rec.ID).Err(); err != nil {
		return ledgertx.Record{}, fmt.Errorf("redis append transaction log: %w", err)
	}
	return rec, nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id, status string) (ledgertx.Record, error) {
	var rec ledgertx.Record
	if err := s.getJSON(ctx, "transactions", id, &rec); err != nil {
		return ledgertx.Record{}, err
	}
	rec.Status = status
	if err := s.putJSON(ctx, "transactions", id, rec); err != nil {
		return ledgertx.Record{}, err
	}
	return rec, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (ledgertx.Record, error) {
	var rec ledgertx.Record
	if err := s.getJSON(ctx, "transactions", id, &rec); err != nil {
		return ledgertx.Record{}, err
	}
	return rec, nil
}

func (s *Store) listTransactions(ctx context.Context) ([]ledgertx.Record, error) {
	ids, err := s.rdb.LRange(ctx, s.key("transactions", "log"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list transactions: %w", err)
	}
	out := make([]ledgertx.Record, 0, len(ids))
	for _, id := range ids {
		var rec ledgertx.Record
		if err := s.getJSON(ctx, "transactions", id, &rec); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context, address string) ([]ledgertx.Record, error) {
	all, err := s.listTransactions(ctx)
	if err != nil {
		return nil, err
	}
	if address == "" {
		return all, nil
	}
	var out []ledgertx.Record
	for _, rec := range all {
		if rec.From == address || rec.To == address {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) ListPendingTransactions(ctx context.Context) ([]ledgertx.Record, error) {
	all, err := s.listTransactions(ctx)
	if err != nil {
		return nil, err
	}
	var out []ledgertx.Record
	for _, rec := range all {
		if rec.Status == ledgertx.StatusPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

// StatsStore implementation --------------------------------------------------

func (s *Store) GetStats(ctx context.Context) (stats.Aggregate, error) {
	raw, err := s.rdb.Get(ctx, s.key("stats")).Bytes()
	if errors.Is(err, redis.Nil) {
		return stats.Aggregate{SchemaVersion: storage.SchemaVersion}, nil
	}
	if err != nil {
		return stats.Aggregate{}, fmt.Errorf("redis get stats: %w", err)
	}
	var agg stats.Aggregate
	if err := json.Unmarshal(raw, &agg); err != nil {
		return stats.Aggregate{}, err
	}
	return agg, nil
}

func (s *Store) PutStats(ctx context.Context, agg stats.Aggregate) (stats.Aggregate, error) {
	agg.SchemaVersion = storage.SchemaVersion
	agg.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(agg)
	if err != nil {
		return stats.Aggregate{}, err
	}
	if err := s.rdb.Set(ctx, s.key("stats"), raw, 0).Err(); err != nil {
		return stats.Aggregate{}, fmt.Errorf("redis put stats: %w", err)
	}
	return agg, nil
}

// IdentityStore implementation -----------------------------------------------

func (s *Store) GetIdentity(ctx context.Context, address string) (identity.Record, error) {
	var rec identity.Record
	if err := s.getJSON(ctx, "identities", address, &rec); err != nil {
		return identity.Record{}, err
	}
	return rec, nil
}

func (s *Store) PutIdentity(ctx context.Context, rec identity.Record) (identity.Record, error) {
	now := time.Now().UTC()
	var existing identity.Record
	err := s.getJSON(ctx, "identities", rec.Address, &existing)
	switch {
	case err == nil:
		rec.CreatedAt = existing.CreatedAt
	case errors.Is(err, storage.ErrNotFound):
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
	default:
		return identity.Record{}, err
	}
	rec.UpdatedAt = now
	rec.SchemaVersion = storage.SchemaVersion
	if err := s.putJSON(ctx, "identities", rec.Address, rec); err != nil {
		return identity.Record{}, err
	}
	return rec, nil
}

// SessionStore implementation ------------------------------------------------

func (s *Store) GetSession(ctx context.Context) (wallet.Session, error) {
	raw, err := s.rdb.Get(ctx, s.key("session")).Bytes()
	if errors.Is(err, redis.Nil) {
		return wallet.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return wallet.Session{}, fmt.Errorf("redis get session: %w", err)
	}
	var sess wallet.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return wallet.Session{}, err
	}
	return sess, nil
}

func (s *Store) PutSession(ctx context.Context, sess wallet.Session) (wallet.Session, error) {
	sess.SchemaVersion = storage.SchemaVersion
	raw, err := json.Marshal(sess)
	if err != nil {
		return wallet.Session{}, err
	}
	if err := s.rdb.Set(ctx, s.key("session"), raw, 0).Err(); err != nil {
		return wallet.Session{}, fmt.Errorf("redis put session: %w", err)
	}
	return sess, nil
}

func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key("session")).Err(); err != nil {
		return fmt.Errorf("redis clear session: %w", err)
	}
	return nil
}

// AdminStore implementation --------------------------------------------------

func (s *Store) ClearAll(ctx context.Context) error {
	keys := []string{
		s.key("jobs"),
		s.key("users"),
		s.key("transactions"),
		s.key("transactions", "log"),
		s.key("identities"),
		s.key("stats"),
		s.key("session"),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear all: %w", err)
	}
	return nil
}
