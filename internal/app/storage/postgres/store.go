// Package postgres implements the storage interfaces backed by PostgreSQL.
// Records are stored as JSONB bodies alongside the columns the queries
// filter on.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
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

// Schema creates the marketplace tables when they do not exist yet.
const Schema = `
CREATE TABLE IF NOT EXISTS market_jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS market_users (
	address    TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS market_transactions (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	from_addr  TEXT NOT NULL,
	to_addr    TEXT NOT NULL,
	body       JSONB NOT NULL,
	seq        BIGSERIAL
);
CREATE TABLE IF NOT EXISTS market_identities (
	address    TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS market_singletons (
	name TEXT PRIMARY KEY,
	body JSONB NOT NULL
);
`

// Store implements the storage interfaces using a database handle.
type Store struct {
	db *sql.DB
}

var _ storage.JobStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)
var _ storage.TransactionStore = (*Store)(nil)
var _ storage.StatsStore = (*Store)(nil)
var _ storage.IdentityStore = (*Store)(nil)
var _ storage.SessionStore = (*Store)(nil)
var _ storage.AdminStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies the table definitions.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// --- JobStore ---------------------------------------------------------------

func (s *Store) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	j.SchemaVersion = storage.SchemaVersion

	body, err := json.Marshal(j)
	if err != nil {
		return job.Job{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_jobs (id, status, body, created_at)
		VALUES ($1, $2, $3, $4)
	`, j.ID, string(j.Status), body, j.CreatedAt)
	if err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) UpdateJob(ctx context.Context, j job.Job) (job.Job, error) {
	existing, err := s.GetJob(ctx, j.ID)
	if err != nil {
		return job.Job{}, err
	}
	j.CreatedAt = existing.CreatedAt
	j.SchemaVersion = storage.SchemaVersion

	body, err := json.Marshal(j)
	if err != nil {
		return job.Job{}, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE market_jobs SET status = $2, body = $3 WHERE id = $1
	`, j.ID, string(j.Status), body)
	if err != nil {
		return job.Job{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return job.Job{}, storage.ErrNotFound
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (job.Job, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM market_jobs WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return job.Job{}, storage.ErrNotFound
	}
	if err != nil {
		return job.Job{}, err
	}
	var j job.Job
	if err := json.Unmarshal(body, &j); err != nil {
		return job.Job{}, err
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM market_jobs ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var j job.Job
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// --- UserStore --------------------------------------------------------------

func (s *Store) GetProfile(ctx context.Context, address string) (user.Profile, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM market_users WHERE address = $1`, address).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return user.Profile{}, storage.ErrNotFound
	}
	if err != nil {
		return user.Profile{}, err
	}
	var p user.Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return user.Profile{}, err
	}
	return p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p user.Profile) (user.Profile, error) {
	now := time.Now().UTC()
	existing, err := s.GetProfile(ctx, p.Address)
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

	body, err := json.Marshal(p)
	if err != nil {
		return user.Profile{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_users (address, body, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET body = EXCLUDED.body
	`, p.Address, body, p.CreatedAt)
	if err != nil {
		return user.Profile{}, err
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]user.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM market_users ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []user.Profile
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var p user.Profile
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- TransactionStore -------------------------------------------------------

func (s *Store) AppendTransaction(ctx context.Context, rec ledgertx.Record) (ledgertx.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.SchemaVersion = storage.SchemaVersion

	body, err := json.Marshal(rec)
	if err != nil {
		return ledgertx.Record{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_transactions (id, status, from_addr, to_addr, body)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.Status, rec.From, rec.To, body)
	if err != nil {
		return ledgertx.Record{}, err
	}
	return rec, nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, id, status string) (ledgertx.Record, error) {
	rec, err := s.GetTransaction(ctx, id)
	if err != nil {
		return ledgertx.Record{}, err
	}
	rec.Status = status

	body, err := json.Marshal(rec)
	if err != nil {
		return ledgertx.Record{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE market_transactions SET status = $2, body = $3 WHERE id = $1
	`, id, status, body)
	if err != nil {
		return ledgertx.Record{}, err
	}
	return rec, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (ledgertx.Record, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM market_transactions WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ledgertx.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return ledgertx.Record{}, err
	}
	var rec ledgertx.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return ledgertx.Record{}, err
	}
	return rec, nil
}

func (s *Store) scanTransactions(rows *sql.Rows) ([]ledgertx.Record, error) {
	defer rows.Close()
	var out []ledgertx.Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec ledgertx.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ListTransactions(ctx context.Context, address string) ([]ledgertx.Record, error) {
	if address == "" {
		rows, err := s.db.QueryContext(ctx, `SELECT body FROM market_transactions ORDER BY seq`)
		if err != nil {
			return nil, err
		}
		return s.scanTransactions(rows)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM market_transactions
		WHERE from_addr = $1 OR to_addr = $1
		ORDER BY seq
	`, address)
	if err != nil {
		return nil, err
	}
	return s.scanTransactions(rows)
}

func (s *Store) ListPendingTransactions(ctx context.Context) ([]ledgertx.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM market_transactions WHERE status = $1 ORDER BY seq
	`, ledgertx.StatusPending)
	if err != nil {
		return nil, err
	}
	return s.scanTransactions(rows)
}

// --- StatsStore -------------------------------------------------------------

func (s *Store) GetStats(ctx context.Context) (stats.Aggregate, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM market_singletons WHERE name = 'stats'`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return stats.Aggregate{SchemaVersion: storage.SchemaVersion}, nil
	}
	if err != nil {
		return stats.Aggregate{}, err
	}
	var agg stats.Aggregate
	if err := json.Unmarshal(body, &agg); err != nil {
		return stats.Aggregate{}, err
	}
	return agg, nil
}

func (s *Store) PutStats(ctx context.Context, agg stats.Aggregate) (stats.Aggregate, error) {
	agg.SchemaVersion = storage.SchemaVersion
	agg.UpdatedAt = time.Now().UTC()

	body, err := json.Marshal(agg)
	if err != nil {
		return stats.Aggregate{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_singletons (name, body) VALUES ('stats', $1)
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body
	`, body)
	if err != nil {
		return stats.Aggregate{}, err
	}
	return agg, nil
}

// --- IdentityStore ----------------------------------------------------------

func (s *Store) GetIdentity(ctx context.Context, address string) (identity.Record, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM market_identities WHERE address = $1`, address).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return identity.Record{}, err
	}
	var rec identity.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return identity.Record{}, err
	}
	return rec, nil
}

func (s *Store) PutIdentity(ctx context.Context, rec identity.Record) (identity.Record, error) {
	now := time.Now().UTC()
	existing, err := s.GetIdentity(ctx, rec.Address)
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

	body, err := json.Marshal(rec)
	if err != nil {
		return identity.Record{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_identities (address, body, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET body = EXCLUDED.body
	`, rec.Address, body, rec.CreatedAt)
	if err != nil {
		return identity.Record{}, err
	}
	return rec, nil
}

// --- SessionStore -----------------------------------------------------------

func (s *Store) GetSession(ctx context.Context) (wallet.Session, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM market_singletons WHERE name = 'session'`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return wallet.Session{}, err
	}
	var sess wallet.Session
	if err := json.Unmarshal(body, &sess); err != nil {
		return wallet.Session{}, err
	}
	return sess, nil
}

func (s *Store) PutSession(ctx context.Context, sess wallet.Session) (wallet.Session, error) {
	sess.SchemaVersion = storage.SchemaVersion
	body, err := json.Marshal(sess)
	if err != nil {
		return wallet.Session{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_singletons (name, body) VALUES ('session', $1)
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body
	`, body)
	if err != nil {
		return wallet.Session{}, err
	}
	return sess, nil
}

func (s *Store) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM market_singletons WHERE name = 'session'`)
	return err
}

// --- AdminStore -------------------------------------------------------------

func (s *Store) ClearAll(ctx context.Context) error {
	for _, table := range []string{"market_jobs", "market_users", "market_transactions", "market_identities", "market_singletons"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
