// Package storage declares the persistence contracts for the marketplace.
// The store is the single source of truth for all entities; services own all
// mutation and no component writes records behind them.
package storage

import (
	"context"
	"errors"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/identity"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/stats"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/user"
	"github.com/ReLoop-Network/market_layer/internal/app/domain/wallet"
)

// SchemaVersion is stamped onto every persisted record. Backends refuse to
// load records written by a newer schema.
const SchemaVersion = 1

// ErrNotFound is returned by every backend on a lookup miss.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a create collides with an existing record id.
var ErrConflict = errors.New("record already exists")

// JobStore persists job records.
type JobStore interface {
	CreateJob(ctx context.Context, j job.Job) (job.Job, error)
	UpdateJob(ctx context.Context, j job.Job) (job.Job, error)
	GetJob(ctx context.Context, id string) (job.Job, error)
	ListJobs(ctx context.Context) ([]job.Job, error)
}

// UserStore persists per-address activity profiles.
type UserStore interface {
	GetProfile(ctx context.Context, address string) (user.Profile, error)
	UpsertProfile(ctx context.Context, p user.Profile) (user.Profile, error)
	ListProfiles(ctx context.Context) ([]user.Profile, error)
}

// TransactionStore persists the append-only transaction log. Confirmed
// records are immutable except for their status field.
type TransactionStore interface {
	AppendTransaction(ctx context.Context, rec ledgertx.Record) (ledgertx.Record, error)
	UpdateTransactionStatus(ctx context.Context, id, status string) (ledgertx.Record, error)
	GetTransaction(ctx context.Context, id string) (ledgertx.Record, error)
	ListTransactions(ctx context.Context, address string) ([]ledgertx.Record, error)
	ListPendingTransactions(ctx context.Context) ([]ledgertx.Record, error)
}

// StatsStore persists the single marketplace aggregate record.
type StatsStore interface {
	GetStats(ctx context.Context) (stats.Aggregate, error)
	PutStats(ctx context.Context, s stats.Aggregate) (stats.Aggregate, error)
}

// IdentityStore persists identity records keyed by wallet address.
type IdentityStore interface {
	GetIdentity(ctx context.Context, address string) (identity.Record, error)
	PutIdentity(ctx context.Context, rec identity.Record) (identity.Record, error)
}

// SessionStore persists the current wallet session so it survives a reload.
type SessionStore interface {
	GetSession(ctx context.Context) (wallet.Session, error)
	PutSession(ctx context.Context, s wallet.Session) (wallet.Session, error)
	ClearSession(ctx context.Context) error
}

// AdminStore supports the administrative clear-all operation, which wipes
// every collection uniformly.
type AdminStore interface {
	ClearAll(ctx context.Context) error
}
