// Package app ties the marketplace services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/job"
	"github.com/ReLoop-Network/market_layer/internal/app/events"
	"github.com/ReLoop-Network/market_layer/internal/app/ledger"
	"github.com/ReLoop-Network/market_layer/internal/app/pricing"
	identitysvc "github.com/ReLoop-Network/market_layer/internal/app/services/identity"
	jobssvc "github.com/ReLoop-Network/market_layer/internal/app/services/jobs"
	statssvc "github.com/ReLoop-Network/market_layer/internal/app/services/stats"
	walletsvc "github.com/ReLoop-Network/market_layer/internal/app/services/wallet"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
	"github.com/ReLoop-Network/market_layer/internal/app/storage/memory"
	"github.com/ReLoop-Network/market_layer/internal/app/system"
	"github.com/ReLoop-Network/market_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Jobs         storage.JobStore
	Users        storage.UserStore
	Transactions storage.TransactionStore
	Stats        storage.StatsStore
	Identities   storage.IdentityStore
	Sessions     storage.SessionStore
	Admin        storage.AdminStore
}

// Options tune optional application behaviour.
type Options struct {
	Rates            map[job.Material]pricing.RateBand
	RolloverSchedule string
	WalletOptions    []walletsvc.Option
}

// Application aggregates the services and their background components.
type Application struct {
	log   *logger.Logger
	admin storage.AdminStore

	Identity *identitysvc.Service
	Jobs     *jobssvc.Service
	Wallet   *walletsvc.Service
	Monitor  *walletsvc.Monitor
	Events   *events.Hub

	managed []system.Service
}

// New builds a fully initialised application. Missing stores fall back to a
// shared in-memory store; a nil ledger client gets a simulator.
func New(stores Stores, client ledger.Client, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Jobs == nil {
		stores.Jobs = mem
	}
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Transactions == nil {
		stores.Transactions = mem
	}
	if stores.Stats == nil {
		stores.Stats = mem
	}
	if stores.Identities == nil {
		stores.Identities = mem
	}
	if stores.Sessions == nil {
		stores.Sessions = mem
	}
	if stores.Admin == nil {
		stores.Admin = mem
	}

	network := "simnet"
	if client == nil {
		sim := ledger.NewSimulator(ledger.SimulatorConfig{}, log.WithField("component", "ledger-sim"))
		network = sim.Network()
		client = sim
	} else if sim, ok := client.(*ledger.Simulator); ok {
		network = sim.Network()
	}

	hub := events.NewHub(log.WithField("component", "events"))
	identity := identitysvc.New(stores.Identities, log.WithField("component", "identity"))
	jobs := jobssvc.New(jobssvc.Stores{
		Jobs:         stores.Jobs,
		Users:        stores.Users,
		Transactions: stores.Transactions,
		Stats:        stores.Stats,
	}, identity, opts.Rates, hub, log.WithField("component", "jobs"))

	wallet := walletsvc.New(client, stores.Sessions, network, log.WithField("component", "wallet"), opts.WalletOptions...)
	monitor := walletsvc.NewMonitor(client, stores.Transactions, log.WithField("component", "tx-monitor"))
	rollover := statssvc.NewRollover(stores.Stats, opts.RolloverSchedule, log.WithField("component", "stats-rollover"))

	return &Application{
		log:      log,
		admin:    stores.Admin,
		Identity: identity,
		Jobs:     jobs,
		Wallet:   wallet,
		Monitor:  monitor,
		Events:   hub,
		managed:  []system.Service{wallet, monitor, rollover},
	}, nil
}

// Start brings up the background components.
func (a *Application) Start(ctx context.Context) error {
	for _, svc := range a.managed {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		a.log.WithField("service", svc.Name()).Debug("service started")
	}
	return nil
}

// Stop shuts the background components down in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(a.managed) - 1; i >= 0; i-- {
		svc := a.managed[i]
		if err := svc.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", svc.Name(), err)
		}
	}
	a.Events.Close()
	return firstErr
}

// ClearAll wipes every persisted collection. This is the only way any entity
// is ever physically deleted.
func (a *Application) ClearAll(ctx context.Context) error {
	return a.admin.ClearAll(ctx)
}
