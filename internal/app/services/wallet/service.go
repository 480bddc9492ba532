// Package wallet tracks the current user's ledger session: connection state,
// address and balance. The balance is refreshed on a fixed interval while
// connected; refreshes stop deterministically on disconnect.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/ReLoop-Network/market_layer/internal/app/domain/wallet"
	"github.com/ReLoop-Network/market_layer/internal/app/ledger"
	"github.com/ReLoop-Network/market_layer/internal/app/metrics"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
	"github.com/ReLoop-Network/market_layer/pkg/logger"
)

var (
	// ErrNotConnected reports an operation that needs an active session.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrUnknownMode reports a connect mode other than "existing" or "new".
	ErrUnknownMode = errors.New("unknown connect mode")
)

// callTimeout bounds every ledger call so a dead ledger process surfaces as
// a timeout instead of hanging the caller.
const callTimeout = 10 * time.Second

// Service is the wallet session store.
type Service struct {
	client   ledger.Client
	sessions storage.SessionStore
	network  string
	interval time.Duration
	log      *logger.Logger

	mu         sync.Mutex
	session    domain.Session
	generation uint64 // bumped on connect/disconnect; stale poll results are dropped
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures the service.
type Option func(*Service)

// WithPollInterval overrides the balance refresh interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// New creates a wallet service bound to a ledger client.
func New(client ledger.Client, sessions storage.SessionStore, network string, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	s := &Service{
		client:   client,
		sessions: sessions,
		network:  network,
		interval: 10 * time.Second,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect establishes a wallet session. Mode "new" allocates a fresh address
// and requests a one-time faucet credit; mode "existing" restores the
// persisted session or falls back to the ledger's stored wallet, failing
// with ledger.ErrNoWallet when neither exists.
func (s *Service) Connect(ctx context.Context, mode string) (domain.Session, error) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if _, err := s.client.Initialize(cctx); err != nil {
		return domain.Session{}, fmt.Errorf("ledger init: %w", err)
	}

	var (
		address string
		balance float64
	)
	switch mode {
	case domain.ModeNew:
		start := time.Now()
		w, err := s.client.CreateWallet(cctx)
		metrics.ObserveLedgerCall("create_wallet", start)
		if err != nil {
			return domain.Session{}, fmt.Errorf("create wallet: %w", err)
		}
		address = w.Address
		if _, err := s.client.RequestFaucet(cctx, address); err != nil {
			// A dry faucet is not fatal; the wallet just starts empty.
			s.log.WithError(err).Warn("faucet request failed")
		}
		balance, err = s.getBalanceRetry(cctx, address)
		if err != nil {
			return domain.Session{}, err
		}

	case domain.ModeExisting:
		if persisted, err := s.sessions.GetSession(ctx); err == nil && persisted.Address != "" {
			address = persisted.Address
			balance, err = s.getBalanceRetry(cctx, address)
			if err != nil {
				return domain.Session{}, err
			}
		} else {
			w, err := s.client.ConnectExisting(cctx)
			if err != nil {
				return domain.Session{}, err
			}
			address = w.Address
			balance = w.Balance
		}

	default:
		return domain.Session{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	sess := domain.Session{
		Connected:   true,
		Address:     address,
		Balance:     balance,
		Network:     s.network,
		ConnectedAt: time.Now().UTC(),
	}
	if _, err := s.sessions.PutSession(ctx, sess); err != nil {
		return domain.Session{}, fmt.Errorf("persist session: %w", err)
	}

	s.mu.Lock()
	s.session = sess
	s.generation++
	s.stopPollingLocked()
	s.startPollingLocked()
	s.mu.Unlock()

	s.log.WithField("address", address).WithField("mode", mode).Info("wallet connected")
	return sess, nil
}

// Disconnect tears down the session and cancels the balance poller. Results
// of in-flight refreshes are discarded.
func (s *Service) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.session = domain.Session{}
	s.generation++
	s.stopPollingLocked()
	s.mu.Unlock()

	s.wg.Wait()

	if err := s.sessions.ClearSession(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.log.Info("wallet disconnected")
	return nil
}

// Session returns the current session snapshot.
func (s *Service) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Restore loads a previously persisted session into memory, e.g. after a
// process restart. It does not start polling.
func (s *Service) Restore(ctx context.Context) (domain.Session, error) {
	sess, err := s.sessions.GetSession(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Session{}, nil
	}
	if err != nil {
		return domain.Session{}, err
	}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	return sess, nil
}

// RefreshBalance fetches the current balance and updates observable state
// only when the value actually changed.
func (s *Service) RefreshBalance(ctx context.Context) (float64, error) {
	s.mu.Lock()
	sess := s.session
	gen := s.generation
	s.mu.Unlock()

	if !sess.Connected {
		return 0, ErrNotConnected
	}

	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	balance, err := s.getBalanceRetry(cctx, sess.Address)
	if err != nil {
		metrics.BalancePoll("error")
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		// Session changed while the call was in flight; drop the result.
		metrics.BalancePoll("stale")
		return balance, nil
	}
	if s.session.Balance == balance {
		metrics.BalancePoll("unchanged")
		return balance, nil
	}

	s.session.Balance = balance
	if _, err := s.sessions.PutSession(ctx, s.session); err != nil {
		return balance, fmt.Errorf("persist session: %w", err)
	}
	metrics.BalancePoll("changed")
	return balance, nil
}

// getBalanceRetry retries the idempotent balance read once on an
// external-service failure. Mutating calls are never retried.
func (s *Service) getBalanceRetry(ctx context.Context, address string) (float64, error) {
	start := time.Now()
	balance, err := s.client.GetBalance(ctx, address)
	metrics.ObserveLedgerCall("get_balance", start)
	if err == nil || !errors.Is(err, ledger.ErrUnavailable) {
		return balance, err
	}
	balance, err = s.client.GetBalance(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (s *Service) startPollingLocked() {
	if s.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RefreshBalance(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
					s.log.WithError(err).Warn("balance refresh failed")
				}
			}
		}
	}()
}

func (s *Service) stopPollingLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Name implements system.Service.
func (s *Service) Name() string { return "wallet" }

// Start implements system.Service. Polling begins on Connect, not here.
func (s *Service) Start(context.Context) error { return nil }

// Stop implements system.Service and cancels any active poller.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopPollingLocked()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
