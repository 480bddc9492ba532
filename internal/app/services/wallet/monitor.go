package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
	"github.com/ReLoop-Network/market_layer/internal/app/ledger"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
	"github.com/ReLoop-Network/market_layer/internal/app/system"
	"github.com/ReLoop-Network/market_layer/pkg/logger"
)

// Monitor polls the ledger for the status of submitted transactions. Each
// watched transaction gets its own fixed-interval loop with a hard ceiling;
// a transaction that never resolves stays pending rather than being marked
// failed.
type Monitor struct {
	client       ledger.Client
	transactions storage.TransactionStore
	interval     time.Duration
	ceiling      time.Duration
	log          *logger.Logger

	mu      sync.Mutex
	root    context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Monitor)(nil)

// NewMonitor creates a transaction status monitor.
func NewMonitor(client ledger.Client, transactions storage.TransactionStore, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewDefault("tx-monitor")
	}
	return &Monitor{
		client:       client,
		transactions: transactions,
		interval:     5 * time.Second,
		ceiling:      5 * time.Minute,
		log:          log,
	}
}

// WithTiming overrides the poll interval and ceiling, mainly for tests.
func (m *Monitor) WithTiming(interval, ceiling time.Duration) *Monitor {
	if interval > 0 {
		m.interval = interval
	}
	if ceiling > 0 {
		m.ceiling = ceiling
	}
	return m
}

func (m *Monitor) Name() string { return "tx-monitor" }

// Start prepares the monitor and resumes watching any transactions that were
// pending when the process last stopped.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	root, cancel := context.WithCancel(ctx)
	m.root = root
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	pending, err := m.transactions.ListPendingTransactions(ctx)
	if err != nil {
		m.log.WithError(err).Warn("list pending transactions failed")
		return nil
	}
	for _, rec := range pending {
		if rec.Type == ledgertx.TypeSend {
			m.Watch(rec.ID)
		}
	}
	return nil
}

// Stop cancels every per-transaction loop and waits for them to exit.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.root = nil
	m.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch begins polling one transaction until it resolves or the ceiling is
// reached.
func (m *Monitor) Watch(txID string) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	root := m.root
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.watch(root, txID)
	}()
}

func (m *Monitor) watch(ctx context.Context, txID string) {
	deadline := time.Now().Add(m.ceiling)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			m.log.WithField("tx_id", txID).Warn("gave up monitoring; transaction left pending")
			return
		}

		status, err := m.statusRetry(ctx, txID)
		if err != nil {
			m.log.WithError(err).Debugf("status poll for %s failed", txID)
			continue
		}

		switch status.Status {
		case ledger.StatusConfirmed:
			m.settle(ctx, txID, ledgertx.StatusConfirmed)
			return
		case ledger.StatusFailed:
			m.settle(ctx, txID, ledgertx.StatusFailed)
			return
		}
	}
}

// statusRetry retries the idempotent status read once.
func (m *Monitor) statusRetry(ctx context.Context, txID string) (ledger.TxStatus, error) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	status, err := m.client.GetTransactionStatus(cctx, txID)
	if err == nil || !errors.Is(err, ledger.ErrUnavailable) {
		return status, err
	}
	return m.client.GetTransactionStatus(cctx, txID)
}

func (m *Monitor) settle(ctx context.Context, txID, status string) {
	if _, err := m.transactions.UpdateTransactionStatus(ctx, txID, status); err != nil {
		m.log.WithError(err).Warnf("update transaction %s failed", txID)
		return
	}
	m.log.WithField("tx_id", txID).Infof("transaction %s", status)
}
