// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ReLoop-Network/market_layer/internal/app/events"
	"github.com/ReLoop-Network/market_layer/internal/app/ledger"
)

// MockLedgerClient is a deterministic in-memory implementation of
// ledger.Client. Every knob is settable so tests can script failures,
// balances and confirmation behavior without timers.
type MockLedgerClient struct {
	mu sync.Mutex

	wallet    *ledger.Wallet
	balances  map[string]float64
	statuses  map[string]string
	faucetAmt float64

	// Error overrides. When set, the corresponding call fails once and
	// the override is cleared, which lets tests exercise retry paths.
	BalanceErr error
	SendErr    error
	StatusErr  error
	CreateErr  error

	// Sticky variants fail on every call.
	BalanceErrSticky error

	CreateCalls  int
	BalanceCalls int
	SendCalls    int
	FaucetCalls  int
	StatusCalls  int
}

// NewMockLedgerClient creates a mock ledger with a 50 token faucet.
func NewMockLedgerClient() *MockLedgerClient {
	return &MockLedgerClient{
		balances:  make(map[string]float64),
		statuses:  make(map[string]string),
		faucetAmt: 50,
	}
}

// SetBalance fixes the balance reported for an address.
func (m *MockLedgerClient) SetBalance(address string, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[address] = balance
}

// SetWallet seeds a pre-existing wallet so ConnectExisting succeeds.
func (m *MockLedgerClient) SetWallet(address string, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallet = &ledger.Wallet{Address: address, Balance: balance}
	m.balances[address] = balance
}

// SetStatus fixes the status reported for a transaction ID.
func (m *MockLedgerClient) SetStatus(txID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[txID] = status
}

// Initialize always reports ready.
func (m *MockLedgerClient) Initialize(context.Context) (bool, error) { return true, nil }

// CreateWallet allocates a fresh address.
func (m *MockLedgerClient) CreateWallet(context.Context) (ledger.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateErr != nil {
		err := m.CreateErr
		m.CreateErr = nil
		return ledger.Wallet{}, err
	}
	w := ledger.Wallet{
		Address:  "Maddr" + uuid.NewString()[:8],
		Mnemonic: "test test test",
	}
	m.wallet = &w
	m.balances[w.Address] = 0
	return w, nil
}

// ConnectExisting returns the seeded wallet or ledger.ErrNoWallet.
func (m *MockLedgerClient) ConnectExisting(context.Context) (ledger.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wallet == nil {
		return ledger.Wallet{}, ledger.ErrNoWallet
	}
	w := *m.wallet
	w.Balance = m.balances[w.Address]
	return w, nil
}

// GetBalance reports the scripted balance for an address.
func (m *MockLedgerClient) GetBalance(_ context.Context, address string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BalanceCalls++
	if m.BalanceErrSticky != nil {
		return 0, m.BalanceErrSticky
	}
	if m.BalanceErr != nil {
		err := m.BalanceErr
		m.BalanceErr = nil
		return 0, err
	}
	return m.balances[address], nil
}

// SendTransaction debits the wallet and returns a pending receipt.
func (m *MockLedgerClient) SendTransaction(_ context.Context, to string, amount float64, _ []byte) (ledger.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendCalls++
	if m.SendErr != nil {
		err := m.SendErr
		m.SendErr = nil
		return ledger.Receipt{}, err
	}
	if m.wallet == nil {
		return ledger.Receipt{}, ledger.ErrNoWallet
	}
	if m.balances[m.wallet.Address] < amount {
		return ledger.Receipt{}, fmt.Errorf("insufficient balance")
	}
	m.balances[m.wallet.Address] -= amount
	m.balances[to] += amount
	id := "0xtest" + uuid.NewString()[:12]
	m.statuses[id] = ledger.StatusPending
	return ledger.Receipt{
		TransactionID: id,
		Status:        ledger.StatusPending,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// RequestFaucet credits the configured faucet amount.
func (m *MockLedgerClient) RequestFaucet(_ context.Context, address string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FaucetCalls++
	m.balances[address] += m.faucetAmt
	return true, nil
}

// GetTransactionStatus reports the scripted status, defaulting to confirmed.
func (m *MockLedgerClient) GetTransactionStatus(_ context.Context, txID string) (ledger.TxStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusCalls++
	if m.StatusErr != nil {
		err := m.StatusErr
		m.StatusErr = nil
		return ledger.TxStatus{}, err
	}
	status, ok := m.statuses[txID]
	if !ok {
		status = ledger.StatusConfirmed
	}
	confs := 0
	if status == ledger.StatusConfirmed {
		confs = 1
	}
	return ledger.TxStatus{Status: status, Confirmations: confs}, nil
}

var _ ledger.Client = (*MockLedgerClient)(nil)

// RecordingPublisher captures published events for assertions.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

// Publish records the event.
func (r *RecordingPublisher) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything published so far.
func (r *RecordingPublisher) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByType returns the recorded events of one type.
func (r *RecordingPublisher) ByType(eventType string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

var _ events.Publisher = (*RecordingPublisher)(nil)
