package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"golang.org/x/time/rate"

	"github.com/ReLoop-Network/market_layer/pkg/logger"
)

// SimulatorConfig tunes the simulated network.
type SimulatorConfig struct {
	Network      string        // label reported to sessions, e.g. "simnet"
	Latency      time.Duration // artificial delay per call
	ConfirmAfter time.Duration // pending -> confirmed threshold
	BlockTime    time.Duration // confirmation counting interval
	FaucetAmount float64
	FaucetEvery  time.Duration // per-address faucet refill interval
}

func (c SimulatorConfig) withDefaults() SimulatorConfig {
	if c.Network == "" {
		c.Network = "simnet"
	}
	if c.Latency <= 0 {
		c.Latency = 300 * time.Millisecond
	}
	if c.ConfirmAfter <= 0 {
		c.ConfirmAfter = 15 * time.Second
	}
	if c.BlockTime <= 0 {
		c.BlockTime = 5 * time.Second
	}
	if c.FaucetAmount <= 0 {
		c.FaucetAmount = 50
	}
	if c.FaucetEvery <= 0 {
		c.FaucetEvery = 24 * time.Hour
	}
	return c
}

type simTx struct {
	id          string
	from, to    string
	amount      float64
	submittedAt time.Time
}

// Simulator is a Client that synthesizes wallets, balances and transaction
// ids locally. Addresses are derived from real Neo key pairs so they look
// and validate like network addresses; nothing ever leaves the process.
type Simulator struct {
	cfg SimulatorConfig
	log *logger.Logger

	mu          sync.RWMutex
	initialized bool
	active      string
	balances    map[string]float64
	txs         map[string]simTx
	faucets     map[string]*rate.Limiter
}

var _ Client = (*Simulator)(nil)

// NewSimulator creates a simulated ledger client.
func NewSimulator(cfg SimulatorConfig, log *logger.Logger) *Simulator {
	if log == nil {
		log = logger.NewDefault("ledger-sim")
	}
	return &Simulator{
		cfg:      cfg.withDefaults(),
		log:      log,
		balances: make(map[string]float64),
		txs:      make(map[string]simTx),
		faucets:  make(map[string]*rate.Limiter),
	}
}

// Network returns the simulated network label.
func (s *Simulator) Network() string { return s.cfg.Network }

// sleep injects the artificial network delay, honouring cancellation. Every
// simulator call goes through it so no caller can hang past its deadline.
func (s *Simulator) sleep(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (s *Simulator) Initialize(ctx context.Context) (bool, error) {
	if err := s.sleep(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		s.initialized = true
		s.log.WithField("network", s.cfg.Network).Info("ledger simulator ready")
	}
	return true, nil
}

func (s *Simulator) CreateWallet(ctx context.Context) (Wallet, error) {
	if err := s.sleep(ctx); err != nil {
		return Wallet{}, err
	}

	priv, err := keys.NewPrivateKey()
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: generate key: %v", ErrUnavailable, err)
	}
	address := priv.Address()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[address] = 0
	s.active = address

	s.log.WithField("address", address).Info("wallet created")
	return Wallet{Address: address, Balance: 0, Mnemonic: priv.WIF()}, nil
}

func (s *Simulator) ConnectExisting(ctx context.Context) (Wallet, error) {
	if err := s.sleep(ctx); err != nil {
		return Wallet{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == "" {
		return Wallet{}, ErrNoWallet
	}
	return Wallet{Address: s.active, Balance: s.balances[s.active]}, nil
}

func (s *Simulator) GetBalance(ctx context.Context, address string) (float64, error) {
	if err := s.sleep(ctx); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.balances[address]
	if !ok {
		return 0, fmt.Errorf("%w: unknown address %s", ErrNoWallet, address)
	}
	return balance, nil
}

func (s *Simulator) SendTransaction(ctx context.Context, to string, amount float64, _ []byte) (Receipt, error) {
	if err := s.sleep(ctx); err != nil {
		return Receipt{}, err
	}
	if amount <= 0 {
		return Receipt{}, fmt.Errorf("amount must be positive, got %v", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == "" {
		return Receipt{}, ErrNoWallet
	}
	if s.balances[s.active] < amount {
		return Receipt{}, fmt.Errorf("insufficient balance: have %v, need %v", s.balances[s.active], amount)
	}

	s.balances[s.active] -= amount
	s.balances[to] += amount

	tx := simTx{
		id:          newTxID(),
		from:        s.active,
		to:          to,
		amount:      amount,
		submittedAt: time.Now(),
	}
	s.txs[tx.id] = tx

	s.log.WithField("tx_id", tx.id).
		WithField("to", to).
		Infof("transaction submitted for %.2f", amount)
	return Receipt{TransactionID: tx.id, Status: StatusPending, Timestamp: tx.submittedAt.UTC()}, nil
}

func (s *Simulator) RequestFaucet(ctx context.Context, address string) (bool, error) {
	if err := s.sleep(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.faucets[address]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(s.cfg.FaucetEvery), 1)
		s.faucets[address] = limiter
	}
	if !limiter.Allow() {
		return false, ErrFaucetExhausted
	}

	s.balances[address] += s.cfg.FaucetAmount
	s.log.WithField("address", address).Infof("faucet credited %.2f", s.cfg.FaucetAmount)
	return true, nil
}

func (s *Simulator) GetTransactionStatus(ctx context.Context, transactionID string) (TxStatus, error) {
	if err := s.sleep(ctx); err != nil {
		return TxStatus{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[transactionID]
	if !ok {
		return TxStatus{}, fmt.Errorf("%w: unknown transaction %s", ErrUnavailable, transactionID)
	}

	elapsed := time.Since(tx.submittedAt)
	confirmations := int(elapsed / s.cfg.BlockTime)
	status := StatusPending
	if elapsed >= s.cfg.ConfirmAfter {
		status = StatusConfirmed
	}
	return TxStatus{Status: status, Confirmations: confirmations}, nil
}

// newTxID returns a chain-shaped transaction hash.
func newTxID() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return "0x" + hex.EncodeToString(raw)
}
