package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ReLoop-Network/market_layer/internal/app/domain/ledgertx"
	"github.com/ReLoop-Network/market_layer/internal/app/metrics"
	"github.com/ReLoop-Network/market_layer/internal/app/storage"
)

// TxRequest describes an outgoing transfer from the connected wallet.
type TxRequest struct {
	To      string
	Amount  float64
	Payload []byte
	JobID   string
}

// Send submits a transfer from the connected wallet and appends a pending
// record to the transaction log. A failed send surfaces as failed and is
// never resubmitted automatically; retrying a mutating ledger call risks the
// double-spend the log exists to prevent.
func (s *Service) Send(ctx context.Context, transactions storage.TransactionStore, req TxRequest) (ledgertx.Record, error) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if !sess.Connected {
		return ledgertx.Record{}, ErrNotConnected
	}
	if strings.TrimSpace(req.To) == "" {
		return ledgertx.Record{}, fmt.Errorf("recipient address is required")
	}
	if req.Amount <= 0 {
		return ledgertx.Record{}, fmt.Errorf("amount must be positive, got %v", req.Amount)
	}

	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := s.client.SendTransaction(cctx, req.To, req.Amount, req.Payload)
	metrics.ObserveLedgerCall("send_transaction", start)
	if err != nil {
		return ledgertx.Record{}, fmt.Errorf("send transaction: %w", err)
	}

	rec, err := transactions.AppendTransaction(ctx, ledgertx.Record{
		ID:        receipt.TransactionID,
		Type:      ledgertx.TypeSend,
		From:      sess.Address,
		To:        req.To,
		Amount:    req.Amount,
		Status:    ledgertx.StatusPending,
		JobID:     req.JobID,
		Timestamp: receipt.Timestamp,
	})
	if err != nil {
		return ledgertx.Record{}, fmt.Errorf("record transaction: %w", err)
	}

	s.log.WithField("tx_id", rec.ID).
		WithField("to", req.To).
		Infof("sent %.2f tokens", req.Amount)

	// The balance changed; refresh eagerly rather than waiting a poll cycle.
	if _, err := s.RefreshBalance(ctx); err != nil {
		s.log.WithError(err).Debug("post-send balance refresh failed")
	}
	return rec, nil
}
