package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newSim() *Simulator {
	return NewSimulator(SimulatorConfig{
		Latency:      time.Millisecond,
		ConfirmAfter: 20 * time.Millisecond,
		BlockTime:    10 * time.Millisecond,
		FaucetAmount: 50,
		FaucetEvery:  time.Hour,
	}, nil)
}

func TestCreateWalletAndFaucet(t *testing.T) {
	ctx := context.Background()
	sim := newSim()

	if _, err := sim.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	w, err := sim.CreateWallet(ctx)
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if w.Address == "" || w.Mnemonic == "" {
		t.Fatalf("incomplete wallet: %+v", w)
	}
	if w.Balance != 0 {
		t.Fatalf("fresh wallet balance = %v, want 0", w.Balance)
	}

	ok, err := sim.RequestFaucet(ctx, w.Address)
	if err != nil || !ok {
		t.Fatalf("RequestFaucet failed: ok=%v err=%v", ok, err)
	}
	balance, err := sim.GetBalance(ctx, w.Address)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance != 50 {
		t.Fatalf("balance after faucet = %v, want 50", balance)
	}

	// The allowance is rate limited per address.
	if _, err := sim.RequestFaucet(ctx, w.Address); !errors.Is(err, ErrFaucetExhausted) {
		t.Fatalf("second faucet call = %v, want ErrFaucetExhausted", err)
	}
}

func TestConnectExistingNeedsWallet(t *testing.T) {
	ctx := context.Background()
	sim := newSim()

	if _, err := sim.ConnectExisting(ctx); !errors.Is(err, ErrNoWallet) {
		t.Fatalf("error = %v, want ErrNoWallet", err)
	}

	w, err := sim.CreateWallet(ctx)
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	got, err := sim.ConnectExisting(ctx)
	if err != nil {
		t.Fatalf("ConnectExisting failed: %v", err)
	}
	if got.Address != w.Address {
		t.Fatalf("reconnected address = %q, want %q", got.Address, w.Address)
	}
}

func TestSendTransactionMovesFunds(t *testing.T) {
	ctx := context.Background()
	sim := newSim()

	w, err := sim.CreateWallet(ctx)
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if _, err := sim.RequestFaucet(ctx, w.Address); err != nil {
		t.Fatalf("RequestFaucet failed: %v", err)
	}

	// Overdraft is rejected before any state changes.
	if _, err := sim.SendTransaction(ctx, "Mrecipient", 1000, nil); err == nil {
		t.Fatal("overdraft accepted")
	}

	receipt, err := sim.SendTransaction(ctx, "Mrecipient", 20, nil)
	if err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}
	if !strings.HasPrefix(receipt.TransactionID, "0x") || len(receipt.TransactionID) != 66 {
		t.Fatalf("transaction id %q is not a 32-byte hash", receipt.TransactionID)
	}
	if receipt.Status != StatusPending {
		t.Fatalf("receipt status = %s, want pending", receipt.Status)
	}

	from, _ := sim.GetBalance(ctx, w.Address)
	to, _ := sim.GetBalance(ctx, "Mrecipient")
	if from != 30 || to != 20 {
		t.Fatalf("balances after send = %v/%v, want 30/20", from, to)
	}
}

func TestTransactionConfirmsOverTime(t *testing.T) {
	ctx := context.Background()
	sim := newSim()

	w, _ := sim.CreateWallet(ctx)
	sim.RequestFaucet(ctx, w.Address)
	receipt, err := sim.SendTransaction(ctx, "Mrecipient", 5, nil)
	if err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}

	var status TxStatus
	deadline := time.Now().Add(2 * time.Second)
	for {
		var err error
		status, err = sim.GetTransactionStatus(ctx, receipt.TransactionID)
		if err != nil {
			t.Fatalf("GetTransactionStatus failed: %v", err)
		}
		if status.Status == StatusConfirmed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("transaction never confirmed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if status.Confirmations < 1 {
		t.Fatalf("confirmations = %d, want at least 1", status.Confirmations)
	}
}

func TestTransactionStaysPendingBeforeThreshold(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator(SimulatorConfig{
		Latency:      time.Millisecond,
		ConfirmAfter: time.Hour,
		FaucetAmount: 50,
	}, nil)

	w, _ := sim.CreateWallet(ctx)
	sim.RequestFaucet(ctx, w.Address)
	receipt, err := sim.SendTransaction(ctx, "Mrecipient", 5, nil)
	if err != nil {
		t.Fatalf("SendTransaction failed: %v", err)
	}

	status, err := sim.GetTransactionStatus(ctx, receipt.TransactionID)
	if err != nil {
		t.Fatalf("GetTransactionStatus failed: %v", err)
	}
	if status.Status != StatusPending {
		t.Fatalf("status = %s, want pending before threshold", status.Status)
	}
}

func TestUnknownTransactionStatus(t *testing.T) {
	if _, err := newSim().GetTransactionStatus(context.Background(), "0xdead"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestCallsHonorCancellation(t *testing.T) {
	sim := NewSimulator(SimulatorConfig{Latency: time.Minute}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := sim.GetBalance(ctx, "Maddr")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("call blocked %v past its deadline", elapsed)
	}
}
