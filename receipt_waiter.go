package onchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	DefaultReceiptTimeout      = 120 * time.Second
	DefaultReceiptPollInterval = 1500 * time.Millisecond
)

// ReceiptWaiter polls the wallet for transaction receipts
type ReceiptWaiter struct {
	transport    WalletTransport
	pollInterval time.Duration
	timeout      time.Duration
}

// ReceiptWaiterOption configures a ReceiptWaiter
type ReceiptWaiterOption func(*ReceiptWaiter)

// WithPollInterval sets the delay between two receipt polls
func WithPollInterval(interval time.Duration) ReceiptWaiterOption {
	return func(w *ReceiptWaiter) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithDefaultTimeout sets the bound used when WaitForReceipt gets a zero timeout
func WithDefaultTimeout(timeout time.Duration) ReceiptWaiterOption {
	return func(w *ReceiptWaiter) {
		if timeout > 0 {
			w.timeout = timeout
		}
	}
}

// NewReceiptWaiter creates a waiter with a 120s timeout and 1.5s poll interval
func NewReceiptWaiter(transport WalletTransport, opts ...ReceiptWaiterOption) *ReceiptWaiter {
	w := &ReceiptWaiter{
		transport:    transport,
		pollInterval: DefaultReceiptPollInterval,
		timeout:      DefaultReceiptTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WaitForReceipt polls eth_getTransactionReceipt until the transaction is
// mined or timeout elapses. A zero timeout uses the waiter's default.
// Errors from the wallet abort the wait.
func (w *ReceiptWaiter) WaitForReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	if w.transport == nil {
		return nil, ErrNoWallet
	}
	if timeout <= 0 {
		timeout = w.timeout
	}

	start := time.Now()
	polls := 0
	for time.Since(start) < timeout {
		polls++
		receipt, err := w.fetchReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			logger.WithFields(logger.Fields{
				"tx_hash": hash.Hex(),
				"status":  receipt.Status,
				"block":   receipt.BlockNumber,
				"polls":   polls,
			}).Debug("Transaction receipt received")
			return receipt, nil
		}

		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, errors.Join(ErrTimeout, fmt.Errorf("tx %s not mined after %s (%d polls)", hash.Hex(), timeout, polls))
}

func (w *ReceiptWaiter) fetchReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	raw, err := w.transport.Request(ctx, "eth_getTransactionReceipt", hash)
	if err != nil {
		return nil, fmt.Errorf("couldn't get receipt of %s: %w", hash.Hex(), classifyProviderError(err))
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var receipt types.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, errors.Join(ErrDecodingFailure, fmt.Errorf("receipt of %s: %w", hash.Hex(), err))
	}
	return &receipt, nil
}
