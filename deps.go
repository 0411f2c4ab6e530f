// deps.go defines minimal interfaces for external dependencies.
// This allows for easy mocking in tests and decouples the core from specific wallet,
// price feed and storage implementations.
package onchain

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// WalletTransport is the request/response surface of a wallet provider
// (EIP-1193 `request`). Implementations must return provider errors as values
// satisfying rpc.Error so that codes like 4001 and 4902 can be recognised.
type WalletTransport interface {
	// Request sends a JSON-RPC style request and returns the raw result.
	// A JSON null result is returned as the literal "null" or as an empty message.
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// ExchangeRateSource returns the fiat price of one whole unit of the native asset.
// Implementations never fail; they fall back to a fixed rate instead.
type ExchangeRateSource interface {
	GetExchangeRate(ctx context.Context) decimal.Decimal
}

// LocalStore is the key-value store holding the user's lists (notes, todos,
// investments). It is owned by the application, the core only reads and writes
// the keys it is told about.
type LocalStore interface {
	// Get returns the value for key. found is false when the key doesn't exist.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set stores value under key.
	Set(ctx context.Context, key string, value []byte) error
}

// ActionStore persists workflow records so that interrupted or paid-but-unfulfilled
// actions can be found after the fact.
type ActionStore interface {
	// Save creates or replaces the record.
	Save(ctx context.Context, record *ActionRecord) error
	// Get returns ErrRecordNotFound if the record doesn't exist.
	Get(ctx context.Context, id string) (*ActionRecord, error)
	// List returns all records ordered by creation time, oldest first.
	List(ctx context.Context) ([]*ActionRecord, error)
}

// isNullResult reports whether a provider result is empty or JSON null.
func isNullResult(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
