package redis

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	onchain "github.com/basenote/onchain"
)

// Key prefixes for action record storage
const (
	// record data by id
	actionKeyPrefix = "basenote:action:"

	// sorted set of ids by creation time
	actionCreatedAtSorted = "basenote:action:created_at"
)

// ActionStore provides Redis-based persistence for action records.
// It implements the onchain.ActionStore interface.
type ActionStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// ActionStoreOption configures an ActionStore.
type ActionStoreOption func(*ActionStore)

// WithActionStoreKeyPrefix sets a custom prefix for all Redis keys.
// Useful for multi-tenant deployments sharing the same Redis instance.
func WithActionStoreKeyPrefix(prefix string) ActionStoreOption {
	return func(s *ActionStore) {
		s.keyPrefix = prefix
	}
}

// WithActionStoreTTL expires record data after ttl. Expired ids are dropped
// from the index lazily by List.
func WithActionStoreTTL(ttl time.Duration) ActionStoreOption {
	return func(s *ActionStore) {
		s.ttl = ttl
	}
}

// NewActionStore creates a new Redis-based action store.
func NewActionStore(client redis.UniversalClient, opts ...ActionStoreOption) *ActionStore {
	s := &ActionStore{
		client: client,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// key returns the full Redis key with optional prefix.
func (s *ActionStore) key(parts ...string) string {
	key := strings.Join(parts, "")
	if s.keyPrefix != "" {
		return s.keyPrefix + ":" + key
	}
	return key
}

// actionRecordData is the JSON-serializable form of onchain.ActionRecord
type actionRecordData struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	ItemID       string `json:"item_id"`
	From         string `json:"from"`
	Target       string `json:"target"`
	State        string `json:"state"`
	FeeTxHash    string `json:"fee_tx_hash,omitempty"`
	FeeConfirmed bool   `json:"fee_confirmed"`
	CallTxHash   string `json:"call_tx_hash,omitempty"`
	TokenID      string `json:"token_id,omitempty"`
	Error        string `json:"error,omitempty"`
	CreatedAt    int64  `json:"created_at"` // Nanoseconds
	UpdatedAt    int64  `json:"updated_at"` // Nanoseconds
}

// Save creates or replaces a record. A record that already reached a terminal
// state is never moved back to a running one.
func (s *ActionStore) Save(ctx context.Context, record *onchain.ActionRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("action record without id")
	}
	recordKey := s.key(actionKeyPrefix, record.ID)

	data, err := serializeActionRecord(record)
	if err != nil {
		return fmt.Errorf("failed to serialize action record: %w", err)
	}

	const maxRetries = 10
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		// Exponential backoff with jitter on retries
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(backoff/2 + 1)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			existingData, err := rtx.Get(ctx, recordKey).Bytes()
			if err != nil && err != redis.Nil {
				return fmt.Errorf("failed to get existing action record: %w", err)
			}
			if err != redis.Nil {
				existing, parseErr := deserializeActionRecord(existingData)
				if parseErr == nil && existing.State.Terminal() && !record.State.Terminal() {
					return nil
				}
			}

			_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, recordKey, data, s.ttl)
				pipe.ZAdd(ctx, s.key(actionCreatedAtSorted), redis.Z{
					Score:  float64(record.CreatedAt.UnixMilli()),
					Member: record.ID,
				})
				return nil
			})
			return err
		}, recordKey)

		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			// Optimistic lock failed, retry
			lastErr = err
			continue
		}
		return err
	}

	return fmt.Errorf("failed to save action record after %d retries: %w", maxRetries, lastErr)
}

// Get retrieves a record by id, onchain.ErrRecordNotFound if it doesn't exist.
func (s *ActionStore) Get(ctx context.Context, id string) (*onchain.ActionRecord, error) {
	data, err := s.client.Get(ctx, s.key(actionKeyPrefix, id)).Bytes()
	if err == redis.Nil {
		return nil, onchain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action record: %w", err)
	}
	return deserializeActionRecord(data)
}

// List returns all records, oldest first.
func (s *ActionStore) List(ctx context.Context) ([]*onchain.ActionRecord, error) {
	ids, err := s.client.ZRange(ctx, s.key(actionCreatedAtSorted), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list action records: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(actionKeyPrefix, id)
	}
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get action records: %w", err)
	}

	records := make([]*onchain.ActionRecord, 0, len(results))
	var expired []any
	var deserializeErrors []string

	for i, result := range results {
		if result == nil {
			// Record expired, drop it from the index
			expired = append(expired, ids[i])
			continue
		}
		data, ok := result.(string)
		if !ok {
			deserializeErrors = append(deserializeErrors, fmt.Sprintf("id %s: unexpected type %T", ids[i], result))
			continue
		}
		record, err := deserializeActionRecord([]byte(data))
		if err != nil {
			deserializeErrors = append(deserializeErrors, fmt.Sprintf("id %s: %v", ids[i], err))
			continue
		}
		records = append(records, record)
	}

	if len(expired) > 0 {
		_ = s.client.ZRem(ctx, s.key(actionCreatedAtSorted), expired...).Err()
	}

	// Return partial results with error if there were deserialization failures
	if len(deserializeErrors) > 0 {
		return records, fmt.Errorf("failed to deserialize %d action records: %s", len(deserializeErrors), strings.Join(deserializeErrors, "; "))
	}
	return records, nil
}

func serializeActionRecord(r *onchain.ActionRecord) ([]byte, error) {
	data := actionRecordData{
		ID:           r.ID,
		Kind:         string(r.Kind),
		ItemID:       r.ItemID,
		From:         r.From.Hex(),
		Target:       r.Target.Hex(),
		State:        string(r.State),
		FeeConfirmed: r.FeeConfirmed,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt.UnixNano(),
		UpdatedAt:    r.UpdatedAt.UnixNano(),
	}
	if r.FeeTxHash != nil {
		data.FeeTxHash = r.FeeTxHash.Hex()
	}
	if r.CallTxHash != nil {
		data.CallTxHash = r.CallTxHash.Hex()
	}
	if r.TokenID != nil {
		data.TokenID = r.TokenID.String()
	}
	return json.Marshal(data)
}

func deserializeActionRecord(raw []byte) (*onchain.ActionRecord, error) {
	var data actionRecordData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action record: %w", err)
	}

	r := &onchain.ActionRecord{
		ID:           data.ID,
		Kind:         onchain.ActionKind(data.Kind),
		ItemID:       data.ItemID,
		From:         common.HexToAddress(data.From),
		Target:       common.HexToAddress(data.Target),
		State:        onchain.WorkflowState(data.State),
		FeeConfirmed: data.FeeConfirmed,
		Error:        data.Error,
		CreatedAt:    time.Unix(0, data.CreatedAt),
		UpdatedAt:    time.Unix(0, data.UpdatedAt),
	}
	if data.FeeTxHash != "" {
		h := common.HexToHash(data.FeeTxHash)
		r.FeeTxHash = &h
	}
	if data.CallTxHash != "" {
		h := common.HexToHash(data.CallTxHash)
		r.CallTxHash = &h
	}
	if data.TokenID != "" {
		tokenID, ok := new(big.Int).SetString(data.TokenID, 10)
		if !ok {
			return nil, fmt.Errorf("invalid token id %q", data.TokenID)
		}
		r.TokenID = tokenID
	}
	return r, nil
}

var _ onchain.ActionStore = (*ActionStore)(nil)
