package onchain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ActionRecord is the persisted trace of an orchestrated action. It keeps
// enough to tell, after the fact, whether a fee was paid for a call that never
// confirmed.
type ActionRecord struct {
	ID           string         `json:"id"`
	Kind         ActionKind     `json:"kind"`
	ItemID       string         `json:"item_id"`
	From         common.Address `json:"from"`
	Target       common.Address `json:"target"`
	State        WorkflowState  `json:"state"`
	FeeTxHash    *common.Hash   `json:"fee_tx_hash,omitempty"`
	FeeConfirmed bool           `json:"fee_confirmed"`
	CallTxHash   *common.Hash   `json:"call_tx_hash,omitempty"`
	TokenID      *big.Int       `json:"token_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Unfulfilled reports whether the fee was paid but the call didn't land
func (r *ActionRecord) Unfulfilled() bool {
	return r.State == StateFailed && r.FeeConfirmed
}

// NewActionRecord snapshots a workflow
func NewActionRecord(w *WorkflowContext) *ActionRecord {
	r := &ActionRecord{
		ID:           w.ID,
		Kind:         w.Kind,
		ItemID:       w.ItemID,
		From:         w.From,
		Target:       w.Target,
		State:        w.State,
		FeeConfirmed: w.FeeConfirmed,
		CreatedAt:    w.StartedAt,
		UpdatedAt:    w.UpdatedAt,
	}
	if w.FeeTx != nil {
		h := w.FeeTx.Hash
		r.FeeTxHash = &h
	}
	if w.CallTx != nil {
		h := w.CallTx.Hash
		r.CallTxHash = &h
	}
	if w.TokenID != nil {
		r.TokenID = new(big.Int).Set(w.TokenID)
	}
	if w.Err != nil {
		r.Error = w.Err.Error()
	}
	return r
}

func (r *ActionRecord) clone() *ActionRecord {
	c := *r
	if r.FeeTxHash != nil {
		h := *r.FeeTxHash
		c.FeeTxHash = &h
	}
	if r.CallTxHash != nil {
		h := *r.CallTxHash
		c.CallTxHash = &h
	}
	if r.TokenID != nil {
		c.TokenID = new(big.Int).Set(r.TokenID)
	}
	return &c
}

// MemoryActionStore is an in-process ActionStore
type MemoryActionStore struct {
	mu      sync.RWMutex
	records map[string]*ActionRecord
}

// NewMemoryActionStore creates an empty store
func NewMemoryActionStore() *MemoryActionStore {
	return &MemoryActionStore{records: make(map[string]*ActionRecord)}
}

func (s *MemoryActionStore) Save(ctx context.Context, record *ActionRecord) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("action record without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record.clone()
	return nil
}

func (s *MemoryActionStore) Get(ctx context.Context, id string) (*ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return r.clone(), nil
}

func (s *MemoryActionStore) List(ctx context.Context) ([]*ActionRecord, error) {
	s.mu.RLock()
	out := make([]*ActionRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MemoryLocalStore is an in-process LocalStore
type MemoryLocalStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryLocalStore creates an empty store
func NewMemoryLocalStore() *MemoryLocalStore {
	return &MemoryLocalStore{values: make(map[string][]byte)}
}

func (s *MemoryLocalStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryLocalStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

var (
	_ ActionStore = (*MemoryActionStore)(nil)
	_ LocalStore  = (*MemoryLocalStore)(nil)
)
