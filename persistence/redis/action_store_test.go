package redis

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	onchain "github.com/basenote/onchain"
)

func newTestRecord(id string, state onchain.WorkflowState, createdAt time.Time) *onchain.ActionRecord {
	return &onchain.ActionRecord{
		ID:        id,
		Kind:      onchain.ActionMintNote,
		ItemID:    "note-" + id,
		From:      common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Target:    common.HexToAddress("0x0987654321098765432109876543210987654321"),
		State:     state,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestActionStore_SaveAndGet(t *testing.T) {
	client := testRedisClient(t)

	store := NewActionStore(client, WithActionStoreKeyPrefix("test"))
	ctx := context.Background()

	feeHash := common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	callHash := common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")
	record := newTestRecord("a1", onchain.StateDone, time.Unix(1700000000, 123))
	record.FeeTxHash = &feeHash
	record.FeeConfirmed = true
	record.CallTxHash = &callHash
	record.TokenID = big.NewInt(42)

	require.NoError(t, store.Save(ctx, record))

	retrieved, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, record.ID, retrieved.ID)
	assert.Equal(t, record.Kind, retrieved.Kind)
	assert.Equal(t, record.ItemID, retrieved.ItemID)
	assert.Equal(t, record.From, retrieved.From)
	assert.Equal(t, record.Target, retrieved.Target)
	assert.Equal(t, record.State, retrieved.State)
	assert.Equal(t, feeHash, *retrieved.FeeTxHash)
	assert.True(t, retrieved.FeeConfirmed)
	assert.Equal(t, callHash, *retrieved.CallTxHash)
	assert.Equal(t, 0, retrieved.TokenID.Cmp(big.NewInt(42)))
	assert.True(t, record.CreatedAt.Equal(retrieved.CreatedAt))
}

func TestActionStore_GetNotFound(t *testing.T) {
	client := testRedisClient(t)

	store := NewActionStore(client)

	record, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, onchain.ErrRecordNotFound)
	assert.Nil(t, record)
}

func TestActionStore_SaveRequiresID(t *testing.T) {
	client := testRedisClient(t)

	store := NewActionStore(client)
	assert.Error(t, store.Save(context.Background(), &onchain.ActionRecord{}))
}

func TestActionStore_Update(t *testing.T) {
	client := testRedisClient(t)

	store := NewActionStore(client)
	ctx := context.Background()

	record := newTestRecord("a1", onchain.StatePayingFee, time.Now())
	require.NoError(t, store.Save(ctx, record))

	record.State = onchain.StateFailed
	record.Error = "user rejected"
	require.NoError(t, store.Save(ctx, record))

	retrieved, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, onchain.StateFailed, retrieved.State)
	assert.Equal(t, "user rejected", retrieved.Error)
}

func TestActionStore_TerminalStateNotOverwritten(t *testing.T) {
	client := testRedisClient(t)

	store := NewActionStore(client)
	ctx := context.Background()

	done := newTestRecord("a1", onchain.StateDone, time.Now())
	require.NoError(t, store.Save(ctx, done))

	stale := newTestRecord("a1", onchain.StateWaitingCallReceipt, time.Now())
	require.NoError(t, store.Save(ctx, stale))

	retrieved, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, onchain.StateDone, retrieved.State)
}

func TestActionStore_ListOrderedByCreation(t *testing.T) {
	client := testRedisClient(t)

	store := NewActionStore(client)
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, store.Save(ctx, newTestRecord("third", onchain.StateDone, base.Add(2*time.Second))))
	require.NoError(t, store.Save(ctx, newTestRecord("first", onchain.StateFailed, base)))
	require.NoError(t, store.Save(ctx, newTestRecord("second", onchain.StatePayingFee, base.Add(time.Second))))

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "first", records[0].ID)
	assert.Equal(t, "second", records[1].ID)
	assert.Equal(t, "third", records[2].ID)
}

func TestActionStore_ListEmpty(t *testing.T) {
	client := testRedisClient(t)

	records, err := NewActionStore(client).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestActionStore_ListDropsExpired(t *testing.T) {
	client := testRedisClient(t)

	store := NewActionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newTestRecord("kept", onchain.StateDone, time.Now())))
	require.NoError(t, store.Save(ctx, newTestRecord("gone", onchain.StateDone, time.Now().Add(time.Second))))
	require.NoError(t, client.Del(ctx, actionKeyPrefix+"gone").Err())

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].ID)

	count, err := client.ZCard(ctx, actionCreatedAtSorted).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestActionStore_WithKeyPrefix(t *testing.T) {
	client := testRedisClient(t)

	ctx := context.Background()
	storeA := NewActionStore(client, WithActionStoreKeyPrefix("app-a"))
	storeB := NewActionStore(client, WithActionStoreKeyPrefix("app-b"))

	require.NoError(t, storeA.Save(ctx, newTestRecord("a1", onchain.StateDone, time.Now())))

	_, err := storeB.Get(ctx, "a1")
	assert.ErrorIs(t, err, onchain.ErrRecordNotFound)

	exists, err := client.Exists(ctx, "app-a:"+actionKeyPrefix+"a1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestActionStore_WithTTL(t *testing.T) {
	client := testRedisClient(t)

	store := NewActionStore(client, WithActionStoreTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newTestRecord("a1", onchain.StateDone, time.Now())))

	ttl, err := client.TTL(ctx, actionKeyPrefix+"a1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)
}

func TestActionStore_ConcurrentSaves(t *testing.T) {
	client := testRedisClient(t)

	store := NewActionStore(client)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record := newTestRecord(fmt.Sprintf("r%02d", i), onchain.StateDone, time.Now())
			assert.NoError(t, store.Save(ctx, record))
		}(i)
	}
	wg.Wait()

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 20)
}
