package onchain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Mock Implementations
// ============================================================

// mockCall is one request seen by mockWallet
type mockCall struct {
	Method string
	Params []any
}

// mockWallet implements WalletTransport for testing. It behaves like a wallet
// already connected to Base: accounts are returned without prompting, network
// switches succeed, and every sent transaction gets a successful empty receipt
// unless a hook says otherwise.
type mockWallet struct {
	mu sync.Mutex

	Accounts []common.Address
	ChainID  uint64

	// Function hooks - set these to customize behavior. A hook for a method
	// replaces the default handling entirely.
	Handlers map[string]func(params []any) (any, error)
	// ReceiptFn builds the receipt for a sent tx. Return nil to leave it pending.
	ReceiptFn func(hash common.Hash, tx sendTxArgs) *types.Receipt

	// Call tracking for assertions
	Calls    []mockCall
	Sent     []sendTxArgs
	receipts map[common.Hash]*types.Receipt
	nextHash int64
}

var testAccount = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func newMockWallet() *mockWallet {
	return &mockWallet{
		Accounts: []common.Address{testAccount},
		ChainID:  BaseMainnetChainID,
		Handlers: map[string]func(params []any) (any, error){},
		receipts: map[common.Hash]*types.Receipt{},
	}
}

func (m *mockWallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, mockCall{Method: method, Params: params})
	handler := m.Handlers[method]
	m.mu.Unlock()

	var (
		result any
		err    error
	)
	if handler != nil {
		result, err = handler(params)
	} else {
		result, err = m.handle(method, params)
	}
	if err != nil {
		return nil, err
	}
	if raw, ok := result.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(result)
}

func (m *mockWallet) handle(method string, params []any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch method {
	case "eth_requestAccounts", "eth_accounts":
		out := make([]string, len(m.Accounts))
		for i, a := range m.Accounts {
			out[i] = a.Hex()
		}
		return out, nil
	case "eth_chainId":
		return hexutil.EncodeUint64(m.ChainID), nil
	case "wallet_switchEthereumChain":
		p := params[0].([]switchChainParams)
		id, err := hexutil.DecodeUint64(p[0].ChainID)
		if err != nil {
			return nil, err
		}
		m.ChainID = id
		return nil, nil
	case "wallet_addEthereumChain":
		return nil, nil
	case "eth_sendTransaction":
		tx := params[0].(sendTxArgs)
		m.nextHash++
		hash := common.BigToHash(big.NewInt(m.nextHash))
		m.Sent = append(m.Sent, tx)
		receipt := successReceipt(hash)
		if m.ReceiptFn != nil {
			receipt = m.ReceiptFn(hash, tx)
		}
		if receipt != nil {
			m.receipts[hash] = receipt
		}
		return hash, nil
	case "eth_getTransactionReceipt":
		hash := params[0].(common.Hash)
		receipt, ok := m.receipts[hash]
		if !ok {
			return json.RawMessage("null"), nil
		}
		return receipt, nil
	case "eth_call":
		return hexutil.Bytes{}, nil
	}
	return nil, fmt.Errorf("mock wallet: unexpected method %s", method)
}

// SetReceipt makes hash resolve to receipt
func (m *mockWallet) SetReceipt(hash common.Hash, receipt *types.Receipt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[hash] = receipt
}

// CallsTo returns the calls made for method
func (m *mockWallet) CallsTo(method string) []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockCall
	for _, c := range m.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Methods returns the method names in call order
func (m *mockWallet) Methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Method
	}
	return out
}

func (m *mockWallet) SentTxs() []sendTxArgs {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sendTxArgs(nil), m.Sent...)
}

// mockRates implements ExchangeRateSource for testing
type mockRates struct {
	rate  decimal.Decimal
	calls int
}

func (m *mockRates) GetExchangeRate(ctx context.Context) decimal.Decimal {
	m.calls++
	return m.rate
}

func fixedRate(rate string) *mockRates {
	return &mockRates{rate: decimal.RequireFromString(rate)}
}

// failingActionStore is an ActionStore whose Save always fails
type failingActionStore struct {
	*MemoryActionStore
}

func (s failingActionStore) Save(ctx context.Context, record *ActionRecord) error {
	return fmt.Errorf("store unavailable")
}

// ============================================================
// Test Helpers
// ============================================================

// successReceipt returns a mined receipt with status 1 and no logs. Logs and
// topics must be non nil for the receipt to survive a JSON round trip.
func successReceipt(hash common.Hash, logs ...*types.Log) *types.Receipt {
	if logs == nil {
		logs = []*types.Log{}
	}
	for _, l := range logs {
		if l.Topics == nil {
			l.Topics = []common.Hash{}
		}
		if l.Data == nil {
			l.Data = []byte{}
		}
		l.TxHash = hash
	}
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: big.NewInt(100),
		GasUsed:     21000,
		Logs:        logs,
	}
}

func revertedReceipt(hash common.Hash) *types.Receipt {
	r := successReceipt(hash)
	r.Status = types.ReceiptStatusFailed
	return r
}

// noteMintedLog builds the NoteMinted event log of the NFT contract
func noteMintedLog(t *testing.T, owner common.Address, tokenID int64, tokenURI string) *types.Log {
	t.Helper()
	event := NoteNFTABI.Events[EventNoteMinted]
	data, err := event.Inputs.NonIndexed().Pack(tokenURI)
	require.NoError(t, err)
	return &types.Log{
		Address: testNFTAddress,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(owner.Bytes()),
			common.BigToHash(big.NewInt(tokenID)),
		},
		Data: data,
	}
}

// transferLog builds an ERC-721 Transfer log
func transferLog(from, to common.Address, tokenID int64) *types.Log {
	return &types.Log{
		Address: testNFTAddress,
		Topics: []common.Hash{
			NoteNFTABI.Events[EventTransfer].ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			common.BigToHash(big.NewInt(tokenID)),
		},
		Data: []byte{},
	}
}

var (
	testNFTAddress     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	testStorageAddress = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	testFeeRecipient   = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

// testConfig returns a configuration with both contracts set and the default fees
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NFTAddress = testNFTAddress.Hex()
	cfg.StorageAddress = testStorageAddress.Hex()
	cfg.FeeRecipient = testFeeRecipient.Hex()
	return cfg
}

// newTestOrchestrator builds an orchestrator on wallet with a connected session,
// a fixed rate of 3000 and fast receipt polling.
func newTestOrchestrator(t *testing.T, wallet *mockWallet, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	base := []OrchestratorOption{
		WithConfig(testConfig()),
		WithExchangeRateSource(fixedRate("3000")),
		WithReceiptPollInterval(time.Millisecond),
		WithReceiptTimeout(time.Second),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	}
	o := NewOrchestrator(wallet, append(base, opts...)...)
	require.NoError(t, o.Connect(context.Background()))
	return o
}
