package onchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SessionState is a point-in-time view of the wallet session.
// Nil fields mean "unknown / not connected".
type SessionState struct {
	Address *common.Address
	ChainID *uint64
}

// Session is the wallet connection layer. It is populated by Connect (explicit,
// may prompt the user) or Reconnect (silent), kept current by the provider's
// accountsChanged / chainChanged events and cleared by Disconnect.
//
// Workflows only read it.
type Session struct {
	mu        sync.RWMutex
	transport WalletTransport
	address   *common.Address
	chainID   *uint64
}

// NewSession creates a disconnected session for the given wallet transport.
// A nil transport means no wallet is installed.
func NewSession(transport WalletTransport) *Session {
	return &Session{transport: transport}
}

// HasWallet reports whether a wallet provider is present
func (s *Session) HasWallet() bool {
	return s.transport != nil
}

// Snapshot returns a copy of the current session state
func (s *Session) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := SessionState{}
	if s.address != nil {
		addr := *s.address
		state.Address = &addr
	}
	if s.chainID != nil {
		id := *s.chainID
		state.ChainID = &id
	}
	return state
}

// Address returns the connected address, if any
func (s *Session) Address() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.address == nil {
		return common.Address{}, false
	}
	return *s.address, true
}

// IsConnected reports whether an account is connected
func (s *Session) IsConnected() bool {
	_, ok := s.Address()
	return ok
}

// Connect asks the wallet for account access (eth_requestAccounts), which may
// show a wallet prompt, then reads the current chain.
func (s *Session) Connect(ctx context.Context) error {
	if s.transport == nil {
		return ErrNoWallet
	}
	accounts, err := requestAccounts(ctx, s.transport, "eth_requestAccounts")
	if err != nil {
		return fmt.Errorf("couldn't connect wallet: %w", err)
	}
	if len(accounts) == 0 {
		return ErrNotConnected
	}
	s.setAddress(&accounts[0])

	chainID, err := readChainID(ctx, s.transport)
	if err != nil {
		return fmt.Errorf("couldn't read wallet chain: %w", err)
	}
	s.setChainID(&chainID)

	logger.WithFields(logger.Fields{
		"address":  accounts[0].Hex(),
		"chain_id": chainID,
	}).Info("Wallet connected")
	return nil
}

// Reconnect restores a session the user already authorised, without prompting.
// It is a no-op when no account is authorised.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.transport == nil {
		return ErrNoWallet
	}
	accounts, err := requestAccounts(ctx, s.transport, "eth_accounts")
	if err != nil {
		return fmt.Errorf("couldn't read authorised accounts: %w", err)
	}
	if len(accounts) > 0 {
		s.setAddress(&accounts[0])
	}
	chainID, err := readChainID(ctx, s.transport)
	if err != nil {
		return fmt.Errorf("couldn't read wallet chain: %w", err)
	}
	s.setChainID(&chainID)
	return nil
}

// HandleAccountsChanged applies the provider's accountsChanged event.
func (s *Session) HandleAccountsChanged(accounts []string) error {
	if len(accounts) == 0 {
		s.setAddress(nil)
		return nil
	}
	if !common.IsHexAddress(accounts[0]) {
		return fmt.Errorf("invalid account %q in accountsChanged event", accounts[0])
	}
	addr := common.HexToAddress(accounts[0])
	s.setAddress(&addr)
	return nil
}

// HandleChainChanged applies the provider's chainChanged event (hex chain id).
func (s *Session) HandleChainChanged(chainIDHex string) error {
	chainID, err := hexutil.DecodeUint64(chainIDHex)
	if err != nil {
		return fmt.Errorf("invalid chain id %q in chainChanged event: %w", chainIDHex, err)
	}
	s.setChainID(&chainID)
	return nil
}

// Disconnect forgets the connected account. The chain id is kept, it still
// describes the wallet.
func (s *Session) Disconnect() {
	s.setAddress(nil)
}

func (s *Session) setAddress(addr *common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr == nil {
		s.address = nil
		return
	}
	a := *addr
	s.address = &a
}

func (s *Session) setChainID(chainID *uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chainID = chainID
}

func requestAccounts(ctx context.Context, transport WalletTransport, method string) ([]common.Address, error) {
	raw, err := transport.Request(ctx, method)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	if isNullResult(raw) {
		return nil, nil
	}
	var accounts []common.Address
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, errors.Join(ErrDecodingFailure, fmt.Errorf("%s result: %w", method, err))
	}
	return accounts, nil
}

func readChainID(ctx context.Context, transport WalletTransport) (uint64, error) {
	raw, err := transport.Request(ctx, "eth_chainId")
	if err != nil {
		return 0, classifyProviderError(err)
	}
	var chainID hexutil.Uint64
	if err := json.Unmarshal(raw, &chainID); err != nil {
		return 0, errors.Join(ErrDecodingFailure, fmt.Errorf("eth_chainId result: %w", err))
	}
	return uint64(chainID), nil
}
