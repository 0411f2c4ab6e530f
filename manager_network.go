package onchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const BaseMainnetChainID uint64 = 8453

const (
	DefaultBaseMainnetRPCURL    = "https://mainnet.base.org"
	DefaultBaseBlockExplorerURL = "https://basescan.org"
)

// NativeCurrency describes the native asset of a network as understood by
// wallet_addEthereumChain.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// NetworkDescriptor is the chain the core transacts on.
type NetworkDescriptor struct {
	ChainID           uint64
	ChainName         string
	NativeCurrency    NativeCurrency
	RPCURLs           []string
	BlockExplorerURLs []string
}

// ChainIDHex returns the chain id in the 0x-prefixed form wallets expect
func (n NetworkDescriptor) ChainIDHex() string {
	return hexutil.EncodeUint64(n.ChainID)
}

func (n NetworkDescriptor) String() string {
	return fmt.Sprintf("%s (%s)", n.ChainName, n.ChainIDHex())
}

// BaseMainnet returns the Base mainnet descriptor. An empty rpcURL selects the
// public endpoint.
func BaseMainnet(rpcURL string) NetworkDescriptor {
	if rpcURL == "" {
		rpcURL = DefaultBaseMainnetRPCURL
	}
	return NetworkDescriptor{
		ChainID:   BaseMainnetChainID,
		ChainName: "Base Mainnet",
		NativeCurrency: NativeCurrency{
			Name:     "Ether",
			Symbol:   "ETH",
			Decimals: 18,
		},
		RPCURLs:           []string{rpcURL},
		BlockExplorerURLs: []string{DefaultBaseBlockExplorerURL},
	}
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

type addChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

func (n NetworkDescriptor) addParams() addChainParams {
	return addChainParams{
		ChainID:           n.ChainIDHex(),
		ChainName:         n.ChainName,
		NativeCurrency:    n.NativeCurrency,
		RPCURLs:           n.RPCURLs,
		BlockExplorerURLs: n.BlockExplorerURLs,
	}
}

// ChainSessionManager makes sure the wallet is attached to the target network
// before anything is sent.
type ChainSessionManager struct {
	transport WalletTransport
	network   NetworkDescriptor
}

// NewChainSessionManager creates a manager targeting network
func NewChainSessionManager(transport WalletTransport, network NetworkDescriptor) *ChainSessionManager {
	return &ChainSessionManager{transport: transport, network: network}
}

// Network returns the target network
func (m *ChainSessionManager) Network() NetworkDescriptor {
	return m.network
}

// EnsureTargetNetwork asks the wallet to switch to the target network. When the
// wallet doesn't know the chain (4902) it is registered with a single
// wallet_addEthereumChain; adding also selects the chain, so the switch is not
// repeated.
func (m *ChainSessionManager) EnsureTargetNetwork(ctx context.Context) error {
	if m.transport == nil {
		return ErrNoWallet
	}

	_, err := m.transport.Request(ctx, "wallet_switchEthereumChain", []switchChainParams{{ChainID: m.network.ChainIDHex()}})
	if err == nil {
		return nil
	}

	code, ok := providerErrorCode(err)
	if !ok || code != CodeUnrecognizedChain {
		return fmt.Errorf("couldn't switch wallet to %s: %w", m.network, classifyProviderError(err))
	}

	logger.WithFields(logger.Fields{
		"chain_id":   m.network.ChainIDHex(),
		"chain_name": m.network.ChainName,
	}).Info("Wallet doesn't know the target chain, adding it")

	_, err = m.transport.Request(ctx, "wallet_addEthereumChain", []addChainParams{m.network.addParams()})
	if err == nil {
		return nil
	}
	if code, ok := providerErrorCode(err); ok && code == CodeUserRejected {
		return errors.Join(ErrUserRejected, fmt.Errorf("adding %s was rejected: %w", m.network, err))
	}
	return errors.Join(ErrUnsupportedNetwork, fmt.Errorf("couldn't add %s to wallet: %w", m.network, err))
}
