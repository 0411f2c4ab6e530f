package onchain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// EnvPrefix is prepended to every configuration variable, e.g. BASENOTE_NFT_ADDRESS
const EnvPrefix = "BASENOTE"

const DefaultFeeRecipient = "0x0d96c07fe5c33484c6a1147dd6ad465cd93a5806"

// Config contains the runtime configuration of the on-chain core.
// Contract addresses are optional here and checked by the actions using them.
type Config struct {
	NFTAddress          string          `envconfig:"NFT_ADDRESS"`
	StorageAddress      string          `envconfig:"STORAGE_ADDRESS"`
	BaseMainnetRPCURL   string          `envconfig:"BASE_MAINNET_RPC_URL" default:"https://mainnet.base.org"`
	WalletRPCURL        string          `envconfig:"WALLET_RPC_URL" default:"http://127.0.0.1:1248"`
	PriceAPIURL         string          `envconfig:"PRICE_API_URL" default:"https://api.coingecko.com/api/v3"`
	FeeRecipient        string          `envconfig:"FEE_RECIPIENT" default:"0x0d96c07fe5c33484c6a1147dd6ad465cd93a5806"`
	MintFeeUSD          decimal.Decimal `envconfig:"MINT_FEE_USD" default:"0.03"`
	SaveFeeUSD          decimal.Decimal `envconfig:"SAVE_FEE_USD" default:"0.01"`
	ReceiptTimeout      time.Duration   `envconfig:"RECEIPT_TIMEOUT" default:"2m"`
	ReceiptPollInterval time.Duration   `envconfig:"RECEIPT_POLL_INTERVAL" default:"1500ms"`
	RedisURL            string          `envconfig:"REDIS_URL"`
}

// LoadConfig reads the configuration from BASENOTE_* environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() Config {
	return Config{
		BaseMainnetRPCURL:   DefaultBaseMainnetRPCURL,
		WalletRPCURL:        "http://127.0.0.1:1248",
		PriceAPIURL:         DefaultPriceAPIURL,
		FeeRecipient:        DefaultFeeRecipient,
		MintFeeUSD:          decimal.RequireFromString("0.03"),
		SaveFeeUSD:          decimal.RequireFromString("0.01"),
		ReceiptTimeout:      DefaultReceiptTimeout,
		ReceiptPollInterval: DefaultReceiptPollInterval,
	}
}

// Validate checks the values that have no safe interpretation when wrong
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.FeeRecipient) {
		return fmt.Errorf("invalid fee recipient %q", c.FeeRecipient)
	}
	if c.MintFeeUSD.IsNegative() {
		return fmt.Errorf("mint fee %s is negative", c.MintFeeUSD)
	}
	if c.SaveFeeUSD.IsNegative() {
		return fmt.Errorf("save fee %s is negative", c.SaveFeeUSD)
	}
	if c.ReceiptTimeout <= 0 {
		return fmt.Errorf("receipt timeout must be positive, got %s", c.ReceiptTimeout)
	}
	if c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("receipt poll interval must be positive, got %s", c.ReceiptPollInterval)
	}
	return nil
}

// Contracts returns the configured contract addresses
func (c *Config) Contracts() ContractAddresses {
	return ContractAddresses{NFT: c.NFTAddress, Storage: c.StorageAddress}
}

// FeeRecipientAddress returns the address fees are paid to
func (c *Config) FeeRecipientAddress() common.Address {
	return common.HexToAddress(c.FeeRecipient)
}

// Network returns the target network descriptor
func (c *Config) Network() NetworkDescriptor {
	return BaseMainnet(c.BaseMainnetRPCURL)
}
