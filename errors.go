package onchain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/basenote/onchain/inflight"
)

var (
	ErrNoWallet             = errors.New("no wallet found")
	ErrNotConnected         = errors.New("wallet not connected")
	ErrUserRejected         = errors.New("request rejected by user")
	ErrUnsupportedNetwork   = errors.New("target network is not supported by the wallet")
	ErrConfigurationMissing = errors.New("contract address missing from configuration")
	ErrEncoding             = errors.New("couldn't encode contract call")
	ErrTimeout              = errors.New("timeout waiting for transaction receipt")
	ErrDecodingFailure      = errors.New("couldn't decode contract data")
	ErrInvalidAmount        = errors.New("invalid fiat amount")
	ErrTxReverted           = errors.New("transaction reverted")
	ErrRecordNotFound       = errors.New("action record not found")

	// ErrActionInFlight is returned when the same action is already running for an item.
	ErrActionInFlight = inflight.ErrInFlight
)

// EIP-1193 / EIP-3085 provider error codes the core reacts to.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnrecognizedChain = 4902
)

// ProviderError is an error returned by the wallet provider in answer to a request.
// It satisfies rpc.Error and rpc.DataError so errors coming from a go-ethereum
// rpc.Client and from in-process providers are classified the same way.
type ProviderError struct {
	Code    int
	Message string
	Data    any
}

var (
	_ rpc.Error     = (*ProviderError)(nil)
	_ rpc.DataError = (*ProviderError)(nil)
)

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

func (e *ProviderError) ErrorCode() int {
	return e.Code
}

func (e *ProviderError) ErrorData() interface{} {
	return e.Data
}

// NewProviderError creates a ProviderError with the given code and message
func NewProviderError(code int, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

// providerErrorCode extracts the JSON-RPC error code carried by err, if any.
func providerErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// classifyProviderError tags provider errors with the matching sentinel.
// Errors without a known code are returned unchanged.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	code, ok := providerErrorCode(err)
	if !ok {
		return err
	}
	switch code {
	case CodeUserRejected:
		return errors.Join(ErrUserRejected, err)
	case CodeUnauthorized:
		return errors.Join(ErrNotConnected, err)
	default:
		return err
	}
}

// UserMessage maps a workflow error to the single message shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoWallet):
		return "No wallet found. Please install MetaMask or a compatible wallet."
	case errors.Is(err, ErrNotConnected):
		return "Wallet not connected. Please connect your wallet."
	case errors.Is(err, ErrUserRejected):
		return "Request was rejected in the wallet."
	case errors.Is(err, ErrUnsupportedNetwork):
		return "Your wallet could not switch to the Base network."
	case errors.Is(err, ErrConfigurationMissing):
		return "Contract address missing. Check the app configuration."
	case errors.Is(err, ErrActionInFlight):
		return "This action is already in progress."
	case errors.Is(err, ErrEncoding):
		return "Could not prepare the transaction data."
	case errors.Is(err, ErrTimeout):
		return "Timed out waiting for the transaction to be confirmed."
	case errors.Is(err, ErrTxReverted):
		return "The transaction was reverted by the network."
	case errors.Is(err, ErrInvalidAmount):
		return "The amount to pay is invalid."
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Error()
	}
	return "Save on-chain failed: " + err.Error()
}
