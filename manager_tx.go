package onchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// TxRecord is a transaction accepted by the wallet
type TxRecord struct {
	Hash        common.Hash
	SubmittedAt time.Time
}

// ContractCall is a state changing contract call to submit through the wallet
type ContractCall struct {
	To       common.Address
	ABI      abi.ABI
	Function string
	Args     []Arg
	// Value is the native amount attached to the call, nil for none
	Value *big.Int
}

// ReadCall is a read-only contract call executed with eth_call
type ReadCall struct {
	To       common.Address
	ABI      abi.ABI
	Function string
	Args     []Arg
}

type sendTxArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value,omitempty"`
	Data  hexutil.Bytes  `json:"data,omitempty"`
}

type callArgs struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// TxSubmitter submits value transfers and contract calls through the wallet.
// Every submission makes sure the wallet is on the target network first and
// uses the already connected account; it never prompts for a connection.
type TxSubmitter struct {
	transport  WalletTransport
	network    *ChainSessionManager
	converter  *ValueConverter
	errDecoder *ErrorDecoder
	now        func() time.Time
}

// NewTxSubmitter creates a submitter. errDecoder may be nil.
func NewTxSubmitter(
	transport WalletTransport,
	network *ChainSessionManager,
	converter *ValueConverter,
	errDecoder *ErrorDecoder,
) *TxSubmitter {
	return &TxSubmitter{
		transport:  transport,
		network:    network,
		converter:  converter,
		errDecoder: errDecoder,
		now:        time.Now,
	}
}

// SendValueTransfer sends the native equivalent of a fiat amount to `to`.
func (s *TxSubmitter) SendValueTransfer(ctx context.Context, to common.Address, fiat decimal.Decimal) (*TxRecord, error) {
	if s.transport == nil {
		return nil, ErrNoWallet
	}
	if err := s.network.EnsureTargetNetwork(ctx); err != nil {
		return nil, err
	}
	from, err := s.connectedAccount(ctx)
	if err != nil {
		return nil, err
	}
	value, err := s.converter.FiatToNativeUnits(ctx, fiat)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"from":  from.Hex(),
		"to":    to.Hex(),
		"fiat":  fiat.String(),
		"value": value.String(),
	}).Info("Sending value transfer")

	return s.send(ctx, sendTxArgs{
		From:  from,
		To:    to,
		Value: (*hexutil.Big)(value),
	})
}

// SendContractCall encodes and submits call. Encoding happens before anything
// is sent to the wallet, an ErrEncoding means the wallet was not contacted.
func (s *TxSubmitter) SendContractCall(ctx context.Context, call ContractCall) (*TxRecord, error) {
	if s.transport == nil {
		return nil, ErrNoWallet
	}
	data, err := EncodeCall(call.ABI, call.Function, call.Args...)
	if err != nil {
		return nil, err
	}
	return s.SendCallData(ctx, call.To, data, call.Value)
}

// SendCallData submits already encoded calldata to `to`
func (s *TxSubmitter) SendCallData(ctx context.Context, to common.Address, data []byte, value *big.Int) (*TxRecord, error) {
	if s.transport == nil {
		return nil, ErrNoWallet
	}
	if err := s.network.EnsureTargetNetwork(ctx); err != nil {
		return nil, err
	}
	from, err := s.connectedAccount(ctx)
	if err != nil {
		return nil, err
	}

	args := sendTxArgs{From: from, To: to, Data: data}
	if value != nil && value.Sign() > 0 {
		args.Value = (*hexutil.Big)(new(big.Int).Set(value))
	}

	logger.WithFields(logger.Fields{
		"from":      from.Hex(),
		"to":        to.Hex(),
		"data_size": len(data),
	}).Info("Sending contract call")

	return s.send(ctx, args)
}

// Call executes a read-only contract call against the latest block and decodes
// its outputs.
func (s *TxSubmitter) Call(ctx context.Context, call ReadCall) ([]any, error) {
	if s.transport == nil {
		return nil, ErrNoWallet
	}
	if err := s.network.EnsureTargetNetwork(ctx); err != nil {
		return nil, err
	}
	data, err := EncodeCall(call.ABI, call.Function, call.Args...)
	if err != nil {
		return nil, err
	}

	raw, err := s.transport.Request(ctx, "eth_call", callArgs{To: call.To, Data: data}, "latest")
	if err != nil {
		return nil, fmt.Errorf("eth_call %s failed: %w", call.Function, classifyProviderError(s.errDecoder.wrap(err)))
	}
	var result hexutil.Bytes
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Join(ErrDecodingFailure, fmt.Errorf("eth_call %s result: %w", call.Function, err))
	}
	return DecodeResult(call.ABI, call.Function, result)
}

func (s *TxSubmitter) send(ctx context.Context, args sendTxArgs) (*TxRecord, error) {
	raw, err := s.transport.Request(ctx, "eth_sendTransaction", args)
	if err != nil {
		return nil, fmt.Errorf("eth_sendTransaction failed: %w", classifyProviderError(s.errDecoder.wrap(err)))
	}
	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return nil, errors.Join(ErrDecodingFailure, fmt.Errorf("eth_sendTransaction result: %w", err))
	}

	logger.WithFields(logger.Fields{
		"tx_hash": hash.Hex(),
		"from":    args.From.Hex(),
	}).Info("Transaction submitted")

	return &TxRecord{Hash: hash, SubmittedAt: s.now()}, nil
}

// connectedAccount reads the account the user already authorised, without prompting
func (s *TxSubmitter) connectedAccount(ctx context.Context) (common.Address, error) {
	accounts, err := requestAccounts(ctx, s.transport, "eth_accounts")
	if err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNotConnected
	}
	return accounts[0], nil
}
