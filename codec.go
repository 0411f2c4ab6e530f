package onchain

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ArgKind is the kind of value carried by an Arg
type ArgKind int

const (
	ArgString ArgKind = iota
	ArgUint
	ArgInt
	ArgAddress
	ArgBool
	ArgBytes
)

func (k ArgKind) String() string {
	switch k {
	case ArgString:
		return "string"
	case ArgUint:
		return "uint"
	case ArgInt:
		return "int"
	case ArgAddress:
		return "address"
	case ArgBool:
		return "bool"
	case ArgBytes:
		return "bytes"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// Arg is a single contract call argument. Build it with one of the
// constructors; the zero value is an empty string argument.
type Arg struct {
	Kind    ArgKind
	str     string
	num     *big.Int
	address common.Address
	boolean bool
	bytes   []byte
}

func StringArg(s string) Arg { return Arg{Kind: ArgString, str: s} }

// UintArg creates an unsigned integer argument. v is copied.
func UintArg(v *big.Int) Arg {
	return Arg{Kind: ArgUint, num: copyBig(v)}
}

func Uint64Arg(v uint64) Arg { return Arg{Kind: ArgUint, num: new(big.Int).SetUint64(v)} }

// IntArg creates a signed integer argument. v is copied.
func IntArg(v *big.Int) Arg {
	return Arg{Kind: ArgInt, num: copyBig(v)}
}

func AddressArg(a common.Address) Arg { return Arg{Kind: ArgAddress, address: a} }

func BoolArg(b bool) Arg { return Arg{Kind: ArgBool, boolean: b} }

// BytesArg creates a dynamic or fixed size bytes argument. b is copied.
func BytesArg(b []byte) Arg {
	return Arg{Kind: ArgBytes, bytes: append([]byte(nil), b...)}
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func (a Arg) String() string {
	switch a.Kind {
	case ArgString:
		return fmt.Sprintf("%q", a.str)
	case ArgUint, ArgInt:
		return a.num.String()
	case ArgAddress:
		return a.address.Hex()
	case ArgBool:
		return fmt.Sprintf("%t", a.boolean)
	case ArgBytes:
		return fmt.Sprintf("0x%x", a.bytes)
	default:
		return a.Kind.String()
	}
}

// goValue converts the argument into the Go value abi.Pack expects for t,
// rejecting any kind or range mismatch.
func (a Arg) goValue(t abi.Type) (any, error) {
	switch t.T {
	case abi.StringTy:
		if a.Kind != ArgString {
			return nil, a.mismatch(t)
		}
		return a.str, nil

	case abi.BoolTy:
		if a.Kind != ArgBool {
			return nil, a.mismatch(t)
		}
		return a.boolean, nil

	case abi.AddressTy:
		if a.Kind != ArgAddress {
			return nil, a.mismatch(t)
		}
		return a.address, nil

	case abi.UintTy:
		if a.Kind != ArgUint {
			return nil, a.mismatch(t)
		}
		if a.num.Sign() < 0 || a.num.BitLen() > t.Size {
			return nil, fmt.Errorf("value %s out of range for %s", a.num, t)
		}
		return integerValue(a.num, t), nil

	case abi.IntTy:
		if a.Kind != ArgInt {
			return nil, a.mismatch(t)
		}
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		minValue := new(big.Int).Neg(limit)
		if a.num.Cmp(minValue) < 0 || a.num.Cmp(limit) >= 0 {
			return nil, fmt.Errorf("value %s out of range for %s", a.num, t)
		}
		return integerValue(a.num, t), nil

	case abi.BytesTy:
		if a.Kind != ArgBytes {
			return nil, a.mismatch(t)
		}
		return a.bytes, nil

	case abi.FixedBytesTy:
		if a.Kind != ArgBytes {
			return nil, a.mismatch(t)
		}
		if len(a.bytes) != t.Size {
			return nil, fmt.Errorf("%s needs exactly %d bytes, got %d", t, t.Size, len(a.bytes))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(a.bytes))
		return arr.Interface(), nil

	default:
		return nil, fmt.Errorf("abi type %s is not supported", t)
	}
}

func (a Arg) mismatch(t abi.Type) error {
	return fmt.Errorf("%s argument can't be used for abi type %s", a.Kind, t)
}

// integerValue returns v in the Go type go-ethereum packs t from: sized Go
// integers for 8/16/32/64 bits, *big.Int otherwise. v is range checked already.
func integerValue(v *big.Int, t abi.Type) any {
	goType := t.GetType()
	switch goType.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return reflect.ValueOf(v.Uint64()).Convert(goType).Interface()
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflect.ValueOf(v.Int64()).Convert(goType).Interface()
	default:
		return new(big.Int).Set(v)
	}
}

// EncodeCall validates args against the declared inputs of fn and returns the
// calldata (selector followed by the encoded arguments).
func EncodeCall(contractABI abi.ABI, fn string, args ...Arg) ([]byte, error) {
	method, ok := contractABI.Methods[fn]
	if !ok {
		return nil, errors.Join(ErrEncoding, fmt.Errorf("function %q not found in abi", fn))
	}
	if len(args) != len(method.Inputs) {
		return nil, errors.Join(ErrEncoding, fmt.Errorf("%s takes %d arguments, got %d", method.Sig, len(method.Inputs), len(args)))
	}

	values := make([]any, len(args))
	for i, input := range method.Inputs {
		v, err := args[i].goValue(input.Type)
		if err != nil {
			return nil, errors.Join(ErrEncoding, fmt.Errorf("%s argument %d (%s): %w", method.Sig, i, input.Name, err))
		}
		values[i] = v
	}

	data, err := contractABI.Pack(fn, values...)
	if err != nil {
		return nil, errors.Join(ErrEncoding, fmt.Errorf("packing %s: %w", method.Sig, err))
	}
	return data, nil
}

// DecodeResult unpacks the return data of fn
func DecodeResult(contractABI abi.ABI, fn string, data []byte) ([]any, error) {
	method, ok := contractABI.Methods[fn]
	if !ok {
		return nil, errors.Join(ErrDecodingFailure, fmt.Errorf("function %q not found in abi", fn))
	}
	values, err := method.Outputs.Unpack(data)
	if err != nil {
		return nil, errors.Join(ErrDecodingFailure, fmt.Errorf("unpacking %s result: %w", method.Sig, err))
	}
	return values, nil
}

// DecodedEvent is an event log decoded against a contract abi
type DecodedEvent struct {
	Name     string
	Address  common.Address
	TxHash   common.Hash
	LogIndex uint
	// Args holds every event argument, indexed or not, by name
	Args map[string]any
	// Value is the requested field, nil when the event doesn't carry it
	Value any
}

// DecodeEvents returns the first log of receipt that decodes to one of
// eventNames. Logs that can't be decoded are skipped. A nil result means no
// such event was emitted.
func DecodeEvents(receipt *types.Receipt, contractABI abi.ABI, eventNames []string, field string) *DecodedEvent {
	if receipt == nil {
		return nil
	}
	wanted := make(map[string]struct{}, len(eventNames))
	for _, name := range eventNames {
		wanted[name] = struct{}{}
	}

	for _, log := range receipt.Logs {
		decoded, err := decodeLog(contractABI, log)
		if err != nil {
			continue
		}
		if _, ok := wanted[decoded.Name]; !ok {
			continue
		}
		decoded.Value = decoded.Args[field]
		return decoded
	}
	return nil
}

func decodeLog(contractABI abi.ABI, log *types.Log) (*DecodedEvent, error) {
	if log == nil || len(log.Topics) == 0 {
		return nil, errors.New("log has no topics")
	}
	event, err := contractABI.EventByID(log.Topics[0])
	if err != nil {
		return nil, err
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	// the same signature can be emitted with a different indexed layout
	// (ERC-20 vs ERC-721 Transfer), those logs don't belong to this abi
	if len(indexed) != len(log.Topics)-1 {
		return nil, fmt.Errorf("event %s expects %d topics, log has %d", event.Name, len(indexed)+1, len(log.Topics))
	}

	args := make(map[string]any, len(event.Inputs))
	if len(log.Data) > 0 || len(event.Inputs.NonIndexed()) > 0 {
		if err := event.Inputs.UnpackIntoMap(args, log.Data); err != nil {
			return nil, err
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return nil, err
	}

	return &DecodedEvent{
		Name:     event.Name,
		Address:  log.Address,
		TxHash:   log.TxHash,
		LogIndex: log.Index,
		Args:     args,
	}, nil
}

// ExtractMintedTokenID returns the tokenId of the first NoteMinted or ERC-721
// Transfer log in receipt, nil when there is none.
func ExtractMintedTokenID(receipt *types.Receipt, contractABI abi.ABI) *big.Int {
	decoded := DecodeEvents(receipt, contractABI, []string{EventNoteMinted, EventTransfer}, FieldTokenID)
	if decoded == nil {
		return nil
	}
	if id, ok := decoded.Value.(*big.Int); ok && id != nil {
		return new(big.Int).Set(id)
	}
	return nil
}
