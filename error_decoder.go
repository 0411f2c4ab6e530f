package onchain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertError is a contract revert decoded from the data attached to a
// provider error.
type RevertError struct {
	// Name is the custom error name, or "Error" / "Panic" for the builtin reverts
	Name   string
	Reason string
	Params any
	Err    error
}

func (e *RevertError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("contract error: %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("contract error: %s", e.Name)
}

func (e *RevertError) Unwrap() error {
	return e.Err
}

var panicSelector = [4]byte{0x4e, 0x48, 0x7b, 0x71}

// ErrorDecoder decodes revert data into custom errors of the given ABIs, and
// into Error(string) / Panic(uint256) reverts.
type ErrorDecoder struct {
	errorBySelector map[[4]byte]abi.Error
}

// NewErrorDecoder collects the custom errors of abis
func NewErrorDecoder(abis ...abi.ABI) *ErrorDecoder {
	d := &ErrorDecoder{errorBySelector: map[[4]byte]abi.Error{}}
	for _, a := range abis {
		for _, e := range a.Errors {
			var selector [4]byte
			copy(selector[:], e.ID[:4])
			d.errorBySelector[selector] = e
		}
	}
	return d
}

// Decode returns the RevertError carried by err. ok is false when err has no
// revert data or the data can't be decoded.
func (d *ErrorDecoder) Decode(err error) (*RevertError, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	data, ok := revertData(dataErr.ErrorData())
	if !ok || len(data) < 4 {
		return nil, false
	}

	var selector [4]byte
	copy(selector[:], data[:4])
	if abiErr, found := d.errorBySelector[selector]; found {
		params, unpackErr := abiErr.Unpack(data)
		if unpackErr != nil {
			return nil, false
		}
		return &RevertError{Name: abiErr.Name, Params: params, Err: err}, true
	}

	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return &RevertError{Name: hexutil.Encode(data[:4]), Err: err}, true
	}
	name := "Error"
	if selector == panicSelector {
		name = "Panic"
	}
	return &RevertError{Name: name, Reason: reason, Err: err}, true
}

// wrap returns err annotated with its decoded revert, or err unchanged
func (d *ErrorDecoder) wrap(err error) error {
	if d == nil || err == nil {
		return err
	}
	if revert, ok := d.Decode(err); ok {
		return revert
	}
	return err
}

// revertData accepts the shapes wallets use for error data: a hex string, or
// an object with a nested "data" hex string (MetaMask's originalError form).
func revertData(v any) ([]byte, bool) {
	switch data := v.(type) {
	case string:
		if !strings.HasPrefix(data, "0x") {
			data = "0x" + data
		}
		b, err := hexutil.Decode(data)
		if err != nil {
			return nil, false
		}
		return b, true
	case []byte:
		return data, true
	case map[string]any:
		return revertData(data["data"])
	default:
		return nil, false
	}
}
