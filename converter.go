package onchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the number of decimals of the native asset (wei per ether)
const NativeDecimals = 18

// ValueConverter turns fiat amounts into native smallest units using the
// current exchange rate.
type ValueConverter struct {
	rates ExchangeRateSource
}

// NewValueConverter creates a converter reading rates from source
func NewValueConverter(source ExchangeRateSource) *ValueConverter {
	return &ValueConverter{rates: source}
}

// FiatToNativeUnits converts a fiat amount to wei at the current rate,
// rounded half away from zero.
func (c *ValueConverter) FiatToNativeUnits(ctx context.Context, fiat decimal.Decimal) (*big.Int, error) {
	if fiat.IsNegative() {
		return nil, errors.Join(ErrInvalidAmount, fmt.Errorf("amount %s is negative", fiat))
	}
	rate := c.rates.GetExchangeRate(ctx)
	if !rate.IsPositive() {
		return nil, errors.Join(ErrInvalidAmount, fmt.Errorf("exchange rate %s is not positive", rate))
	}
	return NativeUnits(fiat, rate, NativeDecimals), nil
}

// NativeUnits computes round(fiat / rate * 10^decimals). rate must be positive.
func NativeUnits(fiat, rate decimal.Decimal, decimals int32) *big.Int {
	return fiat.Shift(decimals).DivRound(rate, 0).BigInt()
}
