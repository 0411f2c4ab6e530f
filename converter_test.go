package onchain

import (
	"context"
	"math/big"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiatToNativeUnits(t *testing.T) {
	tests := []struct {
		name string
		fiat string
		rate string
		want string
	}{
		{"mint fee", "0.03", "3000", "10000000000000"},
		{"save fee", "0.01", "3000", "3333333333333"},
		{"rounds to nearest", "0.02", "3000", "6666666666667"},
		{"zero", "0", "3000", "0"},
		{"one to one", "1", "1", "1000000000000000000"},
		{"fractional rate", "10", "2543.17", "3932100488760091"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewValueConverter(fixedRate(tt.rate))
			got, err := c.FiatToNativeUnits(context.Background(), decimal.RequireFromString(tt.fiat))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFiatToNativeUnits_Negative(t *testing.T) {
	rates := fixedRate("3000")
	c := NewValueConverter(rates)

	_, err := c.FiatToNativeUnits(context.Background(), decimal.RequireFromString("-0.01"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, 0, rates.calls)
}

func TestFiatToNativeUnits_BadRate(t *testing.T) {
	for _, rate := range []string{"0", "-3000"} {
		c := NewValueConverter(fixedRate(rate))
		_, err := c.FiatToNativeUnits(context.Background(), decimal.RequireFromString("0.03"))
		assert.ErrorIs(t, err, ErrInvalidAmount, rate)
	}
}

// NativeUnits must match exact rational arithmetic rounded half away from zero
func TestNativeUnits_MatchesRational(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(NativeDecimals), nil))

	for i := 0; i < 500; i++ {
		fiat := decimal.New(rng.Int63n(1_000_000), -int32(rng.Intn(5)))
		rate := decimal.New(rng.Int63n(10_000_000)+1, -int32(rng.Intn(4)))

		got := NativeUnits(fiat, rate, NativeDecimals)

		exact := new(big.Rat).Quo(fiat.Rat(), rate.Rat())
		exact.Mul(exact, scale)
		// floor(exact + 1/2) for non negative values
		half := new(big.Rat).Add(exact, big.NewRat(1, 2))
		want := new(big.Int).Quo(half.Num(), half.Denom())

		require.Equal(t, want.String(), got.String(), "fiat=%s rate=%s", fiat, rate)
	}
}
