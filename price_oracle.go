package onchain

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/imroc/req"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	DefaultPriceAPIURL     = "https://api.coingecko.com/api/v3"
	DefaultPriceAsset      = "ethereum"
	DefaultPriceFiat       = "usd"
	DefaultPriceAPITimeout = 15 * time.Second
)

// DefaultFallbackRate is used whenever the price feed can't give a usable answer
var DefaultFallbackRate = decimal.NewFromInt(3000)

// PriceOracle fetches the fiat price of the native asset from a coingecko
// compatible simple price endpoint. Every call hits the feed, nothing is cached.
type PriceOracle struct {
	baseURL      string
	asset        string
	fiat         string
	fallbackRate decimal.Decimal
	client       *req.Req
}

// PriceOracleOption configures a PriceOracle
type PriceOracleOption func(*PriceOracle)

// WithPriceAPIURL sets the base url of the price feed
func WithPriceAPIURL(url string) PriceOracleOption {
	return func(o *PriceOracle) {
		if url != "" {
			o.baseURL = url
		}
	}
}

// WithPriceAsset selects the asset id and fiat currency to price
func WithPriceAsset(asset, fiat string) PriceOracleOption {
	return func(o *PriceOracle) {
		o.asset = asset
		o.fiat = fiat
	}
}

// WithFallbackRate sets the rate returned when the feed fails
func WithFallbackRate(rate decimal.Decimal) PriceOracleOption {
	return func(o *PriceOracle) {
		o.fallbackRate = rate
	}
}

// WithHTTPClient replaces the underlying http client, mostly for tests
func WithHTTPClient(client *http.Client) PriceOracleOption {
	return func(o *PriceOracle) {
		o.client.SetClient(client)
	}
}

// NewPriceOracle creates a price oracle with coingecko defaults
func NewPriceOracle(opts ...PriceOracleOption) *PriceOracle {
	client := req.New()
	client.SetTimeout(DefaultPriceAPITimeout)
	o := &PriceOracle{
		baseURL:      DefaultPriceAPIURL,
		asset:        DefaultPriceAsset,
		fiat:         DefaultPriceFiat,
		fallbackRate: DefaultFallbackRate,
		client:       client,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FallbackRate returns the rate used when the feed is unusable
func (o *PriceOracle) FallbackRate() decimal.Decimal {
	return o.fallbackRate
}

func (o *PriceOracle) priceURL() string {
	return fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s", o.baseURL, o.asset, o.fiat)
}

// GetExchangeRate returns the fiat price of one whole native unit. It never
// fails: any problem with the feed is logged and the fallback rate returned.
func (o *PriceOracle) GetExchangeRate(ctx context.Context) decimal.Decimal {
	rate, err := o.fetchRate(ctx)
	if err != nil {
		logger.WithFields(logger.Fields{
			"url":      o.priceURL(),
			"fallback": o.fallbackRate.String(),
			"error":    err,
		}).Warn("Couldn't fetch exchange rate, using fallback")
		return o.fallbackRate
	}
	return rate
}

func (o *PriceOracle) fetchRate(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	resp, err := o.client.Get(o.priceURL(), ctx, req.Header{"Accept": "application/json"})
	if err != nil {
		return decimal.Zero, fmt.Errorf("price request failed: %w", err)
	}
	status := resp.Response().StatusCode
	if status < 200 || status >= 300 {
		return decimal.Zero, fmt.Errorf("price feed answered with status %d", status)
	}

	path := gjson.Escape(o.asset) + "." + gjson.Escape(o.fiat)
	result := gjson.GetBytes(resp.Bytes(), path)
	if !result.Exists() {
		return decimal.Zero, fmt.Errorf("price %s missing from response", path)
	}
	if result.Type != gjson.Number {
		return decimal.Zero, fmt.Errorf("price %s is not a number: %s", path, result.Raw)
	}
	rate, err := decimal.NewFromString(result.Raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("couldn't parse price %s: %w", result.Raw, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("price %s is not positive: %s", path, rate)
	}
	return rate, nil
}
