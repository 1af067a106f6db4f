package currency

import (
	"context"
	"fmt"
	"strings"

	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const BTC = "BTC"

var SupportedCurrencies = []string{"KES", "USD"}

func IsCurrencyValid(request string) bool {
	for _, c := range SupportedCurrencies {
		if request == c {
			return true
		}
	}

	return false
}

func IsCurrencyInvalid(request string) bool {
	return !IsCurrencyValid(request)
}

// RateSource quotes the price of one bitcoin in a fiat currency.
type RateSource interface {
	BTCPrice(ctx context.Context, currency string) (decimal.Decimal, error)
}

// StaticRateSource serves fixed prices, typically from configuration.
type StaticRateSource map[string]decimal.Decimal

// ParseStaticRates reads entries like "KES=13500000,USD=100000".
func ParseStaticRates(raw string) (StaticRateSource, error) {
	rates := StaticRateSource{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		code, price, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrMalformedRateSpecifier, entry)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(price))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("%w: %q", ErrMalformedRateSpecifier, entry)
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return rates, nil
}

func (s StaticRateSource) BTCPrice(_ context.Context, currency string) (decimal.Decimal, error) {
	rate, ok := s[currency]
	if !ok {
		return decimal.Zero, NewCurrencyError(ErrNoExchangeRate, BTC, currency)
	}
	return rate, nil
}

type CurrencyService struct {
	rates  RateSource
	logger *logging.Logger
}

func NewCurrencyService(rates RateSource, logger *logging.Logger) *CurrencyService {
	return &CurrencyService{
		rates:  rates,
		logger: logger,
	}
}

func (c *CurrencyService) GetExchangeRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	if IsCurrencyInvalid(currency) {
		return decimal.Zero, NewCurrencyError(ErrUnsupportedCurrency, BTC, currency)
	}
	return c.rates.BTCPrice(ctx, currency)
}

// Convert moves amount between two fiat currencies through their bitcoin
// prices.
func (c *CurrencyService) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	fromPrice, err := c.GetExchangeRate(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}
	toPrice, err := c.GetExchangeRate(ctx, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(toPrice).Div(fromPrice), nil
}

// ToSatoshis converts a fiat amount to satoshis at the current rate,
// rounding to the nearest satoshi.
func (c *CurrencyService) ToSatoshis(ctx context.Context, amount decimal.Decimal, currency string) (btcutil.Amount, error) {
	price, err := c.GetExchangeRate(ctx, currency)
	if err != nil {
		return 0, err
	}

	sats := amount.
		Mul(decimal.NewFromInt(btcutil.SatoshiPerBitcoin)).
		Div(price).
		Round(0)
	if sats.LessThan(decimal.NewFromInt(1)) {
		return 0, NewCurrencyError(ErrAmountBelowMinimum, currency, BTC)
	}

	converted := btcutil.Amount(sats.IntPart())
	c.logger.WithFields(logrus.Fields{
		"amount":   amount.String(),
		"currency": currency,
		"rate":     price.String(),
		"sats":     int64(converted),
	}).Debug("converted fiat amount")

	return converted, nil
}
