package currency

import (
	"context"
	"testing"

	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStaticRates(t *testing.T) {
	rates, err := ParseStaticRates(" kes=13500000, USD=100000 ,")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(13500000).Equal(rates["KES"]))
	assert.True(t, decimal.NewFromInt(100000).Equal(rates["USD"]))

	_, err = ParseStaticRates("KES")
	require.ErrorIs(t, err, ErrMalformedRateSpecifier)

	_, err = ParseStaticRates("KES=-1")
	require.ErrorIs(t, err, ErrMalformedRateSpecifier)
}

func TestToSatoshis(t *testing.T) {
	rates, err := ParseStaticRates("KES=10000000,USD=100000")
	require.NoError(t, err)
	svc := NewCurrencyService(rates, logging.NewNopLogger())
	ctx := context.Background()

	sats, err := svc.ToSatoshis(ctx, decimal.NewFromInt(1000), "KES")
	require.NoError(t, err)
	assert.Equal(t, btcutil.Amount(10000), sats)

	sats, err = svc.ToSatoshis(ctx, decimal.RequireFromString("1.5"), "USD")
	require.NoError(t, err)
	assert.Equal(t, btcutil.Amount(1500), sats)
}

func TestToSatoshisRejectsUnsupportedAndDust(t *testing.T) {
	rates, err := ParseStaticRates("KES=10000000,EUR=90000")
	require.NoError(t, err)
	svc := NewCurrencyService(rates, logging.NewNopLogger())
	ctx := context.Background()

	_, err = svc.ToSatoshis(ctx, decimal.NewFromInt(10), "EUR")
	require.ErrorIs(t, err, ErrUnsupportedCurrency)

	_, err = svc.ToSatoshis(ctx, decimal.RequireFromString("0.01"), "KES")
	require.ErrorIs(t, err, ErrAmountBelowMinimum)
}

func TestMissingRate(t *testing.T) {
	svc := NewCurrencyService(StaticRateSource{}, logging.NewNopLogger())

	_, err := svc.ToSatoshis(context.Background(), decimal.NewFromInt(10), "USD")
	require.ErrorIs(t, err, ErrNoExchangeRate)
}

func TestConvertUsesCrossRate(t *testing.T) {
	rates, err := ParseStaticRates("KES=13000000,USD=100000")
	require.NoError(t, err)
	svc := NewCurrencyService(rates, logging.NewNopLogger())

	kes, err := svc.Convert(context.Background(), decimal.NewFromInt(10), "USD", "KES")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1300).Equal(kes))

	same, err := svc.Convert(context.Background(), decimal.NewFromInt(10), "KES", "KES")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(same))
}
