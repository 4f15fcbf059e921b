package polymarket

import (
	"testing"

	gomodel "github.com/polymarket/go-order-utils/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known throwaway dev key, never funded.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestAuthClient(t *testing.T) *AuthClient {
	t.Helper()
	ac, err := NewAuthClient(NewClient("", "", ""), testPrivateKey)
	require.NoError(t, err)
	return ac
}

func TestBuildSignedOrderBuyAmounts(t *testing.T) {
	ac := newTestAuthClient(t)

	// 100 shares a 0.55: el maker entrega 55 USDC, el taker 100 tokens.
	signed, err := ac.buildSignedOrder("123456", gomodel.BUY, 0.55, 100, 200, false)
	require.NoError(t, err)

	assert.Equal(t, "55000000", signed.Order.MakerAmount.String())
	assert.Equal(t, "100000000", signed.Order.TakerAmount.String())
	assert.Equal(t, "200", signed.Order.FeeRateBps.String())
	assert.NotEmpty(t, signed.Signature)
}

func TestBuildSignedOrderSellAmounts(t *testing.T) {
	ac := newTestAuthClient(t)

	// La venta invierte los amounts: el maker entrega los tokens.
	signed, err := ac.buildSignedOrder("123456", gomodel.SELL, 0.55, 100, 0, false)
	require.NoError(t, err)

	assert.Equal(t, "100000000", signed.Order.MakerAmount.String())
	assert.Equal(t, "55000000", signed.Order.TakerAmount.String())
}

func TestBuildSignedOrderExactPriceInvariant(t *testing.T) {
	ac := newTestAuthClient(t)

	// Precios con tick 0.001 no deben perder precisión por floats:
	// makerAmount == price × takerAmount exactamente.
	signed, err := ac.buildSignedOrder("123456", gomodel.BUY, 0.673, 37, 0, false)
	require.NoError(t, err)

	maker := signed.Order.MakerAmount.Int64()
	taker := signed.Order.TakerAmount.Int64()
	assert.Equal(t, maker*1000, taker*673)
}

func TestBuildSignedOrderRejectsInvalidInputs(t *testing.T) {
	ac := newTestAuthClient(t)

	_, err := ac.buildSignedOrder("123456", gomodel.BUY, 0, 100, 0, false)
	assert.Error(t, err)

	_, err = ac.buildSignedOrder("123456", gomodel.BUY, 1.0, 100, 0, false)
	assert.Error(t, err)

	_, err = ac.buildSignedOrder("123456", gomodel.BUY, 0.55, 0, 0, false)
	assert.Error(t, err)
}

func TestDetectPricePrecision(t *testing.T) {
	cases := []struct {
		price float64
		want  int64
	}{
		{0.60, 100},
		{0.55, 100},
		{0.673, 1000},
		{0.1234, 10000},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, detectPricePrecision(tc.price), "price %.4f", tc.price)
	}
}
