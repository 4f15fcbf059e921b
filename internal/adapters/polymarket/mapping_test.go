package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

func TestMapInterval(t *testing.T) {
	gm := gammaMarket{
		ConditionID:  "0xabc",
		Slug:         "bitcoin-up-or-down-15-minute-1045",
		EndDate:      "2026-03-14T10:45:00Z",
		ClobTokenIDs: `["111","222"]`,
		Outcomes:     `["Up","Down"]`,
	}

	itv, err := mapInterval(gm)
	require.NoError(t, err)

	assert.Equal(t, "0xabc", itv.ConditionID)
	assert.Equal(t, "111", itv.UpTokenID)
	assert.Equal(t, "222", itv.DownTokenID)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 45, 0, 0, time.UTC), itv.EndTime)
}

func TestMapIntervalOutcomeOrderDoesNotMatter(t *testing.T) {
	gm := gammaMarket{
		ConditionID:  "0xabc",
		EndDate:      "2026-03-14T10:45:00Z",
		ClobTokenIDs: `["111","222"]`,
		Outcomes:     `["Down","Up"]`,
	}

	itv, err := mapInterval(gm)
	require.NoError(t, err)

	assert.Equal(t, "222", itv.UpTokenID)
	assert.Equal(t, "111", itv.DownTokenID)
}

func TestMapIntervalRejectsMalformedMarkets(t *testing.T) {
	cases := []struct {
		name string
		gm   gammaMarket
	}{
		{"one token", gammaMarket{ClobTokenIDs: `["111"]`, Outcomes: `["Up"]`, EndDate: "2026-03-14T10:45:00Z"}},
		{"unknown outcome", gammaMarket{ClobTokenIDs: `["111","222"]`, Outcomes: `["Higher","Lower"]`, EndDate: "2026-03-14T10:45:00Z"}},
		{"bad end date", gammaMarket{ClobTokenIDs: `["111","222"]`, Outcomes: `["Up","Down"]`, EndDate: "soon"}},
		{"broken token json", gammaMarket{ClobTokenIDs: `not-json`, Outcomes: `["Up","Down"]`, EndDate: "2026-03-14T10:45:00Z"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mapInterval(tc.gm)
			assert.Error(t, err)
		})
	}
}

func TestWinnerFromTokens(t *testing.T) {
	tokens := []clobToken{
		{TokenID: "111", Outcome: "Up", Winner: false},
		{TokenID: "222", Outcome: "Down", Winner: true},
	}

	side, err := winnerFromTokens(tokens)
	require.NoError(t, err)
	assert.Equal(t, domain.SideDown, side)
}

func TestWinnerFromTokensUnresolved(t *testing.T) {
	tokens := []clobToken{
		{TokenID: "111", Outcome: "Up"},
		{TokenID: "222", Outcome: "Down"},
	}

	_, err := winnerFromTokens(tokens)
	assert.Error(t, err)
}

func TestMapBookEntriesSortsAndFilters(t *testing.T) {
	raw := []bookEntryRaw{
		{Price: "0.55", Size: "100"},
		{Price: "0.50", Size: "50"},
		{Price: "0", Size: "10"},     // precio inválido
		{Price: "0.60", Size: "bad"}, // size no parseable
	}

	asks := mapBookEntries(raw, true)
	require.Len(t, asks, 2)
	assert.Equal(t, 0.50, asks[0].Price)
	assert.Equal(t, 0.55, asks[1].Price)

	bids := mapBookEntries(raw, false)
	require.Len(t, bids, 2)
	assert.Equal(t, 0.55, bids[0].Price)
	assert.Equal(t, 0.50, bids[1].Price)
}

func TestMapDataTrade(t *testing.T) {
	rt := rawDataTrade{
		Asset:     "111",
		Side:      "buy",
		Price:     json.Number("0.52"),
		Size:      json.Number("130.5"),
		Timestamp: json.Number("1773482400"),
	}

	trade := mapDataTrade(rt)
	assert.Equal(t, 0.52, trade.Price)
	assert.Equal(t, 130.5, trade.Size)
	assert.True(t, trade.TakerBuy)
	assert.Equal(t, time.Unix(1773482400, 0).UTC(), trade.At)
}

func TestParseTradeTimestampFormats(t *testing.T) {
	want := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	cases := map[string]json.Number{
		"unix seconds": json.Number("1773482400"),
		"unix millis":  json.Number("1773482400000"),
		"iso":          json.Number(`2026-03-14T10:00:00Z`),
	}

	for name, n := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, parseTradeTimestamp(n))
		})
	}
}
