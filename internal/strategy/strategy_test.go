package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

// fakeExec es un executor determinista para tests: llena siempre al precio
// límite y lleva balance y cartera como el ledger simulado.
type fakeExec struct {
	balance    float64
	holdings   map[string]int
	buys       int
	sells      int
	rejectBuy  bool
	rejectSell bool
	// rejectTok rechaza solo las compras de ese token.
	rejectTok string
	// sellFillPx fuerza el precio medio de las ventas (0 → al límite).
	sellFillPx float64
}

func newFakeExec(balance float64) *fakeExec {
	return &fakeExec{balance: balance, holdings: make(map[string]int)}
}

func (f *fakeExec) Balance(context.Context) (float64, error) { return f.balance, nil }

func (f *fakeExec) BuyFOK(_ context.Context, tokenID string, shares int, limit float64) (domain.Fill, error) {
	if f.rejectBuy || tokenID == f.rejectTok {
		return domain.Fill{}, domain.ErrOrderRejected
	}
	notional := float64(shares) * limit
	f.balance -= notional
	f.holdings[tokenID] += shares
	f.buys++
	return domain.Fill{Shares: shares, Notional: notional, Total: notional, AvgPrice: limit, WorstPrice: limit}, nil
}

func (f *fakeExec) SellFOK(_ context.Context, tokenID string, shares int, limit float64) (domain.Fill, error) {
	if f.rejectSell {
		return domain.Fill{}, domain.ErrOrderRejected
	}
	if f.holdings[tokenID] < shares {
		return domain.Fill{}, domain.ErrNoHoldings
	}
	px := limit
	if f.sellFillPx > 0 {
		px = f.sellFillPx
	}
	if px <= 0 {
		px = 0.01
	}
	notional := float64(shares) * px
	f.balance += notional
	f.holdings[tokenID] -= shares
	f.sells++
	return domain.Fill{Shares: shares, Notional: notional, Total: notional, AvgPrice: px, WorstPrice: px}, nil
}

func (f *fakeExec) Redeem(_ context.Context, tokenID string, shares int, payout float64) (float64, error) {
	if f.holdings[tokenID] < shares {
		return 0, domain.ErrNoHoldings
	}
	f.holdings[tokenID] -= shares
	proceeds := float64(shares) * payout
	f.balance += proceeds
	return proceeds, nil
}

// spyRecorder acumula los eventos de decisión para asertar sobre las razones
// de skip.
type spyRecorder struct {
	skips   []string
	entries int
	exits   int
}

func (r *spyRecorder) Skip(_, reason string) { r.skips = append(r.skips, reason) }

func (r *spyRecorder) Entry(domain.OpenPosition) { r.entries++ }

func (r *spyRecorder) Exit(domain.TradeRecord) { r.exits++ }

func (r *spyRecorder) sawSkip(reason string) bool {
	for _, s := range r.skips {
		if s == reason {
			return true
		}
	}
	return false
}

// fakeLedger acumula los trades en memoria.
type fakeLedger struct {
	trades []domain.TradeRecord
}

func (f *fakeLedger) AppendTrade(_ context.Context, t domain.TradeRecord) error {
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeLedger) TradesSince(context.Context, time.Time) ([]domain.TradeRecord, error) {
	return f.trades, nil
}

func (f *fakeLedger) Close() error { return nil }

// deepBook crea un book con un solo nivel por lado y profundidad de sobra.
func deepBook(tokenID string, bid, ask float64) domain.OrderBook {
	ob := domain.OrderBook{TokenID: tokenID}
	if bid > 0 {
		ob.Bids = []domain.BookEntry{{Price: bid, Size: 100000}}
	}
	if ask > 0 {
		ob.Asks = []domain.BookEntry{{Price: ask, Size: 100000}}
	}
	return ob
}

func makeWorld(at time.Time, spot, upBid, upAsk, downBid, downAsk float64) domain.WorldState {
	return domain.WorldState{
		ConditionID: "interval-1",
		Up: domain.OutcomeQuote{
			TokenID:  "tok-up",
			Book:     deepBook("tok-up", upBid, upAsk),
			FeeKnown: true,
		},
		Down: domain.OutcomeQuote{
			TokenID:  "tok-down",
			Book:     deepBook("tok-down", downBid, downAsk),
			FeeKnown: true,
		},
		Spot:        domain.SpotQuote{Feed: "primary", Price: spot, At: at},
		IntervalEnd: t0.Add(15 * time.Minute),
		ObservedAt:  at,
	}
}

func TestArbitrage_ProposesStraddleOnGap(t *testing.T) {
	// up-ask 0.40 + down-ask 0.55 = 0.95 → 5 céntimos de gap sin fee
	exec := newFakeExec(1000)
	ledger := &fakeLedger{}
	arb := NewArbitrage(ArbitrageConfig{MinProfitCents: 1, MinShares: 1}, exec, ledger, nil)

	w := makeWorld(t0, 100000, 0.38, 0.40, 0.53, 0.55)
	require.NoError(t, arb.OnTick(context.Background(), w))

	pos, ok := arb.Position()
	require.True(t, ok, "straddle should be open")
	assert.Equal(t, domain.SideBoth, pos.Side)
	assert.Greater(t, pos.Shares, 0)

	profitPerShare := 1 - pos.EntryCost/float64(pos.Shares)
	assert.GreaterOrEqual(t, profitPerShare, 0.05-1e-6)
	assert.Equal(t, 2, exec.buys, "both legs, atomically")
}

func TestArbitrage_RespectsBudget(t *testing.T) {
	exec := newFakeExec(1000)
	arb := NewArbitrage(ArbitrageConfig{BudgetUSDC: 95, MinProfitCents: 1, MinShares: 1}, exec, &fakeLedger{}, nil)

	w := makeWorld(t0, 100000, 0.38, 0.40, 0.53, 0.55)
	require.NoError(t, arb.OnTick(context.Background(), w))

	pos, ok := arb.Position()
	require.True(t, ok)
	assert.LessOrEqual(t, pos.EntryCost, 95.0)
	// con 0.95 por pareja caben 100 shares justas
	assert.Equal(t, 100, pos.Shares)
}

func TestArbitrage_NoEntryWithoutGap(t *testing.T) {
	exec := newFakeExec(1000)
	arb := NewArbitrage(ArbitrageConfig{MinProfitCents: 1, MinShares: 1}, exec, &fakeLedger{}, nil)

	// 0.48 + 0.55 = 1.03 → sin arbitraje
	w := makeWorld(t0, 100000, 0.46, 0.48, 0.53, 0.55)
	require.NoError(t, arb.OnTick(context.Background(), w))

	_, ok := arb.Position()
	assert.False(t, ok)
	assert.Equal(t, 0, exec.buys)
}

func TestArbitrage_FeedDisagreementBlocksEntry(t *testing.T) {
	exec := newFakeExec(1000)
	rec := &spyRecorder{}
	arb := NewArbitrage(ArbitrageConfig{MinProfitCents: 1, MinShares: 1}, exec, &fakeLedger{}, rec)

	// gap de sobra, pero los feeds de spot discrepan
	w := makeWorld(t0, 100000, 0.38, 0.40, 0.53, 0.55)
	w.FeedsDisagree = true
	require.NoError(t, arb.OnTick(context.Background(), w))
	assert.Equal(t, 0, exec.buys)
	assert.True(t, rec.sawSkip(SkipFeedDisagreement))

	// el mismo gap con los feeds de acuerdo sí entra
	w.FeedsDisagree = false
	require.NoError(t, arb.OnTick(context.Background(), w))
	assert.Equal(t, 2, exec.buys)
}

func TestArbitrage_IdempotentWhileOpen(t *testing.T) {
	exec := newFakeExec(1000)
	arb := NewArbitrage(ArbitrageConfig{MinProfitCents: 1, MinShares: 1}, exec, &fakeLedger{}, nil)

	w := makeWorld(t0, 100000, 0.38, 0.40, 0.53, 0.55)
	require.NoError(t, arb.OnTick(context.Background(), w))
	require.Equal(t, 2, exec.buys)

	// mismo input con posición abierta: nunca una segunda entrada
	require.NoError(t, arb.OnTick(context.Background(), w))
	require.NoError(t, arb.OnTick(context.Background(), w))
	assert.Equal(t, 2, exec.buys)
}

func TestArbitrage_UnwindsFirstLegIfSecondFails(t *testing.T) {
	exec := newFakeExec(1000)
	arb := NewArbitrage(ArbitrageConfig{MinProfitCents: 1, MinShares: 1}, exec, &fakeLedger{}, nil)

	// la pata DOWN se rechaza en el executor → la UP se deshace
	exec.rejectTok = "tok-down"
	w := makeWorld(t0, 100000, 0.38, 0.40, 0.53, 0.55)

	require.NoError(t, arb.OnTick(context.Background(), w))
	_, ok := arb.Position()
	assert.False(t, ok)
	assert.Equal(t, 1, exec.buys)
	assert.Equal(t, 1, exec.sells, "up leg unwound")
	assert.Zero(t, exec.holdings["tok-up"])
}

func TestArbitrage_SettlesAtOneDollar(t *testing.T) {
	exec := newFakeExec(1000)
	ledger := &fakeLedger{}
	arb := NewArbitrage(ArbitrageConfig{MinProfitCents: 1, MinShares: 1, GasUSD: 0.02}, exec, ledger, nil)

	w := makeWorld(t0, 100000, 0.38, 0.40, 0.53, 0.55)
	require.NoError(t, arb.OnTick(context.Background(), w))
	pos, _ := arb.Position()

	end := makeWorld(t0.Add(15*time.Minute), 100000, 0.38, 0.40, 0.53, 0.55)
	require.NoError(t, arb.OnIntervalEnd(context.Background(), end, domain.SideUp))

	_, ok := arb.Position()
	assert.False(t, ok, "straddle destroyed on settlement")
	require.Len(t, ledger.trades, 1)

	rec := ledger.trades[0]
	assert.Equal(t, "settlement", rec.Reason)
	// N shares pagan N×$1; el coste fue ~0.95×N → PnL ≈ 0.05×N − gas
	expected := float64(pos.Shares)*0.05 - 0.02
	assert.InDelta(t, expected, rec.PnL, 1e-6)
}

func TestConfirmCounter(t *testing.T) {
	var c confirmCounter
	assert.Equal(t, 1, c.bump("a"))
	assert.Equal(t, 2, c.bump("a"))
	assert.Equal(t, 1, c.bump("b"), "key change resets the streak")
	c.reset()
	assert.Equal(t, 1, c.bump("b"))
}
