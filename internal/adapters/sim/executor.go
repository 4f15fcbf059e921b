package sim

// Executor simula fill-or-kill contra el último orderbook disponible, con un
// ledger USDC en memoria. Es el modo paper: misma superficie que el executor
// real, sin tocar fondos.

import (
	"context"
	"fmt"
	"sync"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// Executor implementa ports.OrderExecutor sobre un BookProvider.
type Executor struct {
	books ports.BookProvider

	mu       sync.Mutex
	balance  float64
	holdings map[string]int
}

// NewExecutor crea el executor simulado con el capital inicial dado.
func NewExecutor(books ports.BookProvider, initialBalance float64) *Executor {
	return &Executor{
		books:    books,
		balance:  initialBalance,
		holdings: make(map[string]int),
	}
}

// Balance devuelve el USDC disponible.
func (e *Executor) Balance(context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance, nil
}

// Holdings devuelve las shares en cartera del token.
func (e *Executor) Holdings(tokenID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.holdings[tokenID]
}

// BuyFOK barre los asks del book actual. Todo o nada: si no hay profundidad,
// el peor nivel excede el límite o el coste excede el balance, se rechaza sin
// tocar el estado.
func (e *Executor) BuyFOK(ctx context.Context, tokenID string, shares int, limitPrice float64) (domain.Fill, error) {
	book, feeBps, err := e.snapshot(ctx, tokenID)
	if err != nil {
		return domain.Fill{}, err
	}

	fill, err := domain.CostToBuy(book.Asks, shares, feeBps)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("sim.BuyFOK: %w", err)
	}
	if fill.WorstPrice > limitPrice {
		return domain.Fill{}, fmt.Errorf("sim.BuyFOK: worst level %.4f above limit %.4f: %w",
			fill.WorstPrice, limitPrice, domain.ErrOrderRejected)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if fill.Total > e.balance {
		return domain.Fill{}, fmt.Errorf("sim.BuyFOK: cost %.2f exceeds balance %.2f: %w",
			fill.Total, e.balance, domain.ErrInsufficientBalance)
	}
	e.balance -= fill.Total
	e.holdings[tokenID] += shares
	return fill, nil
}

// SellFOK barre los bids del book actual. Un límite de 0 vende a cualquier
// precio (usado para deshacer patas).
func (e *Executor) SellFOK(ctx context.Context, tokenID string, shares int, limitPrice float64) (domain.Fill, error) {
	e.mu.Lock()
	held := e.holdings[tokenID]
	e.mu.Unlock()
	if held < shares {
		return domain.Fill{}, fmt.Errorf("sim.SellFOK: hold %d, want %d: %w",
			held, shares, domain.ErrNoHoldings)
	}

	book, feeBps, err := e.snapshot(ctx, tokenID)
	if err != nil {
		return domain.Fill{}, err
	}

	fill, err := domain.ProceedsFromSell(book.Bids, shares, feeBps, limitPrice)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("sim.SellFOK: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance += fill.Total
	e.holdings[tokenID] -= shares
	return fill, nil
}

// Redeem liquida shares al payout de resolución ($1 el ganador, $0 el resto).
func (e *Executor) Redeem(_ context.Context, tokenID string, shares int, payoutPerShare float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.holdings[tokenID] < shares {
		return 0, fmt.Errorf("sim.Redeem: hold %d, want %d: %w",
			e.holdings[tokenID], shares, domain.ErrNoHoldings)
	}
	proceeds := float64(shares) * payoutPerShare
	e.balance += proceeds
	e.holdings[tokenID] -= shares
	return proceeds, nil
}

// snapshot trae el book y el fee del token. Fee desconocido cuenta como cero:
// las estrategias ya filtran entradas con fee desconocido antes de llegar aquí.
func (e *Executor) snapshot(ctx context.Context, tokenID string) (domain.OrderBook, float64, error) {
	books, err := e.books.FetchOrderBooks(ctx, []string{tokenID})
	if err != nil {
		return domain.OrderBook{}, 0, fmt.Errorf("sim.snapshot: books: %w", err)
	}
	book, ok := books[tokenID]
	if !ok {
		return domain.OrderBook{}, 0, fmt.Errorf("sim.snapshot: no book for %s: %w",
			tokenID, domain.ErrInsufficientDepth)
	}
	feeBps, err := e.books.FeeBps(ctx, tokenID)
	if err != nil {
		return book, 0, nil
	}
	return book, domain.NormalizeFeeBps(feeBps), nil
}
