package ports

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// OrderExecutor es la capacidad de ejecución que el núcleo exige a sus
// colaboradores: consultar presupuesto y cruzar órdenes fill-or-kill.
// El núcleo no conoce el transporte; en simulación es un ledger en memoria.
type OrderExecutor interface {
	// Balance devuelve el presupuesto disponible en USDC.
	Balance(ctx context.Context) (float64, error)

	// BuyFOK compra shares del token con una orden fill-or-kill: o se llena
	// entera con el peor precio ≤ limitPrice, o devuelve ErrOrderRejected /
	// ErrInsufficientDepth sin tocar ningún estado.
	BuyFOK(ctx context.Context, tokenID string, shares int, limitPrice float64) (domain.Fill, error)

	// SellFOK vende shares en cartera con una orden fill-or-kill al peor
	// precio ≥ limitPrice.
	SellFOK(ctx context.Context, tokenID string, shares int, limitPrice float64) (domain.Fill, error)

	// Redeem liquida shares de un token resuelto a payoutPerShare (1.0 el
	// ganador, 0.0 el perdedor) y devuelve los proceeds.
	Redeem(ctx context.Context, tokenID string, shares int, payoutPerShare float64) (float64, error)
}
