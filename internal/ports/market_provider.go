package ports

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// MarketProvider resuelve el mercado del intervalo actual contra el catálogo.
// La resolución en sí (API de catálogo) es un colaborador externo al núcleo.
type MarketProvider interface {
	// CurrentInterval devuelve el intervalo activo: condition ID, tokens
	// UP/DOWN y hora de fin.
	CurrentInterval(ctx context.Context) (domain.Interval, error)

	// Winner devuelve el lado ganador de un intervalo ya resuelto.
	Winner(ctx context.Context, conditionID string) (domain.Side, error)
}

// BookProvider obtiene orderbooks del CLOB.
type BookProvider interface {
	// FetchOrderBooks devuelve los orderbooks para los token_ids dados.
	FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error)

	// FeeBps devuelve el taker fee del token en basis points.
	// ErrUnknownFee si aún no se conoce: el tick se salta y se reintenta.
	FeeBps(ctx context.Context, tokenID string) (float64, error)
}
