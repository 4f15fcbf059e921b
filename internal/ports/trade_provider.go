package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// TradeProvider obtiene los taker trades recientes de un token, para las
// métricas de flujo.
type TradeProvider interface {
	// RecentTrades devuelve los trades del token desde la fecha dada,
	// ordenados por timestamp ascendente.
	RecentTrades(ctx context.Context, tokenID string, since time.Time) ([]domain.TakerTrade, error)
}
