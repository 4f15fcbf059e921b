package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// TradeStorage persiste el ledger inmutable de trades.
type TradeStorage interface {
	// AppendTrade añade una entrada al ledger. Las entradas nunca se mutan.
	AppendTrade(ctx context.Context, t domain.TradeRecord) error

	// TradesSince devuelve las entradas del ledger desde la fecha dada,
	// ordenadas por cierre ascendente.
	TradesSince(ctx context.Context, from time.Time) ([]domain.TradeRecord, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
