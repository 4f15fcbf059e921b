package ports

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// Notifier presenta la actividad del bot al operador.
type Notifier interface {
	// TradeOpened anuncia una entrada admitida.
	TradeOpened(ctx context.Context, p domain.OpenPosition) error

	// TradeClosed anuncia un ciclo de vida completado.
	TradeClosed(ctx context.Context, t domain.TradeRecord) error

	// Summary imprime el resumen de la sesión a partir del ledger.
	Summary(ctx context.Context, trades []domain.TradeRecord) error
}
