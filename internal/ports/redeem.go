package ports

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// PositionRedeemer liquida on-chain las posiciones de un intervalo resuelto,
// convirtiendo los tokens ganadores en colateral. Solo lo usa el executor
// live; en simulación la redención es contable.
type PositionRedeemer interface {
	// RedeemPositions redime las posiciones del condition ID dado.
	RedeemPositions(ctx context.Context, conditionID string, amount float64) (domain.RedeemResult, error)

	// EstimateGasCostUSD estima el coste de gas de una redención en USD.
	EstimateGasCostUSD(ctx context.Context) (float64, error)
}
