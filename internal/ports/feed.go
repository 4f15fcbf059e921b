package ports

import (
	"context"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// SpotFeed es una fuente del precio spot del subyacente.
type SpotFeed interface {
	// Name identifica el feed en logs y en el check de discrepancia.
	Name() string

	// Spot devuelve la última cotización del subyacente.
	Spot(ctx context.Context) (domain.SpotQuote, error)
}

// SpotObserver combina uno o más feeds en una observación única con el flag
// de discrepancia que consume la estrategia de lag.
type SpotObserver interface {
	// Observe consulta los feeds y compara sus cotizaciones.
	Observe(ctx context.Context) (domain.SpotObservation, error)
}
