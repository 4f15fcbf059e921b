package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

// defaultDisagreeFrac es el umbral duro de discrepancia entre feeds: 0.1%
// del precio primario. Por encima se suprimen todas las entradas nuevas.
const defaultDisagreeFrac = 0.001

// Composite combina un feed primario y opcionalmente uno alternativo en la
// observación única que consume el Orchestrator. Implementa
// ports.SpotObserver.
//
// El feed alternativo es best-effort: si falla, la observación sale solo con
// el primario y sin flag de discrepancia. Si falla el primario, falla la
// observación entera.
type Composite struct {
	primary      ports.SpotFeed
	alt          ports.SpotFeed // puede ser nil
	limiter      *rate.Limiter
	disagreeFrac float64
}

// NewComposite crea el observer. pollsPerSec limita el ritmo total de
// consultas; disagreeFrac ≤ 0 usa el umbral por defecto.
func NewComposite(primary, alt ports.SpotFeed, pollsPerSec float64, disagreeFrac float64) *Composite {
	if pollsPerSec <= 0 {
		pollsPerSec = 2
	}
	if disagreeFrac <= 0 {
		disagreeFrac = defaultDisagreeFrac
	}
	return &Composite{
		primary:      primary,
		alt:          alt,
		limiter:      rate.NewLimiter(rate.Limit(pollsPerSec), 1),
		disagreeFrac: disagreeFrac,
	}
}

// Observe consulta los feeds y compara sus cotizaciones.
func (c *Composite) Observe(ctx context.Context) (domain.SpotObservation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.SpotObservation{}, fmt.Errorf("feed.Observe: rate limiter: %w", err)
	}

	primary, err := c.primary.Spot(ctx)
	if err != nil {
		return domain.SpotObservation{}, fmt.Errorf("feed.Observe: %s: %w", c.primary.Name(), err)
	}

	obs := domain.SpotObservation{Primary: primary}
	if c.alt == nil {
		return obs, nil
	}

	alt, err := c.alt.Spot(ctx)
	if err != nil {
		slog.Warn("alt spot feed failed, skipping disagreement check",
			"feed", c.alt.Name(), "err", err)
		return obs, nil
	}

	obs.Alt = &alt
	obs.Disagree = disagree(primary.Price, alt.Price, c.disagreeFrac)
	if obs.Disagree {
		slog.Warn("spot feeds disagree, suppressing new entries",
			c.primary.Name(), primary.Price,
			c.alt.Name(), alt.Price,
		)
	}
	return obs, nil
}

// disagree devuelve true si los dos precios difieren más que frac del primario.
func disagree(primary, alt, frac float64) bool {
	if primary <= 0 || alt <= 0 {
		return true
	}
	return math.Abs(primary-alt)/primary > frac
}
