package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const (
	gammaMarketsPath = "/markets"
	clobMarketPath   = "/markets/"

	// Gamma devuelve varios intervalos futuros de la serie; con unos pocos
	// basta para encontrar el activo.
	intervalLookahead = 8
)

// CurrentInterval resuelve el intervalo activo de la serie contra Gamma:
// el mercado abierto cuya hora de fin es la más próxima en el futuro.
// Al resolverlo cachea el taker fee y el condition ID de ambos tokens
// consultando el CLOB, para que FeeBps y el executor no repitan el lookup.
func (c *Client) CurrentInterval(ctx context.Context) (domain.Interval, error) {
	url := fmt.Sprintf("%s%s?series_slug=%s&closed=false&active=true&order=endDate&ascending=true&limit=%d",
		c.gammaBase, gammaMarketsPath, c.seriesSlug, intervalLookahead)

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
		return domain.Interval{}, fmt.Errorf("polymarket.CurrentInterval: gamma: %w", err)
	}

	now := time.Now().UTC()
	for _, gm := range resp {
		itv, err := mapInterval(gm)
		if err != nil {
			slog.Debug("skipping unmappable interval market", "slug", gm.Slug, "err", err)
			continue
		}
		if !itv.EndTime.After(now) {
			continue
		}

		c.cacheMarketMeta(ctx, itv)
		slog.Debug("interval resolved",
			"condition", shortID(itv.ConditionID),
			"slug", gm.Slug,
			"ends", itv.EndTime.Format(time.RFC3339),
		)
		return itv, nil
	}

	return domain.Interval{}, fmt.Errorf("polymarket.CurrentInterval: no open market in series %s", c.seriesSlug)
}

// Winner devuelve el lado ganador de un intervalo ya resuelto, consultando
// el flag winner de los tokens en el CLOB.
func (c *Client) Winner(ctx context.Context, conditionID string) (domain.Side, error) {
	m, err := c.fetchCLOBMarket(ctx, conditionID)
	if err != nil {
		return "", fmt.Errorf("polymarket.Winner: %w", err)
	}

	side, err := winnerFromTokens(m.Tokens)
	if err != nil {
		return "", fmt.Errorf("polymarket.Winner: market %s: %w", shortID(conditionID), err)
	}
	return side, nil
}

// cacheMarketMeta consulta el CLOB y cachea fee, condition ID y flag negRisk
// de los dos tokens del intervalo. Best-effort: si el CLOB falla, el fee
// queda desconocido y FeeBps devolverá ErrUnknownFee hasta el retry.
func (c *Client) cacheMarketMeta(ctx context.Context, itv domain.Interval) {
	m, err := c.fetchCLOBMarket(ctx, itv.ConditionID)
	if err != nil {
		slog.Warn("could not fetch market meta, fee stays unknown",
			"condition", shortID(itv.ConditionID), "err", err)
		return
	}

	feeBps := domain.NormalizeFeeBps(m.TakerBaseFee)

	c.mu.Lock()
	for _, tok := range []string{itv.UpTokenID, itv.DownTokenID} {
		c.feeBpsByTok[tok] = feeBps
		c.conditionOf[tok] = itv.ConditionID
		c.negRiskOf[tok] = m.NegRisk
	}
	c.mu.Unlock()
}

// fetchCLOBMarket obtiene un mercado del CLOB por condition ID.
func (c *Client) fetchCLOBMarket(ctx context.Context, conditionID string) (clobMarket, error) {
	var m clobMarket
	url := c.clobBase + clobMarketPath + conditionID
	if err := c.get(ctx, c.clobLimiter, url, &m); err != nil {
		return clobMarket{}, fmt.Errorf("GET /markets/%s: %w", shortID(conditionID), err)
	}
	if m.ConditionID == "" {
		return clobMarket{}, fmt.Errorf("GET /markets/%s: empty market", shortID(conditionID))
	}
	return m, nil
}

// conditionFor devuelve el condition ID cacheado del token, si se conoce.
func (c *Client) conditionFor(tokenID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cond, ok := c.conditionOf[tokenID]
	return cond, ok
}

// isNegRisk devuelve el flag negRisk del token, consultando el CLOB si no
// está cacheado.
func (c *Client) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	c.mu.RLock()
	neg, ok := c.negRiskOf[tokenID]
	c.mu.RUnlock()
	if ok {
		return neg, nil
	}

	var resp clobNegRiskResponse
	url := fmt.Sprintf("%s/neg-risk?token_id=%s", c.clobBase, tokenID)
	if err := c.get(ctx, c.clobLimiter, url, &resp); err != nil {
		return false, fmt.Errorf("neg-risk check: %w", err)
	}

	c.mu.Lock()
	c.negRiskOf[tokenID] = resp.NegRisk
	c.mu.Unlock()
	return resp.NegRisk, nil
}

// shortID acorta un condition ID para logs.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
