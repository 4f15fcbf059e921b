package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const (
	tradesPerPage  = 500
	tradesMaxPages = 3
)

// RecentTrades obtiene los taker trades del token desde la fecha dada usando
// la Data API pública. La API devuelve páginas en orden descendente; se
// pagina hasta cruzar `since` o agotar tradesMaxPages, y el resultado se
// devuelve ascendente como exige ports.TradeProvider.
func (c *Client) RecentTrades(ctx context.Context, tokenID string, since time.Time) ([]domain.TakerTrade, error) {
	var all []domain.TakerTrade

	for page := 0; page < tradesMaxPages; page++ {
		offset := page * tradesPerPage
		url := fmt.Sprintf("%s/trades?asset=%s&limit=%d&offset=%d",
			c.dataBase, tokenID, tradesPerPage, offset)

		var resp []rawDataTrade
		if err := c.get(ctx, c.clobLimiter, url, &resp); err != nil {
			return nil, fmt.Errorf("polymarket.RecentTrades: %w", err)
		}
		if len(resp) == 0 {
			break
		}

		crossedSince := false
		for _, rt := range resp {
			t := mapDataTrade(rt)
			if t.At.IsZero() || !t.At.After(since) {
				crossedSince = true
				continue
			}
			all = append(all, t)
		}

		slog.Debug("fetched trades page",
			"token", shortID(tokenID),
			"page", page,
			"count", len(resp),
			"kept", len(all),
		)

		if crossedSince || len(resp) < tradesPerPage {
			break
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].At.Before(all[j].At) })
	return all, nil
}
