package polymarket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const (
	booksPath = "/books"
	batchSize = 20 // máx token_ids por request a /books
)

// FetchOrderBooks obtiene los orderbooks para los token_ids dados usando el
// endpoint batch. El bot solo sigue los dos tokens del intervalo activo, así
// que en la práctica es un único POST; el troceo en batches queda por si un
// caller pide más.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	result := make(map[string]domain.OrderBook, len(tokenIDs))
	for i := 0; i < len(tokenIDs); i += batchSize {
		end := min(i+batchSize, len(tokenIDs))
		books, err := c.fetchBooksBatch(ctx, tokenIDs[i:end])
		if err != nil {
			return nil, fmt.Errorf("polymarket.FetchOrderBooks: %w", err)
		}
		for k, v := range books {
			result[k] = v
		}
	}

	slog.Debug("order books fetched", "tokens", len(tokenIDs), "books", len(result))
	return result, nil
}

// fetchBooksBatch hace un POST /books para un batch de token_ids.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := c.post(ctx, c.booksLimiter, c.clobBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	return mapOrderBooks(resp), nil
}

// FeeBps devuelve el taker fee del token en basis points, desde la caché que
// puebla CurrentInterval. Si el token no tiene fee cacheado intenta un lookup
// por condition ID; si tampoco, ErrUnknownFee: el tick se salta y se reintenta.
func (c *Client) FeeBps(ctx context.Context, tokenID string) (float64, error) {
	c.mu.RLock()
	fee, ok := c.feeBpsByTok[tokenID]
	c.mu.RUnlock()
	if ok {
		return fee, nil
	}

	cond, known := c.conditionFor(tokenID)
	if !known {
		return 0, fmt.Errorf("polymarket.FeeBps: token %s: %w", shortID(tokenID), domain.ErrUnknownFee)
	}

	m, err := c.fetchCLOBMarket(ctx, cond)
	if err != nil {
		return 0, fmt.Errorf("polymarket.FeeBps: %w: %v", domain.ErrUnknownFee, err)
	}

	fee = domain.NormalizeFeeBps(m.TakerBaseFee)
	c.mu.Lock()
	c.feeBpsByTok[tokenID] = fee
	c.mu.Unlock()
	return fee, nil
}
