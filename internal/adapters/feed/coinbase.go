package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

const (
	defaultCoinbaseBase = "https://api.coinbase.com"
	defaultProduct      = "BTC-USD"
)

// CoinbaseFeed obtiene el spot del subyacente del endpoint público de
// productos de Coinbase Advanced Trade. Implementa ports.SpotFeed.
type CoinbaseFeed struct {
	http    *http.Client
	base    string
	product string
}

// NewCoinbaseFeed crea un feed para el producto dado ("BTC-USD" si vacío).
func NewCoinbaseFeed(base, product string) *CoinbaseFeed {
	if base == "" {
		base = defaultCoinbaseBase
	}
	if product == "" {
		product = defaultProduct
	}
	return &CoinbaseFeed{
		http:    &http.Client{Timeout: 5 * time.Second},
		base:    strings.TrimRight(base, "/"),
		product: product,
	}
}

func (f *CoinbaseFeed) Name() string { return "coinbase" }

// Spot devuelve la última cotización del producto.
func (f *CoinbaseFeed) Spot(ctx context.Context) (domain.SpotQuote, error) {
	url := fmt.Sprintf("%s/api/v3/brokerage/products/%s", f.base, f.product)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.SpotQuote{}, fmt.Errorf("feed.coinbase: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return domain.SpotQuote{}, fmt.Errorf("feed.coinbase: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return domain.SpotQuote{}, fmt.Errorf("feed.coinbase: status %d: %s", resp.StatusCode, body)
	}

	price, err := parseCoinbaseProduct(resp.Body)
	if err != nil {
		return domain.SpotQuote{}, fmt.Errorf("feed.coinbase: %w", err)
	}

	return domain.SpotQuote{Feed: f.Name(), Price: price, At: time.Now().UTC()}, nil
}

// parseCoinbaseProduct extrae el precio del payload de producto. Coinbase
// reparte el precio entre varios campos según el tipo de producto; se prueba
// cada uno en orden.
func parseCoinbaseProduct(r io.Reader) (float64, error) {
	var payload map[string]any
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode product: %w", err)
	}

	for _, key := range []string{"price", "mid_market_price", "best_ask", "best_bid"} {
		v, ok := payload[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil && f > 0 {
				return f, nil
			}
		case float64:
			if t > 0 {
				return t, nil
			}
		}
	}
	return 0, fmt.Errorf("no usable price in product payload")
}
