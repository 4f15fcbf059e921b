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
	defaultBinanceBase = "https://api.binance.com"
	defaultSymbol      = "BTCUSDT"
)

// BinanceFeed obtiene el spot del ticker público de Binance. Sirve como
// segundo feed independiente para el check de discrepancia.
type BinanceFeed struct {
	http   *http.Client
	base   string
	symbol string
}

// NewBinanceFeed crea un feed para el símbolo dado ("BTCUSDT" si vacío).
func NewBinanceFeed(base, symbol string) *BinanceFeed {
	if base == "" {
		base = defaultBinanceBase
	}
	if symbol == "" {
		symbol = defaultSymbol
	}
	return &BinanceFeed{
		http:   &http.Client{Timeout: 5 * time.Second},
		base:   strings.TrimRight(base, "/"),
		symbol: symbol,
	}
}

func (f *BinanceFeed) Name() string { return "binance" }

// Spot devuelve la última cotización del símbolo.
func (f *BinanceFeed) Spot(ctx context.Context) (domain.SpotQuote, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", f.base, f.symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.SpotQuote{}, fmt.Errorf("feed.binance: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return domain.SpotQuote{}, fmt.Errorf("feed.binance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return domain.SpotQuote{}, fmt.Errorf("feed.binance: status %d: %s", resp.StatusCode, body)
	}

	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return domain.SpotQuote{}, fmt.Errorf("feed.binance: decode ticker: %w", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil || price <= 0 {
		return domain.SpotQuote{}, fmt.Errorf("feed.binance: bad price %q", ticker.Price)
	}

	return domain.SpotQuote{Feed: f.Name(), Price: price, At: time.Now().UTC()}, nil
}
