package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/updownbot/internal/domain"
)

// mapInterval convierte un mercado de Gamma a domain.Interval. Los tokens se
// asignan por outcome ("Up"/"Down"); un mercado sin exactamente dos tokens o
// sin fecha de fin es un error, no un intervalo a medias.
func mapInterval(gm gammaMarket) (domain.Interval, error) {
	var tokenIDs, outcomes []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.Interval{}, fmt.Errorf("parse clobTokenIds %q: %w", gm.ClobTokenIDs, err)
	}
	if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
		return domain.Interval{}, fmt.Errorf("parse outcomes %q: %w", gm.Outcomes, err)
	}
	if len(tokenIDs) != 2 || len(outcomes) != 2 {
		return domain.Interval{}, fmt.Errorf("market %s: expected 2 tokens, got %d/%d", gm.ConditionID, len(tokenIDs), len(outcomes))
	}

	itv := domain.Interval{ConditionID: gm.ConditionID}
	for i, outcome := range outcomes {
		side, ok := sideFromOutcome(outcome)
		if !ok {
			return domain.Interval{}, fmt.Errorf("market %s: unknown outcome %q", gm.ConditionID, outcome)
		}
		if side == domain.SideUp {
			itv.UpTokenID = tokenIDs[i]
		} else {
			itv.DownTokenID = tokenIDs[i]
		}
	}
	if itv.UpTokenID == "" || itv.DownTokenID == "" {
		return domain.Interval{}, fmt.Errorf("market %s: missing Up or Down token", gm.ConditionID)
	}

	itv.EndTime = parseMarketTime(gm.EndDate)
	if itv.EndTime.IsZero() {
		return domain.Interval{}, fmt.Errorf("market %s: unparseable endDate %q", gm.ConditionID, gm.EndDate)
	}
	return itv, nil
}

// sideFromOutcome mapea el outcome textual del catálogo a un lado.
func sideFromOutcome(outcome string) (domain.Side, bool) {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "up", "yes":
		return domain.SideUp, true
	case "down", "no":
		return domain.SideDown, true
	}
	return "", false
}

// winnerFromTokens devuelve el lado del token marcado como winner en el CLOB.
func winnerFromTokens(tokens []clobToken) (domain.Side, error) {
	for _, t := range tokens {
		if !t.Winner {
			continue
		}
		side, ok := sideFromOutcome(t.Outcome)
		if !ok {
			return "", fmt.Errorf("winner token has unknown outcome %q", t.Outcome)
		}
		return side, nil
	}
	return "", fmt.Errorf("no winner token: market not resolved yet")
}

// parseMarketTime parsea las fechas del catálogo. Polymarket usa varios
// formatos; intentamos los más comunes. Zero value si ninguno encaja.
func parseMarketTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}

// mapDataTrade convierte un trade raw de la Data API a domain.TakerTrade.
func mapDataTrade(rt rawDataTrade) domain.TakerTrade {
	price, _ := rt.Price.Float64()
	size, _ := rt.Size.Float64()
	return domain.TakerTrade{
		Price:    price,
		Size:     size,
		TakerBuy: strings.EqualFold(rt.Side, "BUY"),
		At:       parseTradeTimestamp(rt.Timestamp),
	}
}

// parseTradeTimestamp parsea el timestamp de la Data API, que puede venir
// como unix seconds, unix millis, float o ISO 8601.
func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.UnixMilli(sec).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
