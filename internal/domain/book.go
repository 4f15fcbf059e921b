package domain

import "fmt"

// Matemática pura de barridos sobre niveles del orderbook.
//
// Invariante clave: CostToBuy es no-decreciente en shares (los asks están
// ordenados de menor a mayor precio), lo que permite dimensionar posiciones
// con una única búsqueda binaria genérica (LargestWhere).

// Fill es el resultado de barrer un lado del book para un número exacto de shares.
type Fill struct {
	Shares     int
	Notional   float64 // valor barrido sin fee
	Fee        float64
	Total      float64 // compra: notional + fee; venta: notional − fee
	AvgPrice   float64
	WorstPrice float64 // peor nivel tocado (más caro al comprar, más barato al vender)
}

// CostToBuy barre los asks de mejor a peor acumulando notional hasta consumir
// exactamente shares. Falla con ErrInsufficientDepth si el book no alcanza:
// nunca se reporta un fill parcial como éxito.
// El coste devuelto incluye el fee: notional × (1 + feeBps/10000).
func CostToBuy(asks []BookEntry, shares int, feeBps float64) (Fill, error) {
	if shares <= 0 {
		return Fill{}, fmt.Errorf("domain.CostToBuy: shares must be positive, got %d", shares)
	}

	remaining := float64(shares)
	var notional, worst float64
	for _, lvl := range asks {
		if lvl.Size <= 0 || lvl.Price <= 0 {
			continue
		}
		take := lvl.Size
		if take > remaining {
			take = remaining
		}
		notional += take * lvl.Price
		worst = lvl.Price
		remaining -= take
		if remaining <= 0 {
			break
		}
	}
	if remaining > 0 {
		return Fill{}, ErrInsufficientDepth
	}

	fee := notional * FeeFraction(feeBps)
	return Fill{
		Shares:     shares,
		Notional:   notional,
		Fee:        fee,
		Total:      notional + fee,
		AvgPrice:   notional / float64(shares),
		WorstPrice: worst,
	}, nil
}

// ProceedsFromSell barre los bids de mejor a peor acumulando notional hasta
// consumir exactamente shares. Los bids están ordenados descendente, así que
// al encontrar un nivel por debajo de minPrice se PARA (no se salta): todo lo
// que sigue es aún peor. Si no se llenan las shares, ErrInsufficientDepth.
// Los proceeds devueltos son netos de fee: notional × (1 − feeBps/10000).
func ProceedsFromSell(bids []BookEntry, shares int, feeBps, minPrice float64) (Fill, error) {
	if shares <= 0 {
		return Fill{}, fmt.Errorf("domain.ProceedsFromSell: shares must be positive, got %d", shares)
	}

	remaining := float64(shares)
	var notional, worst float64
	for _, lvl := range bids {
		if lvl.Size <= 0 || lvl.Price <= 0 {
			continue
		}
		if lvl.Price < minPrice {
			break
		}
		take := lvl.Size
		if take > remaining {
			take = remaining
		}
		notional += take * lvl.Price
		worst = lvl.Price
		remaining -= take
		if remaining <= 0 {
			break
		}
	}
	if remaining > 0 {
		return Fill{}, ErrInsufficientDepth
	}

	fee := notional * FeeFraction(feeBps)
	return Fill{
		Shares:     shares,
		Notional:   notional,
		Fee:        fee,
		Total:      notional - fee,
		AvgPrice:   notional / float64(shares),
		WorstPrice: worst,
	}, nil
}

// LargestWhere devuelve el mayor n en [lo, hi] que cumple ok(n), asumiendo que
// ok es monótono: si ok(n) falla, ok(m) falla para todo m > n. Es la única
// rutina de búsqueda que usan todos los caminos de sizing.
func LargestWhere(lo, hi int, ok func(int) bool) (int, bool) {
	if lo > hi || !ok(lo) {
		return 0, false
	}
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if ok(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, true
}

// MaxSharesForBudget devuelve el mayor número de shares cuyo coste con fee cabe
// en budget, con un mínimo de minShares. Se apoya en que CostToBuy es
// no-decreciente en shares.
// Devuelve ErrBudgetTooSmall si ni minShares caben, ErrInsufficientDepth si el
// book no tiene profundidad ni para minShares.
func MaxSharesForBudget(asks []BookEntry, feeBps, budget float64, minShares int) (int, error) {
	if minShares < 1 {
		minShares = 1
	}

	// Cota superior: total de shares disponibles en el book.
	var available float64
	for _, lvl := range asks {
		if lvl.Size > 0 && lvl.Price > 0 {
			available += lvl.Size
		}
	}
	hi := int(available)
	if hi < minShares {
		return 0, ErrInsufficientDepth
	}

	fits := func(n int) bool {
		fill, err := CostToBuy(asks, n, feeBps)
		return err == nil && fill.Total <= budget
	}

	n, ok := LargestWhere(minShares, hi, fits)
	if !ok {
		if _, err := CostToBuy(asks, minShares, feeBps); err != nil {
			return 0, err
		}
		return 0, ErrBudgetTooSmall
	}
	return n, nil
}
