package domain

import "strconv"

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread devuelve el spread del book (ask - bid).
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// Imbalance devuelve el desequilibrio de volumen en los primeros depth niveles:
// (bidVol - askVol) / (bidVol + askVol), en [-1, 1]. Positivo = presión compradora.
// Devuelve 0 si alguno de los dos lados está vacío.
func (ob OrderBook) Imbalance(depth int) float64 {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0
	}
	var bidVol, askVol float64
	for i, b := range ob.Bids {
		if i >= depth {
			break
		}
		bidVol += b.Size
	}
	for i, a := range ob.Asks {
		if i >= depth {
			break
		}
		askVol += a.Size
	}
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return (bidVol - askVol) / total
}

// Microprice devuelve el precio ponderado por el volumen del nivel opuesto:
// (bid·askSize + ask·bidSize) / (bidSize + askSize). Se acerca al lado con
// menos profundidad, anticipando hacia dónde se moverá el mid.
// Devuelve 0 si el book está vacío o sin tamaño en el top.
func (ob OrderBook) Microprice() float64 {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0
	}
	bid, ask := ob.Bids[0], ob.Asks[0]
	total := bid.Size + ask.Size
	if total == 0 {
		return 0
	}
	return (bid.Price*ask.Size + ask.Price*bid.Size) / total
}

// MicropricePressure devuelve microprice - midpoint. Positivo = presión al alza.
func (ob OrderBook) MicropricePressure() float64 {
	mid := ob.Midpoint()
	micro := ob.Microprice()
	if mid == 0 || micro == 0 {
		return 0
	}
	return micro - mid
}

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de la API.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
