package domain

// Modelo de taker fees del CLOB para mercados de intervalo.
//
// El fee escala con la distancia del precio de ejecución a la certeza:
// comprar a 0.99 casi no paga fee, comprar a 0.50 paga el máximo.
//
//	fee = notional × (1 − executionPrice) × baseTakerRate

// baseTakerRate es la tasa base del taker fee (2%).
const baseTakerRate = 0.02

// TakerFee devuelve el fee de una orden cruzante con el notional y precio dados.
func TakerFee(notional, executionPrice float64) float64 {
	if notional <= 0 {
		return 0
	}
	return notional * (1 - executionPrice) * baseTakerRate
}

// ApplyFeeOnBuy devuelve el coste total de una compra: notional + fee.
func ApplyFeeOnBuy(notional, executionPrice float64) float64 {
	return notional + TakerFee(notional, executionPrice)
}

// ApplyFeeOnSell devuelve los proceeds netos de una venta: notional − fee.
func ApplyFeeOnSell(notional, executionPrice float64) float64 {
	return notional - TakerFee(notional, executionPrice)
}

// NormalizeFeeBps normaliza un fee que la API puede devolver como fracción
// (0.02) o como basis points (200). Si 0 < raw < 1 se interpreta como
// fracción y se multiplica por 10000; si no, ya viene en bps.
func NormalizeFeeBps(raw float64) float64 {
	if raw > 0 && raw < 1 {
		return raw * 10000
	}
	return raw
}

// FeeFraction convierte bps a fracción (200 bps → 0.02).
func FeeFraction(feeBps float64) float64 {
	return feeBps / 10000
}

// RoundTripFeeCents estima, en céntimos por share, el coste de entrar y salir
// a los precios dados. Es el componente "breakeven" del edge requerido.
func RoundTripFeeCents(entryPrice, exitPrice, feeBps float64) float64 {
	frac := FeeFraction(feeBps)
	return (entryPrice*frac + exitPrice*frac) * 100
}
