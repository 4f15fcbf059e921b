package domain

import "time"

// Side es uno de los dos resultados complementarios del mercado de intervalo.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"

	// SideBoth marca un straddle: posición simultánea en ambos tokens.
	SideBoth Side = "BOTH"
)

// Opposite devuelve el lado complementario.
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// OpenPosition es la posición abierta de una estrategia. Se crea en una
// entrada admitida, solo la muta la estrategia propietaria y se destruye
// en la salida o en el settlement del intervalo.
type OpenPosition struct {
	ID          string // UUID local
	Strategy    string
	Side        Side
	Shares      int
	EntryPrice  float64 // precio medio de entrada
	EntryCost   float64 // coste total con fee
	StopPrice   float64
	TargetPrice float64
	OpenedAt    time.Time
	SettlesAt   time.Time // fin del intervalo en el que se abrió
	ConditionID string    // para detectar intervalos stale
	TokenID     string    // para detectar token mismatch
}

// IsStale devuelve true si la posición pertenece a un intervalo distinto del
// actual o su token ya no es el del snapshot. Con una posición stale la
// evaluación de salidas se congela y se avisa al operador.
func (p OpenPosition) IsStale(conditionID, tokenID string) bool {
	return p.ConditionID != conditionID || p.TokenID != tokenID
}

// TradeRecord es una entrada inmutable del ledger de trades: se escribe una
// vez por ciclo de vida completado y nunca se muta.
type TradeRecord struct {
	ID            string // UUID
	Strategy      string
	ConditionID   string
	Side          Side
	Shares        int
	EntryPrice    float64
	ExitPrice     float64
	EntryFee      float64
	ExitFee       float64
	GasUSD        float64
	CapitalBefore float64
	CapitalAfter  float64
	PnL           float64
	ROI           float64 // PnL / CapitalBefore
	Reason        string  // take_profit | stop_loss | settlement | ...
	OpenedAt      time.Time
	ClosedAt      time.Time
}
