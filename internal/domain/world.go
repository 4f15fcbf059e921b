package domain

import "time"

// SpotQuote es una muestra del precio spot del subyacente en un feed concreto.
type SpotQuote struct {
	Feed  string
	Price float64
	At    time.Time
}

// SpotObservation es el resultado de consultar todos los feeds de spot a la
// vez: la cotización primaria, la alternativa si existe y el flag de
// discrepancia entre ambas.
type SpotObservation struct {
	Primary  SpotQuote
	Alt      *SpotQuote
	Disagree bool
}

// TakerTrade es un trade cruzante observado en el token.
type TakerTrade struct {
	Price    float64
	Size     float64
	TakerBuy bool
	At       time.Time
}

// OutcomeQuote es el estado de mercado de uno de los dos tokens del intervalo.
type OutcomeQuote struct {
	TokenID  string
	Book     OrderBook
	FeeBps   float64
	FeeKnown bool // false → ErrUnknownFee: saltar el tick y reintentar

	// Trades son los taker trades nuevos desde el último snapshot.
	Trades []TakerTrade
}

// WorldState es el snapshot compartido que el Orchestrator construye y las
// estrategias leen. Un único escritor (el Orchestrator); las estrategias lo
// reciben por valor en cada tick, así que siempre observan un snapshot
// consistente.
type WorldState struct {
	ConditionID string
	Up          OutcomeQuote
	Down        OutcomeQuote

	Spot    SpotQuote
	AltSpot *SpotQuote // segundo feed, si existe, para el check de discrepancia

	// FeedsDisagree indica que los feeds de spot difieren más allá del umbral
	// duro: se suprimen todas las entradas nuevas hasta que se resuelva.
	FeedsDisagree bool

	IntervalEnd time.Time
	ObservedAt  time.Time
}

// Outcome devuelve la cotización del lado pedido.
func (w WorldState) Outcome(s Side) OutcomeQuote {
	if s == SideUp {
		return w.Up
	}
	return w.Down
}

// SecondsToEnd devuelve los segundos hasta el fin del intervalo (0 si ya pasó).
func (w WorldState) SecondsToEnd() float64 {
	if w.IntervalEnd.IsZero() {
		return 0
	}
	s := w.IntervalEnd.Sub(w.ObservedAt).Seconds()
	if s < 0 {
		return 0
	}
	return s
}

// BothAsksQuoted devuelve true si ambos lados tienen best ask.
func (w WorldState) BothAsksQuoted() bool {
	return w.Up.Book.BestAsk() > 0 && w.Down.Book.BestAsk() > 0
}

// FeesKnown devuelve true si el fee de ambos tokens es conocido.
func (w WorldState) FeesKnown() bool {
	return w.Up.FeeKnown && w.Down.FeeKnown
}

// Interval identifica el mercado del intervalo actual resuelto contra el
// catálogo: condition ID, tokens de cada lado y fin del intervalo.
type Interval struct {
	ConditionID string
	UpTokenID   string
	DownTokenID string
	EndTime     time.Time
}
