package domain

import "time"

// RedeemResult es el resultado de una redención on-chain de las posiciones
// de un intervalo resuelto.
type RedeemResult struct {
	ConditionID  string
	TxHash       string
	Success      bool
	GasCostUSD   float64
	USDCReceived float64
	ExecutedAt   time.Time
	Error        string
}
