package domain

import "errors"

// Errores centinela del núcleo de decisión. Ninguno es fatal: los estrategias
// los tratan como "rechazar" o "saltar tick" según la tabla de errores.
var (
	// ErrInsufficientDepth: el book no tiene profundidad para llenar las
	// shares pedidas. Un fill parcial nunca se reporta como éxito.
	ErrInsufficientDepth = errors.New("insufficient book depth")

	// ErrUnknownFee: el fee del token aún no se conoce. Saltar el tick y
	// reintentar en el siguiente.
	ErrUnknownFee = errors.New("fee rate unknown")

	// ErrBudgetTooSmall: el presupuesto no alcanza ni para minShares.
	ErrBudgetTooSmall = errors.New("budget too small")

	// ErrOrderRejected: el executor rechazó o no llenó la orden FOK.
	// El estado de la estrategia no cambia; el siguiente tick reevalúa.
	ErrOrderRejected = errors.New("order rejected or not filled")

	// ErrInsufficientBalance: el balance disponible no cubre la orden.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoHoldings: se intentó vender más shares de las que hay en cartera.
	ErrNoHoldings = errors.New("insufficient token holdings")
)
