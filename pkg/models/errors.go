package models

import "errors"

// Error kinds surfaced by the orchestration pipeline. Callers branch on these
// with errors.Is; the wrapped chain keeps the underlying cause.
var (
	// ErrModelUnavailable marks a model call that failed in transport or
	// timed out. The orchestrator degrades to a fixed apology reply instead
	// of propagating it.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrPersistence marks a storage-layer fault. Fatal for the current
	// event; retry policy belongs to the caller.
	ErrPersistence = errors.New("persistence error")

	// ErrPaymentGateway marks a payment link generation fault. The reply
	// composed so far is still usable without the payment line.
	ErrPaymentGateway = errors.New("payment gateway error")
)
