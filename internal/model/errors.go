package model

import "errors"

// Domain errors surfaced by the pricing pipeline. Handlers map these to
// HTTP errors with errors.Is; services wrap them with context via %w.
var (
	// ErrFloatOutOfRange is returned when a wear float is outside [0.0, 1.0].
	ErrFloatOutOfRange = errors.New("float value out of range")

	// ErrNoWearLabel is returned when a skin name carries no parenthesized
	// wear label and no float value is available.
	ErrNoWearLabel = errors.New("no wear label in skin name")

	// ErrUnknownWearLabel is returned when the extracted label matches no
	// known wear category.
	ErrUnknownWearLabel = errors.New("unknown wear label")

	// ErrInvalidPrice is returned when profit math receives a price <= 0.
	ErrInvalidPrice = errors.New("price must be positive")

	// ErrRateUnavailable is returned when no exchange rate can be obtained:
	// the rate feed failed and no cached rate exists, however stale.
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrTaskNotFound is returned when completing a task that does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskMismatch is returned when a completion report names a different
	// skin or wear than the task it targets.
	ErrTaskMismatch = errors.New("task skin/wear mismatch")

	// ErrUnknownMarketSource is returned for unrecognized market routing keys.
	ErrUnknownMarketSource = errors.New("unknown market source")
)
