package metadata

import "errors"

// Common errors.
var (
	ErrInvalidParams          = errors.New("invalid convolution parameters")
	ErrDimensionMismatch      = errors.New("dimension mismatch")
	ErrUnknownShape           = errors.New("spatial size not registered")
	ErrCoordinateOutOfRange   = errors.New("coordinate outside spatial size")
	ErrUnregisteredCoordinate = errors.New("rule references unregistered coordinate")
)
