package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the engine and its adapters.
// Every specific error below wraps exactly one of these, so callers can branch with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidState           = errors.New("invalid state")
	ErrConcurrentModification = errors.New("concurrent modification")
)

var (
	ErrAreaNotFound    = fmt.Errorf("area %w", ErrNotFound)
	ErrNodeNotFound    = fmt.Errorf("node %w", ErrNotFound)
	ErrEdgeNotFound    = fmt.Errorf("edge %w", ErrNotFound)
	ErrVehicleNotFound = fmt.Errorf("vehicle %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
	ErrNodeNotInGraph  = fmt.Errorf("node not in graph: %w", ErrNotFound)

	ErrInvalidWeight = fmt.Errorf("weight must be between 0 and %d: %w", MaxEdgeWeight, ErrInvalidInput)
	ErrMalformedEdge = fmt.Errorf("malformed edge: %w", ErrInvalidInput)
	ErrInvalidStatus = fmt.Errorf("unknown status: %w", ErrInvalidInput)

	ErrInvalidOrderState       = fmt.Errorf("order %w", ErrInvalidState)
	ErrInvalidStatusTransition = fmt.Errorf("status transition: %w", ErrInvalidState)
)
