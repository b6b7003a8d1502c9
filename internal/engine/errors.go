package engine

import (
	"errors"
	"fmt"
)

// Precondition errors returned by the command entry points. A command failing
// with one of them has sent nothing and changed nothing.
var (
	ErrPlantNameRequired   = errors.New("plant name is required")
	ErrChannelDisconnected = errors.New("controller channel is not connected")
	ErrInvalidDuration     = errors.New("watering duration must be positive")
	ErrRequestInFlight     = errors.New("plant already has a watering request in progress")
	ErrValveBlocked        = errors.New("plant valve is blocked")
	ErrNotBlocked          = errors.New("plant valve is not blocked")
)

// CommandError wraps a failure of one of the command entry points.
type CommandError struct {
	Op      string
	PlantID int64
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s plant %d: %v", e.Op, e.PlantID, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func commandError(op string, plantID int64, err error) error {
	return &CommandError{Op: op, PlantID: plantID, Err: err}
}
