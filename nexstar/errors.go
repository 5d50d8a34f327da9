package nexstar

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a command is issued on a closed channel.
	ErrNotConnected = errors.New("nexstar: not connected")
	// ErrTimeout is returned when no response terminator arrives within the deadline.
	ErrTimeout = errors.New("nexstar: response timeout")
)

// ConnectionError indicates the transport could not be opened or maintained.
type ConnectionError struct {
	Port string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("nexstar: connecting %q: %v", e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError indicates a malformed or unexpected device response.
type CommandError struct {
	Command  string
	Response string
	Reason   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("nexstar: command %q: %s (response %q)", e.Command, e.Reason, e.Response)
}

// InvalidCoordinateError is raised by validation before any channel I/O.
type InvalidCoordinateError struct {
	Field    string
	Value    float64
	Min, Max float64
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("nexstar: %s %g out of range [%g,%g]", e.Field, e.Value, e.Min, e.Max)
}

func invalidCoord(field string, value, min, max float64) error {
	return &InvalidCoordinateError{Field: field, Value: value, Min: min, Max: max}
}
