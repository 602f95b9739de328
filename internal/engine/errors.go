package engine

import "fmt"

// RuntimeMissError reports a set_input call targeting an unknown node,
// a node that isn't a DeviceTrigger, or an unknown port (spec §7).
type RuntimeMissError struct {
	Message string
}

func (e *RuntimeMissError) Error() string { return "engine: " + e.Message }

func newRuntimeMissError(format string, args ...interface{}) *RuntimeMissError {
	return &RuntimeMissError{Message: fmt.Sprintf(format, args...)}
}

// ParameterError reports a node parameter missing or malformed for its
// kind, such as a Timer with no usable interval.
type ParameterError struct {
	Message string
}

func (e *ParameterError) Error() string { return "engine: " + e.Message }

func newParameterError(format string, args ...interface{}) *ParameterError {
	return &ParameterError{Message: fmt.Sprintf(format, args...)}
}
