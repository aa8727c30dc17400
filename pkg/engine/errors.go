package engine

import "fmt"

// ComponentInitError is returned when a runtime component cannot be built.
type ComponentInitError struct {
	Component string
	Cause     error
}

func (e *ComponentInitError) Error() string {
	return fmt.Sprintf("engine: init %s: %v", e.Component, e.Cause)
}

func (e *ComponentInitError) Unwrap() error { return e.Cause }

// EngineNotRunningError is returned when an operation requires the engine to be running.
type EngineNotRunningError struct{}

func (e *EngineNotRunningError) Error() string {
	return "engine is not running"
}

// EngineAlreadyRunningError is returned by Start on a running engine.
type EngineAlreadyRunningError struct{}

func (e *EngineAlreadyRunningError) Error() string {
	return "engine is already running"
}
