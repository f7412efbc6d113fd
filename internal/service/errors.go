package service

import "fmt"

// ValidationError a candidate payload was rejected; nothing changed
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError durable write failed. Logged and counted, never returned
// from ingestion.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UnknownEntityError referenced sensor or device does not exist
type UnknownEntityError struct {
	Kind string
	ID   any
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

// TransportError a device command could not be confirmed sent
type TransportError struct {
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("could not confirm command sent to %s: %v", e.Target, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
