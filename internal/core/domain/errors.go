package domain

import "fmt"

// Tagged error variants raised by stage executors. Classification
// prefers these over message-pattern matching; the patterns remain a
// fallback for errors surfaced by opaque external processes.

// ResourceKind narrows what resource was unavailable.
type ResourceKind string

const (
	ResourceMemory   ResourceKind = "memory"
	ResourceDisk     ResourceKind = "disk"
	ResourceLocked   ResourceKind = "locked"
	ResourceModel    ResourceKind = "model"
	ResourceCompute  ResourceKind = "compute"
)

// NetworkError marks a transient network-shaped failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NewNetworkError wraps err as a transient network failure.
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// ResourceError marks a failure caused by resource exhaustion or
// unavailability (memory pressure, disk full, locked file, model not
// ready).
type ResourceError struct {
	Op   string
	Kind ResourceKind
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %s unavailable: %v", e.Op, e.Kind, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// OutOfMemory reports whether this resource failure was memory
// exhaustion, the signal that drives model downgrade.
func (e *ResourceError) OutOfMemory() bool {
	return e.Kind == ResourceMemory
}

// NewResourceError wraps err as a resource-unavailability failure.
func NewResourceError(op string, kind ResourceKind, err error) *ResourceError {
	return &ResourceError{Op: op, Kind: kind, Err: err}
}

// PermanentError marks a failure that no amount of retrying can fix
// (video removed, private, region blocked, unsupported format).
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps err as a non-retryable failure.
func NewPermanentError(reason string, err error) *PermanentError {
	return &PermanentError{Reason: reason, Err: err}
}
