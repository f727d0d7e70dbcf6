// Package apierror defines the engine's typed error taxonomy, so
// callers branch on error kind with errors.As instead of matching strings.
package apierror

import "fmt"

// NotFoundError reports that a requested entity does not exist (or is not
// visible in the caller's project scope).
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// MultipleChoicesError reports that a short-id prefix matched more than one
// row.
type MultipleChoicesError struct {
	Kind   string
	Prefix string
}

func (e *MultipleChoicesError) Error() string {
	return fmt.Sprintf("multiple %s match prefix %q", e.Kind, e.Prefix)
}

// InvalidParameterError reports a malformed or out-of-range request
// parameter (e.g. an unknown pagination sort key).
type InvalidParameterError struct {
	Name   string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Name, e.Reason)
}

// BadRequestError reports a request that fails validation for reasons other
// than a single bad parameter.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string { return e.Reason }

// ResourceBusyError reports an attempt to delete a profile or policy that is
// still referenced by a live cluster or node.
type ResourceBusyError struct {
	Kind string
	ID   string
}

func (e *ResourceBusyError) Error() string {
	return fmt.Sprintf("%s %s is in use and cannot be deleted", e.Kind, e.ID)
}

// LockContentionError reports a failed lock acquisition. Callers retry up
// to config.LockRetryTimes before surfacing this as terminal.
type LockContentionError struct {
	Kind   string // "cluster" or "node"
	ID     string
	Holder string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("%s lock on %s is held by %s", e.Kind, e.ID, e.Holder)
}

// LockLostError reports that a checkpoint observed its lock had been stolen
// out from under it (see DESIGN.md's open-question notes).
type LockLostError struct {
	Kind string
	ID   string
}

func (e *LockLostError) Error() string {
	return fmt.Sprintf("%s lock on %s was lost", e.Kind, e.ID)
}

// EngineFailureError reports that an action's owning engine was found dead
// by the liveness sweep.
type EngineFailureError struct {
	EngineID string
}

func (e *EngineFailureError) Error() string {
	return fmt.Sprintf("engine failure: %s", e.EngineID)
}

// TimeoutError reports that a driver wait exceeded its deadline.
type TimeoutError struct {
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %s", e.Timeout)
}
