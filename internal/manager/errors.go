package manager

import (
	"errors"
	"fmt"

	"llamad/pkg/llama"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ modelID string }

func (e tooBusyError) Error() string { return "too busy: " + e.modelID }

// ErrTooBusy returns the backpressure error for modelID.
func ErrTooBusy(modelID string) error { return tooBusyError{modelID: modelID} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// ErrModelNotFound returns an error when a requested model id is not present in the registry.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing native engine or a manager
// that is shutting down, so the HTTP layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
// A binary built without the native engine reports ErrNativeUnavailable, which counts.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e) || errors.Is(err, llama.ErrNativeUnavailable)
}

// budgetExceededError is returned when a model cannot fit the VRAM budget even
// after every idle instance has been evicted.
type budgetExceededError struct {
	requiredMB int
	budgetMB   int
}

func (e budgetExceededError) Error() string {
	return fmt.Sprintf("vram budget exceeded: need %d MB of %d MB", e.requiredMB, e.budgetMB)
}

func IsBudgetExceeded(err error) bool {
	var e budgetExceededError
	return errors.As(err, &e)
}

// invalidRequestError marks caller mistakes (bad state name, empty input) for 400 mapping.
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return e.msg }

func ErrInvalidRequest(msg string) error { return invalidRequestError{msg: msg} }

func IsInvalidRequest(err error) bool {
	var e invalidRequestError
	return errors.As(err, &e) || errors.Is(err, llama.ErrInteriorNUL)
}

var errManagerClosed = ErrDependencyUnavailable("manager is shut down")
