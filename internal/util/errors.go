package util

import "errors"

// Sentinel errors for the catalog's failure modes. Callers match them with
// errors.Is; every returned error wraps exactly one of these.
var (
	// ErrInvalidID indicates an identifier that does not parse
	ErrInvalidID = errors.New("invalid identifier")

	// ErrNotFound indicates an unknown track, cluster, group or scale
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a request that contradicts catalog state
	ErrConflict = errors.New("conflict")

	// ErrOutsideRoot indicates a path that resolves outside the raw root
	ErrOutsideRoot = &conflictError{msg: "path outside raw root"}

	// ErrInvalidCatalog indicates a persisted catalog that fails validation
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// conflictError is a sentinel that also matches ErrConflict.
type conflictError struct {
	msg string
}

func (e *conflictError) Error() string { return e.msg }

func (e *conflictError) Is(target error) bool { return target == ErrConflict }
