package provider

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrNotFound signals that a reference no longer resolves to a record.
// An empty Search result is expressed as an empty slice, not this error.
var ErrNotFound = eris.New("provider: not found")

// UnavailableError signals a provider-scoped outage: the waterfall should
// skip this provider for the current run and continue.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return e.Provider + ": provider unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether the error chain marks the provider as down.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
