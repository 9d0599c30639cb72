package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStale is returned when a newer computation for the same view superseded this one.
	ErrStale = errors.New("computation superseded by a newer request")

	// ErrProductNotFound is returned when the focal product cannot be resolved.
	ErrProductNotFound = errors.New("product not found")
)

// FetchError reports a failed category, pool or by-ids fetch.
// Callers treat it as transient: the affected section or tier contributes nothing.
type FetchError struct {
	Source string // categories, pool, trending, by_ids, focal
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err as a FetchError for source. A nil err yields nil.
func NewFetchError(source string, err error) error {
	if err == nil {
		return nil
	}
	return &FetchError{Source: source, Err: err}
}

// FetchErrorSource returns the source label of a FetchError, or "other".
func FetchErrorSource(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Source
	}
	return "other"
}

// IntegrityWarning describes a reference to data that does not exist, such as a product
// pointing at an unknown category. It is logged, never returned to callers.
type IntegrityWarning struct {
	Kind string // unknown_category, unknown_parent, missing_id
	Ref  string
}

func (w IntegrityWarning) Error() string {
	return fmt.Sprintf("data integrity: %s %q", w.Kind, w.Ref)
}
