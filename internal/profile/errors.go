package profile

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind classifies why a fetch failed.
type FailureKind string

// Fetch failure kinds.
const (
	FailureNetwork FailureKind = "network"
	FailureStatus  FailureKind = "status"
	FailureParse   FailureKind = "parse"
	FailureEmpty   FailureKind = "empty"
)

// ErrEmptyResult marks a response that parsed but carried no usable value.
var ErrEmptyResult = errors.New("empty result")

// ErrRunNotFound is returned by run stores for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// FetchError is returned by every source when it cannot produce its part.
type FetchError struct {
	Source SourceName
	Kind   FailureKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "source %s: %s", e.Source, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
// Transport failures, 429 and 5xx responses qualify.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FailureNetwork:
		return true
	case FailureStatus:
		return e.Status == 429 || e.Status >= 500
	default:
		return false
	}
}

// Failure converts the error into a SourceFailure for run records.
func (e *FetchError) Failure() SourceFailure {
	return SourceFailure{Source: e.Source, Kind: e.Kind, Error: e.Error()}
}

// DeliveryError is returned when the ingestion endpoint rejects or never
// receives the aggregate. Status is zero for transport failures.
type DeliveryError struct {
	Status int
	Body   string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("delivery failed: status %d: %s", e.Status, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// PersistError is returned when the fallback file cannot be written.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist fallback %q: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// AsFetchError extracts a FetchError from err, or wraps it as a network failure
// of the given source when err carries none.
func AsFetchError(source SourceName, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Source: source, Kind: FailureNetwork, Err: err}
}
