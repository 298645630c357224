package core

import (
	"errors"
	"fmt"
	"strings"
)

// Batch-level sentinel errors.
var (
	// ErrTooManyRuns is returned when all run slots are occupied and the
	// wait timeout expires. Clients should retry after a short delay.
	ErrTooManyRuns = errors.New("too many concurrent runs, please try again later")

	// ErrRunNotFound is returned for unknown or evicted run IDs.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoFile is returned when a run request carries no file bytes.
	ErrNoFile = errors.New("no file provided")

	// ErrInvalidRequest is wrapped by front ends when a run request is
	// malformed before it reaches the service.
	ErrInvalidRequest = errors.New("invalid request")
)

// MissingIdentityColumnError reports a header without a "name" column.
// It aborts the batch before any row is processed.
type MissingIdentityColumnError struct {
	Header []string
}

func (e *MissingIdentityColumnError) Error() string {
	return fmt.Sprintf("missing identity column %q (header: %s)", IdentityColumn, strings.Join(e.Header, ", "))
}

// DuplicateIdentityColumnError reports a header with more than one "name"
// column. It aborts the batch before any row is processed.
type DuplicateIdentityColumnError struct {
	Columns []string
}

func (e *DuplicateIdentityColumnError) Error() string {
	return fmt.Sprintf("duplicate identity column %q: %s", IdentityColumn, strings.Join(e.Columns, ", "))
}

// InvalidEnumValueError reports a value outside an enumerated attribute's
// allowed set.
type InvalidEnumValueError struct {
	Column  string
	Value   string
	Allowed []string
}

func (e *InvalidEnumValueError) Error() string {
	return fmt.Sprintf("column %q: invalid enum value %q (allowed: %s)", e.Column, e.Value, strings.Join(e.Allowed, ", "))
}

// InvalidOwnerError reports an owner identifier that cannot be sent to the
// catalog.
type InvalidOwnerError struct {
	Column string
	Value  string
}

func (e *InvalidOwnerError) Error() string {
	return fmt.Sprintf("column %q: invalid owner identifier %q", e.Column, e.Value)
}

// NormalizationError collects every normalization failure of one row in
// header order.
type NormalizationError struct {
	RowIndex int
	Errs     []error
}

func (e *NormalizationError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *NormalizationError) Unwrap() []error { return e.Errs }

// UnknownAssetTypeError reports asset types outside the configured set.
type UnknownAssetTypeError struct {
	Types   []string
	Allowed []string
}

func (e *UnknownAssetTypeError) Error() string {
	return fmt.Sprintf("unknown asset type %s (allowed: %s)", strings.Join(e.Types, ", "), strings.Join(e.Allowed, ", "))
}

// SearchError wraps a failed catalog lookup.
type SearchError struct {
	Name    string
	Timeout bool
	Err     error
}

func (e *SearchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("catalog search timed out for %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("catalog search failed for %q: %v", e.Name, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// MutationKind classifies a failed change-set submission.
type MutationKind string

const (
	// MutationRejected means the catalog refused the change-set, e.g. an
	// unknown custom-metadata set or field. Resubmitting will fail again.
	MutationRejected MutationKind = "rejected"

	// MutationTransient means the catalog could not process the request
	// right now.
	MutationTransient MutationKind = "transient"

	// MutationTimeout means the per-call deadline expired.
	MutationTimeout MutationKind = "timeout"
)

// MutationError wraps a failed change-set submission.
type MutationError struct {
	AssetID string
	Kind    MutationKind
	Err     error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("catalog mutation %s for asset %s: %v", e.Kind, e.AssetID, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// IsFatal reports whether err aborts a batch before row processing.
func IsFatal(err error) bool {
	var (
		missing *MissingIdentityColumnError
		dup     *DuplicateIdentityColumnError
	)
	return errors.As(err, &missing) || errors.As(err, &dup) || isFileError(err)
}
