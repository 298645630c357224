package tabular

import (
	"fmt"
	"strings"
)

// MalformedFileError reports a file whose header cannot be read. It is fatal
// for the whole batch.
type MalformedFileError struct {
	Reason string
	Err    error
}

func (e *MalformedFileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed file: %s: %v", e.Reason, e.Err)
	}
	return "malformed file: " + e.Reason
}

func (e *MalformedFileError) Unwrap() error { return e.Err }

// UnsupportedFormatError reports a format hint or file extension that maps
// to no known Format.
type UnsupportedFormatError struct {
	Value     string
	Supported []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q (supported: %s)", e.Value, strings.Join(e.Supported, ", "))
}

func malformed(reason string, err error) error {
	return &MalformedFileError{Reason: reason, Err: err}
}
