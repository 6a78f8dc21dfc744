package merge

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when Run is called while another merge operation on
// the same engine has not yet reached Ready or Failed. The engine is
// single-writer; concurrent merges are rejected rather than queued so the
// race is observable instead of silently serialized.
var ErrBusy = errors.New("merge: operation already in progress")

// ParseError reports a file whose content could not be decoded as tabular
// text. It aborts the whole merge: there is no partial-file recovery.
// Line is the 1-based source line of the failure, 0 when the adapter could
// not attribute one (missing header, HTML inputs).
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// InputRejectedError reports an input that never reaches ingestion: an
// unrecognized extension. Raised before any operation state changes.
type InputRejectedError struct {
	Name   string
	Reason string
}

func (e *InputRejectedError) Error() string {
	return fmt.Sprintf("input %s rejected: %s", e.Name, e.Reason)
}
