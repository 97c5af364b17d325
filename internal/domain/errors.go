package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnrecognizedFormat is returned by the registry when no decoder pattern
// matches a file name. It is fatal to that file and fires before any record
// is produced.
var ErrUnrecognizedFormat = errors.New("unrecognized format")

// FormatMismatchError reports a file whose name matched a decoder but whose
// structure (header shape, archive contents) does not. Fatal to the file;
// no records precede it in the sequence.
type FormatMismatchError struct {
	Name   string
	Reason string
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("format mismatch in %s: %s", e.Name, e.Reason)
}

// LineParseError reports a single malformed data line. It is recoverable:
// the decoder yields it interleaved with valid records and continues with
// the next line, leaving the skip-or-halt decision to the caller.
type LineParseError struct {
	File string
	Line int
	Err  error
}

func (e *LineParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *LineParseError) Unwrap() error { return e.Err }

// NumericFormatError reports a token that is neither a declared sentinel nor
// a valid number under the field's numeric convention. Always line-scoped,
// surfaced wrapped in a LineParseError.
type NumericFormatError struct {
	Token string
}

func (e *NumericFormatError) Error() string {
	return fmt.Sprintf("invalid numeric token %q", e.Token)
}

// ConflictError reports two partial records for the same (station, timestamp)
// key disagreeing on one parameter's value. The merger resolves it per the
// configured policy and reports it through the conflict callback; it never
// aborts the stream.
type ConflictError struct {
	StationID string
	Timestamp time.Time
	Parameter Parameter
	Kept      *Value
	Dropped   *Value
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting values for %s at station %s, %s",
		e.Parameter, e.StationID, e.Timestamp.UTC().Format(time.RFC3339))
}
