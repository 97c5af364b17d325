// Package decoder turns DWD product files into partial observation records.
//
// Each supported format family has one decoder behind the shared Decoder
// capability. A decoder receives a Source — the named member streams of an
// already-extracted archive — and yields partial records lazily. Malformed
// individual lines surface as LineParseError elements interleaved with valid
// records; a structurally wrong file fails fast with FormatMismatchError
// before any record is yielded.
package decoder

import (
	"fmt"
	"io"
	"iter"
	"regexp"
	"strings"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
)

// File is one named member stream of a source. Open may be called at most
// once; decoders close what they open, whether the sequence is consumed to
// completion or abandoned early.
type File struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// Source is the collection of named streams a decoder consumes: a plain file
// is a single-member source, an archive contributes one member per entry.
// Extraction itself happens outside the engine.
type Source struct {
	// Name is the original file name, used for dispatch and provenance.
	Name  string
	Files []File
}

// SingleFile wraps one in-memory stream as a Source, mainly for tests and
// for formats that are never archived.
func SingleFile(name string, r io.Reader) Source {
	return Source{
		Name: name,
		Files: []File{{
			Name: name,
			Open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
		}},
	}
}

// Find returns the first member whose name matches the pattern, or nil.
func (s Source) Find(pattern *regexp.Regexp) *File {
	for i := range s.Files {
		if pattern.MatchString(s.Files[i].Name) {
			return &s.Files[i]
		}
	}
	return nil
}

// Decoder is the shared capability of all format families.
type Decoder interface {
	// Parse decodes the source into a lazy sequence of partial records.
	// The station context seeds record identity; identifiers carried by
	// the file itself take precedence over it.
	Parse(src Source, station domain.StationContext) iter.Seq2[domain.PartialRecord, error]
}

// failSeq returns a sequence that yields a single error, for fail-fast
// structural mismatches.
func failSeq(err error) iter.Seq2[domain.PartialRecord, error] {
	return func(yield func(domain.PartialRecord, error) bool) {
		yield(domain.PartialRecord{}, err)
	}
}

// mismatch builds the fatal structural error for a source.
func mismatch(src Source, format string, args ...any) error {
	return &domain.FormatMismatchError{Name: src.Name, Reason: fmt.Sprintf(format, args...)}
}

// latin1String decodes a Latin-1 byte slice. DWD metadata files use Latin-1
// for station names; the encoding maps bytes to code points directly.
func latin1String(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

// splitSemicolon splits a data line on ";" and trims the surrounding
// whitespace every DWD delimited product pads its fields with.
func splitSemicolon(line string) []string {
	fields := strings.Split(line, ";")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return fields
}

// float64Ptr is a convenience for optional location fields.
func float64Ptr(v float64) *float64 { return &v }
