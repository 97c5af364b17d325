// Package resolve interprets raw field tokens from DWD product files into
// optional numeric values, recognizing per-format missing-value sentinels and
// locale-specific decimal separators.
package resolve

import (
	"strconv"
	"strings"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
)

// FieldSpec declares how one column's tokens are interpreted: which literal
// tokens mean "no measurement" and which decimal convention the numbers use.
// Specs are part of the static format descriptors and never change at
// runtime.
type FieldSpec struct {
	// Sentinels are the format-wide missing-value tokens, compared after
	// whitespace trimming (e.g. "-999", "---", "-").
	Sentinels []string
	// Ignored are additional per-column codes treated as missing, e.g.
	// cloud cover "-1"/"9" or wind direction "990".
	Ignored []string
	// DecimalComma selects the German decimal convention ("12,3").
	DecimalComma bool
}

// WithIgnored returns a copy of the spec with extra per-column ignored codes.
func (s FieldSpec) WithIgnored(codes ...string) FieldSpec {
	out := s
	out.Ignored = append(append([]string(nil), s.Ignored...), codes...)
	return out
}

// Number resolves a raw token under the given spec. It returns the parsed
// value, or missing=true for blank tokens, declared sentinels, and ignored
// codes. Tokens that are neither parse as a float per the spec's decimal
// convention; failures return a NumericFormatError, which is always
// line-scoped and recoverable.
func Number(token string, spec FieldSpec) (value float64, missing bool, err error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return 0, true, nil
	}
	for _, s := range spec.Sentinels {
		if trimmed == s {
			return 0, true, nil
		}
	}
	for _, s := range spec.Ignored {
		if trimmed == s {
			return 0, true, nil
		}
	}
	if spec.DecimalComma {
		trimmed = strings.Replace(trimmed, ",", ".", 1)
	}
	v, perr := strconv.ParseFloat(trimmed, 64)
	if perr != nil {
		return 0, false, &domain.NumericFormatError{Token: strings.TrimSpace(token)}
	}
	return v, false, nil
}
