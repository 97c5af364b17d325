package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
)

func TestNumber(t *testing.T) {
	spec := FieldSpec{Sentinels: []string{"-999"}, DecimalComma: true}

	tests := []struct {
		name        string
		token       string
		wantValue   float64
		wantMissing bool
	}{
		{"sentinel resolves to missing", "-999", 0, true},
		{"padded sentinel resolves to missing", "  -999", 0, true},
		{"comma decimal", "12,3", 12.3, false},
		{"padded comma decimal", "  12,3", 12.3, false},
		{"dot decimal still accepted", "12.3", 12.3, false},
		{"integer", "66", 66, false},
		{"negative value", "-0,1", -0.1, false},
		{"blank is missing", "", 0, true},
		{"whitespace only is missing", "   ", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, missing, err := Number(tt.token, spec)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMissing, missing)
			assert.InDelta(t, tt.wantValue, v, 1e-9)
		})
	}
}

func TestNumberDashSentinel(t *testing.T) {
	spec := FieldSpec{Sentinels: []string{"---"}, DecimalComma: true}

	_, missing, err := Number("---", spec)
	require.NoError(t, err)
	assert.True(t, missing)

	// A dash sentinel must not swallow negative numbers.
	v, missing, err := Number("-3,4", spec)
	require.NoError(t, err)
	assert.False(t, missing)
	assert.InDelta(t, -3.4, v, 1e-9)
}

func TestNumberIgnoredCodes(t *testing.T) {
	spec := FieldSpec{Sentinels: []string{"-999"}}.WithIgnored("-1", "9")

	for _, token := range []string{"-1", "9", "-999"} {
		_, missing, err := Number(token, spec)
		require.NoError(t, err)
		assert.True(t, missing, "token %q", token)
	}

	// Ignored codes are exact-match, not numeric-equal.
	v, missing, err := Number("9.0", spec)
	require.NoError(t, err)
	assert.False(t, missing)
	assert.Equal(t, 9.0, v)
}

func TestNumberInvalidToken(t *testing.T) {
	spec := FieldSpec{Sentinels: []string{"-999"}}

	_, _, err := Number("abc", spec)
	var numErr *domain.NumericFormatError
	require.ErrorAs(t, err, &numErr)
	assert.Equal(t, "abc", numErr.Token)
}

func TestWithIgnoredDoesNotMutateReceiver(t *testing.T) {
	base := FieldSpec{Sentinels: []string{"-999"}}
	derived := base.WithIgnored("990")

	assert.Empty(t, base.Ignored)
	assert.Equal(t, []string{"990"}, derived.Ignored)
}
