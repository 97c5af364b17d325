package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/dwd-weather-etl/internal/decoder"
	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
)

func TestGetDecoder(t *testing.T) {
	reg := New()

	tests := []struct {
		filename string
		format   string
	}{
		{"10minutenwerte_extrema_wind_00427_akt.zip", "10min/extrema_wind"},
		{"10minutenwerte_SOLAR_01766_akt.zip", "10min/SOLAR"},
		{"stundenwerte_FF_00011_akt.zip", "hourly/FF"},
		{"stundenwerte_FF_00090_akt.zip", "hourly/FF"},
		{"stundenwerte_N_01766_akt.zip", "hourly/N"},
		{"stundenwerte_P0_00096_akt.zip", "hourly/P0"},
		{"stundenwerte_RR_00102_akt.zip", "hourly/RR"},
		{"stundenwerte_SD_00125_akt.zip", "hourly/SD"},
		{"stundenwerte_TD_00161_akt.zip", "hourly/TD"},
		{"stundenwerte_TU_00161_akt.zip", "hourly/TU"},
		{"stundenwerte_VV_00161_akt.zip", "hourly/VV"},
		{"MOSMIX_S_LATEST_240.kmz", "mosmix"},
		{"MOSMIX_L_LATEST.kmz", "mosmix"},
		{"DE1200_RV2305081330.tar.bz2", "radolan"},
		{"K611_-BEOB.csv", "current"},
		{"Z__C_EDZW_20200617114802_bda01,synop_bufr_GER_999999_999999__MW_617.json.bz2", "synop"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			dec, err := reg.GetDecoder(tt.filename)
			require.NoError(t, err)
			assert.NotNil(t, dec)
		})
	}
}

func TestGetDecoderUnrecognized(t *testing.T) {
	reg := New()

	unrecognized := []string{
		"MOSMIX_S_LATEST_240.kml",
		"MOSMIX_X_LATEST_240.kmz",
		"Z__C_EDZW_latest_bda01,synop_bufr_GER_999999_999999__MW_XXX.json.bz2",
		"DWD-BEOB.csv.gz",
		"taegliche_werte_KL_00044_akt.zip",
		"notes.txt",
		"",
	}
	for _, name := range unrecognized {
		_, err := reg.GetDecoder(name)
		assert.ErrorIs(t, err, domain.ErrUnrecognizedFormat, "name %q", name)
	}
}

func TestGetDecoderAnchorsPatterns(t *testing.T) {
	reg := New()

	// Patterns match from the start of the name only.
	_, err := reg.GetDecoder("backup_stundenwerte_TU_00161_akt.zip")
	assert.ErrorIs(t, err, domain.ErrUnrecognizedFormat)
}

func TestGetDecoderRejectsAmbiguousTable(t *testing.T) {
	reg := &Registry{entries: []entry{
		hourly("stundenwerte_TU_", decoder.TemperatureObservations),
		{
			pattern: compile("stundenwerte_"),
			name:    "catch-all",
			build:   decoder.NewCurrentObservations,
		},
	}}

	_, err := reg.GetDecoder("stundenwerte_TU_00161_akt.zip")
	var ambErr *AmbiguousFormatError
	require.ErrorAs(t, err, &ambErr)
	assert.ElementsMatch(t, []string{"hourly/TU", "catch-all"}, ambErr.Decoders)
}

func TestFormats(t *testing.T) {
	formats := New().Formats()
	assert.Len(t, formats, 14)
	assert.Contains(t, formats, "mosmix")
	assert.Contains(t, formats, "hourly/RR")
	assert.Contains(t, formats, "radolan")
}
