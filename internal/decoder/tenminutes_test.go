package decoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/units"
)

func TestTenMinuteWindGusts(t *testing.T) {
	product := `STATIONS_ID;MESS_DATUM;QN;FX_10;DX_10;eor
       1766;202304120910;    2;   4.1;   250;eor
       1766;202304120920;    2;  12.5;   270;eor
       1766;202304120930;    2;   6.0;   260;eor
       1766;202304120940;    2;  -999;  -999;eor
       1766;202304120950;    2;   5.2;   255;eor
       1766;202304121000;    2;   4.8;   250;eor
`
	src := sourceOf("10minutenwerte_extrema_wind_01766_akt.zip", map[string]string{
		"produkt_zehn_min_fx_01766.txt": product,
	})
	dec := NewTenMinute(WindGustObservations)

	records, errs := drain(dec.Parse(src, domain.StationContext{}))
	require.Empty(t, errs)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "01766", rec.Station.DWDStationID)
	assert.Equal(t, time.Date(2023, 4, 12, 10, 0, 0, 0, time.UTC), rec.Timestamp)

	// The hour keeps its strongest gust and that gust's direction.
	require.NotNil(t, rec.Parameters[domain.WindGustSpeed])
	assert.InDelta(t, 12.5, rec.Parameters[domain.WindGustSpeed].SI, 1e-9)
	require.NotNil(t, rec.Parameters[domain.WindGustDirection])
	assert.InDelta(t, 270, rec.Parameters[domain.WindGustDirection].SI, 1e-9)
}

func TestTenMinuteWindGustsAllMissing(t *testing.T) {
	product := `STATIONS_ID;MESS_DATUM;QN;FX_10;DX_10;eor
       1766;202304120950;    2;  -999;  -999;eor
       1766;202304121000;    2;  -999;  -999;eor
`
	src := sourceOf("10minutenwerte_extrema_wind_01766_akt.zip", map[string]string{
		"produkt_zehn_min_fx_01766.txt": product,
	})
	dec := NewTenMinute(WindGustObservations)

	records, errs := drain(dec.Parse(src, domain.StationContext{}))
	require.Empty(t, errs)
	require.Len(t, records, 1)

	speed, present := records[0].Parameters[domain.WindGustSpeed]
	assert.True(t, present)
	assert.Nil(t, speed)
	assert.Contains(t, records[0].Parameters, domain.WindGustDirection)
}

func TestTenMinuteWindGustsIgnoreZeroSpeed(t *testing.T) {
	product := `STATIONS_ID;MESS_DATUM;QN;FX_10;DX_10;eor
       1766;202304120940;    2;   0.0;   180;eor
       1766;202304120950;    2;   0.0;   190;eor
       1766;202304121000;    2;   0.0;   200;eor
`
	src := sourceOf("10minutenwerte_extrema_wind_01766_akt.zip", map[string]string{
		"produkt_zehn_min_fx_01766.txt": product,
	})
	dec := NewTenMinute(WindGustObservations)

	records, errs := drain(dec.Parse(src, domain.StationContext{}))
	require.Empty(t, errs)
	require.Len(t, records, 1)

	// A zero speed means no gust occurred; a calm hour reports missing
	// values rather than a 0 m/s maximum with a direction.
	speed, present := records[0].Parameters[domain.WindGustSpeed]
	assert.True(t, present)
	assert.Nil(t, speed)
	assert.Nil(t, records[0].Parameters[domain.WindGustDirection])
}

func TestTenMinuteWindGustsDropsIncompleteTrailingHour(t *testing.T) {
	product := `STATIONS_ID;MESS_DATUM;QN;FX_10;DX_10;eor
       1766;202304121000;    2;   4.8;   250;eor
       1766;202304121010;    2;   9.9;   270;eor
       1766;202304121020;    2;   8.0;   260;eor
`
	src := sourceOf("10minutenwerte_extrema_wind_01766_akt.zip", map[string]string{
		"produkt_zehn_min_fx_01766.txt": product,
	})
	dec := NewTenMinute(WindGustObservations)

	records, errs := drain(dec.Parse(src, domain.StationContext{}))
	require.Empty(t, errs)
	require.Len(t, records, 1, "an hour without its closing row is not emitted")
	assert.Equal(t, time.Date(2023, 4, 12, 10, 0, 0, 0, time.UTC), records[0].Timestamp)
}

func TestTenMinuteSolar(t *testing.T) {
	product := `STATIONS_ID;MESS_DATUM;QN;GS_10;SD_10;eor
       1766;202304120900;    1;  10.0;   9.0;eor
       1766;202304120910;    1;  12.0;  10.0;eor
       1766;202304120920;    1;  -999;  -999;eor
       1766;202304120930;    1;  11.0;   8.0;eor
       1766;202304120940;    1;   9.5;   7.0;eor
       1766;202304120950;    1;   8.5;   6.0;eor
`
	src := sourceOf("10minutenwerte_SOLAR_01766_akt.zip", map[string]string{
		"produkt_zehn_min_sd_01766.txt": product,
	})
	dec := NewTenMinute(SolarRadiationObservations)

	records, errs := drain(dec.Parse(src, domain.StationContext{}))
	require.Empty(t, errs)
	require.Len(t, records, 1)

	rec := records[0]
	// A row's irradiance covers the following ten minutes, so the window
	// closing at :50 belongs to the next full hour.
	assert.Equal(t, time.Date(2023, 4, 12, 10, 0, 0, 0, time.UTC), rec.Timestamp)

	solar := rec.Parameters[domain.Solar]
	require.NotNil(t, solar)
	assert.InDelta(t, 510000, solar.SI, 1e-9, "hourly sum of 51 J/cm²")
	assert.Equal(t, units.JoulePerSqMeter, solar.SIUnit)
	assert.InDelta(t, 51, solar.Native, 1e-9)
	assert.Equal(t, units.JoulePerSqCm, solar.NativeUnit)
}

func TestTenMinuteSolarEmptyHour(t *testing.T) {
	product := `STATIONS_ID;MESS_DATUM;QN;GS_10;SD_10;eor
       1766;202304120240;    1;  -999;  -999;eor
       1766;202304120250;    1;  -999;  -999;eor
`
	src := sourceOf("10minutenwerte_SOLAR_01766_akt.zip", map[string]string{
		"produkt_zehn_min_sd_01766.txt": product,
	})
	dec := NewTenMinute(SolarRadiationObservations)

	records, errs := drain(dec.Parse(src, domain.StationContext{}))
	require.Empty(t, errs)
	require.Len(t, records, 1)

	solar, present := records[0].Parameters[domain.Solar]
	assert.True(t, present, "a dark hour is reported as explicitly missing")
	assert.Nil(t, solar)
}

func TestTenMinuteBadTimestampInterleaves(t *testing.T) {
	product := `STATIONS_ID;MESS_DATUM;QN;FX_10;DX_10;eor
       1766;notatimestamp;    2;   4.1;   250;eor
       1766;202304121000;    2;   4.8;   250;eor
`
	src := sourceOf("10minutenwerte_extrema_wind_01766_akt.zip", map[string]string{
		"produkt_zehn_min_fx_01766.txt": product,
	})
	dec := NewTenMinute(WindGustObservations)

	records, errs := drain(dec.Parse(src, domain.StationContext{}))

	require.Len(t, errs, 1)
	var lineErr *domain.LineParseError
	require.ErrorAs(t, errs[0], &lineErr)
	assert.Equal(t, 2, lineErr.Line)

	require.Len(t, records, 1)
	assert.InDelta(t, 4.8, records[0].Parameters[domain.WindGustSpeed].SI, 1e-9)
}
