package decoder

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/resolve"
	"github.com/couchcryptid/dwd-weather-etl/internal/stations"
	"github.com/couchcryptid/dwd-weather-etl/internal/units"
)

// currentFieldSpec covers the current-observations feed: German decimal
// comma, "---" missing-value sentinel.
var currentFieldSpec = resolve.FieldSpec{Sentinels: []string{"---"}, DecimalComma: true}

const (
	// currentDateColumn doubles as the station id carrier: the first data
	// row holds the WMO station id (underscore-padded) in this column.
	currentDateColumn = "surface observations"
	currentHourColumn = "Parameter description"
)

// currentColumns maps the feed's verbose column headers to parameters. The
// stray spaces inside the wind column names are present in the upstream
// files.
var currentColumns = map[string]column{
	"cloud_cover_total":                                   {param: domain.CloudCover, unit: units.Percent},
	"dew_point_temperature_at_2_meter_above_ground":       {param: domain.DewPoint, unit: units.Celsius},
	"dry_bulb_temperature_at_2_meter_above_ground":        {param: domain.Temperature, unit: units.Celsius},
	"global_radiation_last_hour":                          {param: domain.Solar, unit: units.WattPerSqMeter},
	"horizontal_visibility":                               {param: domain.Visibility, unit: units.Kilometer},
	"maximum_wind_speed_last_hour":                        {param: domain.WindGustSpeed, unit: units.KmPerHour},
	"mean_wind_direction_during_last_10 min_at_10_meters_above_ground": {param: domain.WindDirection, unit: units.Degree},
	"mean_wind_speed_during last_10_min_at_10_meters_above_ground":     {param: domain.WindSpeed, unit: units.KmPerHour},
	"precipitation_amount_last_hour":                      {param: domain.Precipitation, unit: units.Millimeter},
	"present_weather":                                     {param: domain.Condition, condition: units.CurrentObservationsWeather},
	"pressure_reduced_to_mean_sea_level":                  {param: domain.PressureMSL, unit: units.Hectopascal},
	"relative_humidity":                                   {param: domain.RelativeHumidity, unit: units.Percent},
	"total_time_of_sunshine_during_last_hour":             {param: domain.Sunshine, unit: units.Minute},
}

// currentDecoder parses the per-station current-observations CSV
// (<wmo-id>-BEOB.csv). Station position is not in the file and comes from
// the caller's station context.
type currentDecoder struct{}

// NewCurrentObservations builds the current-observations decoder.
func NewCurrentObservations() Decoder {
	return &currentDecoder{}
}

func (d *currentDecoder) Parse(src Source, station domain.StationContext) iter.Seq2[domain.PartialRecord, error] {
	if len(src.Files) == 0 {
		return failSeq(mismatch(src, "empty source"))
	}
	file := src.Files[0]

	return func(yield func(domain.PartialRecord, error) bool) {
		f, err := file.Open()
		if err != nil {
			yield(domain.PartialRecord{}, fmt.Errorf("open %s: %w", file.Name, err))
			return
		}
		defer f.Close()

		rows, rerr := newRowReader(f, file.Name)
		if rerr != nil {
			yield(domain.PartialRecord{}, mismatch(src, "%v", rerr))
			return
		}
		if !rows.hasColumn(currentDateColumn) || !rows.hasColumn(currentHourColumn) {
			yield(domain.PartialRecord{}, mismatch(src, "missing %q/%q columns", currentDateColumn, currentHourColumn))
			return
		}

		// First data row carries the WMO station id, second the German
		// column titles; neither holds measurements.
		idRow, ok := rows.next()
		if !ok || idRow.err != nil {
			yield(domain.PartialRecord{}, mismatch(src, "missing station id row"))
			return
		}
		station.WMOStationID = strings.TrimRight(idRow.fields[currentDateColumn], "_")
		station.DWDStationID = stations.WMOToDWD(station.WMOStationID)
		if _, ok := rows.next(); !ok {
			return
		}

		for {
			row, ok := rows.next()
			if !ok {
				return
			}
			rec, err := d.decodeRow(row, file.Name, station, src.Name)
			if err != nil {
				if !yield(domain.PartialRecord{}, err) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (d *currentDecoder) decodeRow(row rawRow, fileName string, station domain.StationContext, sourceName string) (domain.PartialRecord, error) {
	if row.err != nil {
		return domain.PartialRecord{}, row.err
	}
	stamp := row.fields[currentDateColumn] + " " + row.fields[currentHourColumn]
	ts, err := time.Parse("02.01.06 15:04", stamp)
	if err != nil {
		return domain.PartialRecord{}, &domain.LineParseError{
			File: fileName,
			Line: row.line,
			Err:  fmt.Errorf("bad timestamp %q", stamp),
		}
	}

	params := make(map[domain.Parameter]*domain.Value, len(currentColumns))
	for name, col := range currentColumns {
		token, ok := row.fields[name]
		if !ok {
			continue
		}
		v, missing, rerr := resolve.Number(token, currentFieldSpec)
		if rerr != nil {
			return domain.PartialRecord{}, &domain.LineParseError{File: fileName, Line: row.line, Err: rerr}
		}
		if missing {
			params[col.param] = nil
			continue
		}
		if col.condition != nil {
			if cond := col.condition(int(v)); cond != "" {
				params[col.param] = domain.NewConditionValue(cond)
			} else {
				params[col.param] = nil
			}
			continue
		}
		params[col.param] = domain.NewValue(v, col.unit)
	}
	sanitizeCurrent(params)

	return domain.PartialRecord{
		Station:         station,
		ObservationType: domain.Current,
		Source:          "CurrentObservations:" + sourceName,
		Timestamp:       ts.UTC(),
		Parameters:      params,
	}, nil
}

// sanitizeCurrent drops physically impossible readings the feed is known to
// produce: cloud cover and relative humidity above 100 % and more than an
// hour of sunshine within an hour.
func sanitizeCurrent(params map[domain.Parameter]*domain.Value) {
	if v := params[domain.CloudCover]; v != nil && v.SI > 100 {
		params[domain.CloudCover] = nil
	}
	if v := params[domain.RelativeHumidity]; v != nil && v.SI > 100 {
		params[domain.RelativeHumidity] = nil
	}
	if v := params[domain.Sunshine]; v != nil && v.SI > 3600 {
		params[domain.Sunshine] = nil
	}
}
