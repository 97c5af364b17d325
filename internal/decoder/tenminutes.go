package decoder

import (
	"fmt"
	"iter"
	"time"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/stations"
	"github.com/couchcryptid/dwd-weather-etl/internal/units"
)

// TenMinuteDescriptor is the static metadata of a 10-minute observation
// family. Ten-minute products are aggregated to hourly records: rows
// accumulate until the family's trigger minute, then collapse into one
// record per hour.
type TenMinuteDescriptor struct {
	Family  string
	columns map[string]column
	// trigger is the minute that closes an hour's accumulation window.
	// The solar product reports each row's irradiance for the following
	// ten minutes, so its window closes at :50 and rounds up to the next
	// full hour; the wind extremes close at :00.
	trigger int
	// aggregate collapses up to six 10-minute parameter maps into the
	// hourly parameter map.
	aggregate func(hourValues []map[domain.Parameter]*domain.Value) map[domain.Parameter]*domain.Value
}

// Validate checks the descriptor's units, mirroring HourlyDescriptor.
func (d TenMinuteDescriptor) Validate() error {
	for name, col := range d.columns {
		if col.condition == nil && !units.IsRegistered(col.unit) {
			return fmt.Errorf("10-minute %s: column %s has unregistered unit %q", d.Family, name, col.unit)
		}
	}
	return nil
}

var (
	WindGustObservations = TenMinuteDescriptor{
		Family: "extrema_wind",
		columns: map[string]column{
			"FX_10": {param: domain.WindGustSpeed, unit: units.MetersPerSecond},
			"DX_10": {param: domain.WindGustDirection, unit: units.Degree},
		},
		trigger:   0,
		aggregate: aggregateWindGusts,
	}
	SolarRadiationObservations = TenMinuteDescriptor{
		Family: "SOLAR",
		columns: map[string]column{
			"GS_10": {param: domain.Solar, unit: units.JoulePerSqCm},
		},
		trigger:   50,
		aggregate: aggregateSolar,
	}
)

// aggregateWindGusts keeps the strongest gust of the hour together with its
// direction. A zero speed means no gust occurred in that window, so an hour
// of only zeroes or missing rows yields explicit missing values.
func aggregateWindGusts(hourValues []map[domain.Parameter]*domain.Value) map[domain.Parameter]*domain.Value {
	var best map[domain.Parameter]*domain.Value
	for _, values := range hourValues {
		speed := values[domain.WindGustSpeed]
		if speed == nil || speed.SI == 0 {
			continue
		}
		if best == nil || speed.SI > best[domain.WindGustSpeed].SI {
			best = values
		}
	}
	if best == nil {
		return map[domain.Parameter]*domain.Value{
			domain.WindGustSpeed:     nil,
			domain.WindGustDirection: nil,
		}
	}
	return map[domain.Parameter]*domain.Value{
		domain.WindGustSpeed:     best[domain.WindGustSpeed],
		domain.WindGustDirection: best[domain.WindGustDirection],
	}
}

// aggregateSolar sums the hour's irradiance. The sum starts at the first
// reported value; an hour with none stays explicitly missing.
func aggregateSolar(hourValues []map[domain.Parameter]*domain.Value) map[domain.Parameter]*domain.Value {
	var sum *float64
	for _, values := range hourValues {
		v := values[domain.Solar]
		if v == nil {
			continue
		}
		if sum == nil {
			sum = new(float64)
		}
		*sum += v.SI
	}
	if sum == nil {
		return map[domain.Parameter]*domain.Value{domain.Solar: nil}
	}
	return map[domain.Parameter]*domain.Value{
		domain.Solar: {
			SI:         *sum,
			SIUnit:     units.JoulePerSqMeter,
			Native:     *sum / 10000,
			NativeUnit: units.JoulePerSqCm,
		},
	}
}

type tenMinuteDecoder struct {
	desc TenMinuteDescriptor
}

// NewTenMinute builds the decoder for one 10-minute observation family.
func NewTenMinute(desc TenMinuteDescriptor) Decoder {
	return &tenMinuteDecoder{desc: desc}
}

func (d *tenMinuteDecoder) Parse(src Source, station domain.StationContext) iter.Seq2[domain.PartialRecord, error] {
	product := src.Find(productRe)
	if product == nil {
		return failSeq(mismatch(src, "no produkt_* member"))
	}
	history, herr := parseSourceHistory(src, &station)
	if herr != nil {
		return failSeq(herr)
	}

	return func(yield func(domain.PartialRecord, error) bool) {
		f, err := product.Open()
		if err != nil {
			yield(domain.PartialRecord{}, fmt.Errorf("open %s: %w", product.Name, err))
			return
		}
		defer f.Close()

		rows, rerr := newRowReader(f, product.Name)
		if rerr != nil {
			yield(domain.PartialRecord{}, mismatch(src, "%v", rerr))
			return
		}
		if !rows.hasColumn(timestampColumn) {
			yield(domain.PartialRecord{}, mismatch(src, "header has no %s column", timestampColumn))
			return
		}

		var hourValues []map[domain.Parameter]*domain.Value
		for {
			row, ok := rows.next()
			if !ok {
				return
			}
			if row.err != nil {
				if !yield(domain.PartialRecord{}, row.err) {
					return
				}
				continue
			}
			ts, terr := time.Parse("200601021504", row.fields[timestampColumn])
			if terr != nil {
				lpe := &domain.LineParseError{
					File: product.Name,
					Line: row.line,
					Err:  fmt.Errorf("bad timestamp %q", row.fields[timestampColumn]),
				}
				if !yield(domain.PartialRecord{}, lpe) {
					return
				}
				continue
			}
			ts = ts.UTC()

			if id := row.fields[stationIDColumn]; id != "" {
				station.DWDStationID = zfill(id, 5)
				station.WMOStationID = stations.DWDToWMO(station.DWDStationID)
			}

			params, perr := decodeColumns(row, d.desc.columns, product.Name)
			if perr != nil {
				if !yield(domain.PartialRecord{}, perr) {
					return
				}
				continue
			}
			hourValues = append(hourValues, params)

			if ts.Minute() != d.desc.trigger {
				continue
			}
			rec := d.makeRecord(ts, hourValues, product.Name, station, history)
			hourValues = nil
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (d *tenMinuteDecoder) makeRecord(ts time.Time, hourValues []map[domain.Parameter]*domain.Value, productName string, station domain.StationContext, history locationHistory) domain.PartialRecord {
	switch {
	case d.desc.trigger > 30:
		// Triggered late in the hour; the readings belong to the next
		// full hour.
		ts = ts.Add(time.Duration(60-d.desc.trigger) * time.Minute)
	case d.desc.trigger != 0:
		ts = ts.Truncate(time.Hour)
	}
	history.apply(ts, &station)
	return domain.PartialRecord{
		Station:         station,
		ObservationType: domain.Historical,
		Source:          "Observations:Recent:" + productName,
		Timestamp:       ts,
		Parameters:      d.desc.aggregate(hourValues),
	}
}
