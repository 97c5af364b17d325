package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/stations"
	"github.com/couchcryptid/dwd-weather-etl/internal/units"
)

// SYNOP BUFR-JSON key tables. Values arrive in SI units already; sunshine is
// the one exception and is reported in minutes.
var (
	// synopElements apply regardless of surrounding context.
	synopElements = map[string]column{
		"cloudCoverTotal":               {param: domain.CloudCover, unit: units.Percent},
		"meteorologicalOpticalRange":    {param: domain.Visibility, unit: units.Meter},
		"pressureReducedToMeanSeaLevel": {param: domain.PressureMSL, unit: units.Pascal},
	}
	// synopHeightElements only count when the enclosing context places the
	// sensor at the standard 2 m above ground.
	synopHeightElements = map[string]column{
		"airTemperature":       {param: domain.Temperature, unit: units.Kelvin},
		"dewpointTemperature":  {param: domain.DewPoint, unit: units.Kelvin},
		"relativeHumidity":     {param: domain.RelativeHumidity, unit: units.Percent},
	}
	// synopPeriodElements are keyed by the enclosing time period and land in
	// period-suffixed parameters. Periods outside the table are ignored.
	synopPeriodElements = map[string]column{
		"globalSolarRadiationIntegratedOverPeriodSpecified": {param: domain.Solar, unit: units.JoulePerSqMeter},
		"windDirection":            {param: domain.WindDirection, unit: units.Degree},
		"windSpeed":                {param: domain.WindSpeed, unit: units.MetersPerSecond},
		"maximumWindGustDirection": {param: domain.WindGustDirection, unit: units.Degree},
		"maximumWindGustSpeed":     {param: domain.WindGustSpeed, unit: units.MetersPerSecond},
		"totalPrecipitationOrTotalWaterEquivalent": {param: domain.Precipitation, unit: units.Millimeter},
		"totalSunshine":            {param: domain.Sunshine, unit: units.Minute},
	}
)

const (
	synopHeightKey     = "heightOfSensorAboveLocalGroundOrDeckOfMarinePlatform"
	synopSensorHeight  = 2.0
	synopTimePeriodKey = "timePeriod"
)

// synopTimePeriods are the reporting windows (minutes before the timestamp)
// worth keeping. A context without an explicit period reports the 10-minute
// window.
var synopTimePeriods = map[int]bool{-10: true, -30: true, -60: true}

// synopDecoder parses DWD SYNOP reports in BUFR-as-JSON form. Each message is
// a nested block tree; sibling blocks share the context built up by the
// dictionaries seen so far, nested lists fork a copy of it.
type synopDecoder struct{}

// NewSYNOP builds the SYNOP report decoder.
func NewSYNOP() Decoder {
	return &synopDecoder{}
}

func (d *synopDecoder) Parse(src Source, station domain.StationContext) iter.Seq2[domain.PartialRecord, error] {
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

		var doc struct {
			Messages []json.RawMessage `json:"messages"`
		}
		if err := json.NewDecoder(f).Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				// The feed occasionally publishes empty files.
				return
			}
			yield(domain.PartialRecord{}, mismatch(src, "invalid JSON: %v", err))
			return
		}

		for i, raw := range doc.Messages {
			var message []any
			if err := json.Unmarshal(raw, &message); err != nil {
				yield(domain.PartialRecord{}, mismatch(src, "message %d is not a block list: %v", i, err))
				return
			}
			rec, merr := d.decodeMessage(message, station, file.Name, i)
			if merr != nil {
				if !yield(domain.PartialRecord{}, merr) {
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

// synopMessage accumulates one message's record while the block tree is
// walked.
type synopMessage struct {
	station domain.StationContext
	ts      time.Time
	hasTS   bool
	params  map[domain.Parameter]*domain.Value
}

func (d *synopDecoder) decodeMessage(message []any, station domain.StationContext, fileName string, index int) (domain.PartialRecord, error) {
	msg := &synopMessage{
		station: station,
		params:  make(map[domain.Parameter]*domain.Value),
	}
	if err := msg.walk(message, nil); err != nil {
		return domain.PartialRecord{}, &domain.LineParseError{File: fileName, Line: index + 1, Err: err}
	}
	if err := msg.complete(); err != nil {
		return domain.PartialRecord{}, &domain.LineParseError{File: fileName, Line: index + 1, Err: err}
	}
	msg.sanitize()

	return domain.PartialRecord{
		Station:         msg.station,
		ObservationType: domain.Synop,
		Source:          fileName,
		Timestamp:       msg.ts,
		Parameters:      msg.params,
	}, nil
}

// walk processes one block list. Dictionaries extend the inherited context,
// nested lists recurse on a copy of it so siblings stay isolated.
func (m *synopMessage) walk(blocks []any, base map[string]any) error {
	data := make(map[string]any, len(base)+8)
	for k, v := range base {
		data[k] = v
	}
	for _, block := range blocks {
		switch b := block.(type) {
		case map[string]any:
			key, _ := b["key"].(string)
			value := b["value"]
			data[key] = value
			if err := m.apply(key, value, data); err != nil {
				return err
			}
		case []any:
			if err := m.walk(b, data); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected block of type %T", block)
		}
	}
	return nil
}

func (m *synopMessage) apply(key string, value any, data map[string]any) error {
	if col, ok := synopElements[key]; ok {
		m.setValue(col.param, value, col.unit)
		return nil
	}
	if col, ok := synopHeightElements[key]; ok {
		if h, ok := numberAt(data, synopHeightKey); ok && h == synopSensorHeight {
			m.setValue(col.param, value, col.unit)
		}
		return nil
	}
	if col, ok := synopPeriodElements[key]; ok {
		period := -10
		if p, ok := numberAt(data, synopTimePeriodKey); ok {
			period = int(p)
		}
		if !synopTimePeriods[period] {
			return nil
		}
		m.setValue(col.param.WithPeriod(-period), value, col.unit)
		return nil
	}

	switch key {
	case "latitude":
		if v, ok := value.(float64); ok {
			m.station.Lat = float64Ptr(v)
		}
	case "longitude":
		if v, ok := value.(float64); ok {
			m.station.Lon = float64Ptr(v)
		}
	case "heightOfStationGroundAboveMeanSeaLevel":
		if v, ok := value.(float64); ok {
			m.station.Height = float64Ptr(v)
		}
	case "stationOrSiteName":
		if v, ok := value.(string); ok {
			m.station.StationName = v
		}
	case "stationNumber":
		m.applyStationNumber(data)
	case "minute":
		return m.applyTimestamp(data)
	case "presentWeather":
		if v, ok := value.(float64); ok {
			if cond := units.SynopCurrentWeather(int(v)); cond != "" {
				m.params[domain.Condition] = domain.NewConditionValue(cond)
			}
		}
	case "pastWeather1":
		v, ok := value.(float64)
		if ok && v != 0 && m.params[domain.Condition] == nil {
			if cond := units.SynopPastWeather(int(v)); cond != "" {
				m.params[domain.Condition] = domain.NewConditionValue(cond)
			}
		}
	}
	return nil
}

// setValue stores a parameter, keeping JSON null as an explicit missing
// value.
func (m *synopMessage) setValue(param domain.Parameter, value any, unit units.Unit) {
	v, ok := value.(float64)
	if !ok {
		m.params[param] = nil
		return
	}
	m.params[param] = domain.NewValue(v, unit)
}

// applyStationNumber derives the WMO id from block and station number, or
// falls back to the short name for stations without a numeric id.
func (m *synopMessage) applyStationNumber(data map[string]any) {
	var wmoID string
	if sn, ok := numberAt(data, "stationNumber"); ok && sn != 0 {
		bn, _ := numberAt(data, "blockNumber")
		wmoID = fmt.Sprintf("%d%03d", int(bn), int(sn))
	} else if name, ok := data["shortStationName"].(string); ok {
		wmoID = name
	}
	m.station.WMOStationID = wmoID
	m.station.DWDStationID = stations.WMOToDWD(wmoID)
}

// applyTimestamp assembles the observation time once the minute key closes
// the date/time group.
func (m *synopMessage) applyTimestamp(data map[string]any) error {
	parts := make(map[string]int, 5)
	for _, part := range []string{"year", "month", "day", "hour", "minute"} {
		v, ok := numberAt(data, part)
		if !ok {
			return fmt.Errorf("incomplete timestamp: missing %s", part)
		}
		parts[part] = int(v)
	}
	m.ts = time.Date(
		parts["year"], time.Month(parts["month"]), parts["day"],
		parts["hour"], parts["minute"], 0, 0, time.UTC)
	m.hasTS = true
	return nil
}

func (m *synopMessage) complete() error {
	switch {
	case m.station.WMOStationID == "":
		return errors.New("incomplete record: no station id")
	case m.station.StationName == "":
		return errors.New("incomplete record: no station name")
	case m.station.Lat == nil || m.station.Lon == nil || m.station.Height == nil:
		return errors.New("incomplete record: no station location")
	case !m.hasTS:
		return errors.New("incomplete record: no timestamp")
	}
	return nil
}

// sanitize drops negative precipitation sums and cloud cover above 100 %,
// both of which the feed occasionally reports.
func (m *synopMessage) sanitize() {
	for param, v := range m.params {
		if param.HasBase(domain.Precipitation) && v != nil && v.SI < 0 {
			m.params[param] = nil
		}
	}
	if v := m.params[domain.CloudCover]; v != nil && v.SI > 100 {
		m.params[domain.CloudCover] = nil
	}
}

// numberAt reads a float value from the walk context.
func numberAt(data map[string]any, key string) (float64, bool) {
	v, ok := data[key].(float64)
	return v, ok
}
