package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/dwd-weather-etl/internal/units"
)

// ObservationType tags which DWD product family a record came from.
type ObservationType string

const (
	Historical ObservationType = "historical"
	Current    ObservationType = "current"
	Forecast   ObservationType = "forecast"
	Synop      ObservationType = "synop"
	Radar      ObservationType = "radar"
)

// Parameter is a canonical measurement name. SYNOP records additionally carry
// time-period suffixed parameters (e.g. "wind_speed_10" for the last ten
// minutes), which is why Parameter is an open string type rather than a
// closed enum.
type Parameter string

const (
	CloudCover                 Parameter = "cloud_cover"
	Condition                  Parameter = "condition"
	DewPoint                   Parameter = "dew_point"
	Precipitation              Parameter = "precipitation"
	PrecipitationProbability   Parameter = "precipitation_probability"
	PrecipitationProbability6h Parameter = "precipitation_probability_6h"
	PressureMSL                Parameter = "pressure_msl"
	PressureStation            Parameter = "pressure_station"
	RelativeHumidity           Parameter = "relative_humidity"
	Solar                      Parameter = "solar"
	Sunshine                   Parameter = "sunshine"
	Temperature                Parameter = "temperature"
	Visibility                 Parameter = "visibility"
	WindDirection              Parameter = "wind_direction"
	WindGustDirection          Parameter = "wind_gust_direction"
	WindGustSpeed              Parameter = "wind_gust_speed"
	WindSpeed                  Parameter = "wind_speed"
)

// WithPeriod suffixes a parameter with a SYNOP aggregation period in minutes,
// e.g. WindSpeed.WithPeriod(10) -> "wind_speed_10".
func (p Parameter) WithPeriod(minutes int) Parameter {
	return Parameter(string(p) + "_" + strconv.Itoa(minutes))
}

// HasBase reports whether p is base itself or a period-suffixed variant of
// it.
func (p Parameter) HasBase(base Parameter) bool {
	return p == base || strings.HasPrefix(string(p), string(base)+"_")
}

// Value is one normalized measurement. It keeps both the SI value and the
// pre-conversion native value so the presentation layer can serve either
// (the CLI's --units dwd switch). Condition-typed parameters carry a label
// instead of a number.
type Value struct {
	SI         float64
	SIUnit     units.Unit
	Native     float64
	NativeUnit units.Unit
	Condition  units.Condition
}

// NewValue converts a native-unit measurement into a Value carrying both
// representations.
func NewValue(native float64, nativeUnit units.Unit) *Value {
	si, siUnit := units.ToSI(native, nativeUnit)
	return &Value{
		SI:         si,
		SIUnit:     siUnit,
		Native:     native,
		NativeUnit: nativeUnit,
	}
}

// NewConditionValue wraps a weather-condition label. An empty condition still
// produces a non-nil Value; explicit missing measurements are represented by
// a nil *Value in the parameters map instead.
func NewConditionValue(c units.Condition) *Value {
	return &Value{Condition: c}
}

// IsCondition reports whether the value carries a condition label rather
// than a number.
func (v *Value) IsCondition() bool {
	return v != nil && v.NativeUnit == "" && v.SIUnit == ""
}

// Equal reports whether two parameter values agree. Two nils (explicit
// missing) agree; nil never agrees with a concrete value.
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.IsCondition() != other.IsCondition() {
		return false
	}
	if v.IsCondition() {
		return v.Condition == other.Condition
	}
	return v.SI == other.SI && v.SIUnit == other.SIUnit
}

// Grid is a radar composite payload: Cells[row][col] holds one grid cell,
// nil marking cells outside radar coverage. Rows run south to north.
type Grid struct {
	Parameter Parameter
	Unit      units.Unit
	Cells     [][]*float64
}

// StationContext is the per-file identity and location metadata threaded into
// a decoder so records can be stamped even when data lines omit identity.
// Location fields are pointers because several products (notably the
// 10-minute families without their metadata archive) ship no position.
type StationContext struct {
	DWDStationID string
	WMOStationID string
	StationName  string
	Lat          *float64
	Lon          *float64
	Height       *float64
}

// PartialRecord is the decoder-internal, pre-merge record shape. Its
// parameter map may be sparse, and several partials may share a
// (station, timestamp) key. A nil map value is an explicit missing-value
// sentinel; an absent key means "not reported".
type PartialRecord struct {
	Station         StationContext
	ObservationType ObservationType
	Source          string
	Timestamp       time.Time
	Parameters      map[Parameter]*Value
	Grid            *Grid
}

// Key returns the merge key for this partial. SYNOP and MOSMIX identify
// stations by WMO id only, so the key falls back to it when no DWD id is
// known; distinct stations must never share a key.
func (p PartialRecord) Key() MergeKey {
	id := p.Station.DWDStationID
	if id == "" {
		id = p.Station.WMOStationID
	}
	return MergeKey{StationID: id, Timestamp: p.Timestamp}
}

// MergeKey identifies the unique record slot a partial contributes to.
type MergeKey struct {
	StationID string
	Timestamp time.Time
}

// Record is the canonical engine output: one station, one point in time, a
// mapping of parameter name to SI-normalized value, and provenance.
type Record struct {
	DWDStationID    string
	WMOStationID    string
	StationName     string
	Lat             *float64
	Lon             *float64
	Height          *float64
	ObservationType ObservationType
	Source          string
	Timestamp       time.Time
	Parameters      map[Parameter]*Value
	Grid            *Grid
	ParsedAt        time.Time
}

// FromPartial promotes a merged partial into a canonical Record, stamping the
// parse time from the package clock.
func FromPartial(p PartialRecord) Record {
	return Record{
		DWDStationID:    p.Station.DWDStationID,
		WMOStationID:    p.Station.WMOStationID,
		StationName:     p.Station.StationName,
		Lat:             p.Station.Lat,
		Lon:             p.Station.Lon,
		Height:          p.Station.Height,
		ObservationType: p.ObservationType,
		Source:          p.Source,
		Timestamp:       p.Timestamp,
		Parameters:      p.Parameters,
		Grid:            p.Grid,
		ParsedAt:        clock.Now().UTC(),
	}
}

// FlatMap renders the record as the flat mapping consumed by the
// serialization layer: identity and provenance fields plus one entry per
// reported parameter. With nativeUnits set, parameter values are emitted in
// their pre-conversion DWD units instead of SI. Explicitly missing
// parameters appear as nil entries.
func (r Record) FlatMap(nativeUnits bool) map[string]any {
	out := map[string]any{
		"observation_type": string(r.ObservationType),
		"source":           r.Source,
		"timestamp":        r.Timestamp.UTC().Format(time.RFC3339),
		"station_id":       r.DWDStationID,
	}
	if r.WMOStationID != "" {
		out["wmo_station_id"] = r.WMOStationID
	}
	if r.StationName != "" {
		out["station_name"] = r.StationName
	}
	if r.Lat != nil {
		out["lat"] = *r.Lat
	}
	if r.Lon != nil {
		out["lon"] = *r.Lon
	}
	if r.Height != nil {
		out["height"] = *r.Height
	}
	if r.Grid != nil {
		out[string(r.Grid.Parameter)] = r.Grid.Cells
	}
	for param, v := range r.Parameters {
		switch {
		case v == nil:
			out[string(param)] = nil
		case v.IsCondition():
			if v.Condition == "" {
				out[string(param)] = nil
			} else {
				out[string(param)] = string(v.Condition)
			}
		case nativeUnits:
			out[string(param)] = v.Native
		default:
			out[string(param)] = v.SI
		}
	}
	return out
}
