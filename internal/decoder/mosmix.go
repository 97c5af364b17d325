package decoder

import (
	"encoding/xml"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/stations"
	"github.com/couchcryptid/dwd-weather-etl/internal/units"
)

// mosmixElements maps MOSMIX forecast element codes to parameters. MOSMIX
// reports SI units natively except for solar irradiance (kJ/m²); identity
// conversions keep the native/SI pair consistent either way. Elements not in
// this map are dropped silently.
var mosmixElements = map[string]column{
	"DD":    {param: domain.WindDirection, unit: units.Degree},
	"FF":    {param: domain.WindSpeed, unit: units.MetersPerSecond},
	"FX1":   {param: domain.WindGustSpeed, unit: units.MetersPerSecond},
	"N":     {param: domain.CloudCover, unit: units.Percent},
	"PPPP":  {param: domain.PressureMSL, unit: units.Pascal},
	"R101":  {param: domain.PrecipitationProbability, unit: units.Percent},
	"R602":  {param: domain.PrecipitationProbability6h, unit: units.Percent},
	"Rad1h": {param: domain.Solar, unit: units.KilojoulePerSqM},
	"RR1c":  {param: domain.Precipitation, unit: units.Millimeter},
	"SunD1": {param: domain.Sunshine, unit: units.Second},
	"Td":    {param: domain.DewPoint, unit: units.Kelvin},
	"TTT":   {param: domain.Temperature, unit: units.Kelvin},
	"VV":    {param: domain.Visibility, unit: units.Meter},
	"ww":    {param: domain.Condition, condition: units.SynopCurrentWeather},
}

// mosmixDecoder parses MOSMIX point-forecast KML. The document carries one
// shared timestamp axis and one Placemark per station with a space-separated
// value run per forecast element; "-" marks a missing value.
type mosmixDecoder struct{}

// NewMOSMIX builds the MOSMIX forecast decoder.
func NewMOSMIX() Decoder {
	return &mosmixDecoder{}
}

// kmlPlacemark is one station's forecast block. Element matching is by local
// name, which sidesteps the kml/dwd namespace prefixes.
type kmlPlacemark struct {
	Name        string        `xml:"name"`
	Description string        `xml:"description"`
	Coordinates string        `xml:"Point>coordinates"`
	Forecasts   []kmlForecast `xml:"ExtendedData>Forecast"`
}

type kmlForecast struct {
	ElementName string `xml:"elementName,attr"`
	Value       string `xml:"value"`
}

func (d *mosmixDecoder) Parse(src Source, station domain.StationContext) iter.Seq2[domain.PartialRecord, error] {
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

		dec := xml.NewDecoder(f)
		var (
			source     string
			timestamps []time.Time
		)
		for {
			tok, terr := dec.Token()
			if terr == io.EOF {
				if source == "" || timestamps == nil {
					yield(domain.PartialRecord{}, mismatch(src, "not a MOSMIX document"))
				}
				return
			}
			if terr != nil {
				yield(domain.PartialRecord{}, mismatch(src, "invalid XML: %v", terr))
				return
			}
			start, ok := tok.(xml.StartElement)
			if !ok {
				continue
			}
			switch start.Name.Local {
			case "ProductID":
				text, err := textOf(dec, &start)
				if err != nil {
					yield(domain.PartialRecord{}, mismatch(src, "%v", err))
					return
				}
				source = text
			case "IssueTime":
				text, err := textOf(dec, &start)
				if err != nil || source == "" {
					yield(domain.PartialRecord{}, mismatch(src, "issue time without product id"))
					return
				}
				source += ":" + text
			case "ForecastTimeSteps":
				timestamps, err = parseTimeSteps(dec, &start)
				if err != nil {
					yield(domain.PartialRecord{}, mismatch(src, "%v", err))
					return
				}
			case "Placemark":
				if timestamps == nil || source == "" {
					yield(domain.PartialRecord{}, mismatch(src, "placemark before time steps"))
					return
				}
				var pm kmlPlacemark
				if err := dec.DecodeElement(&pm, &start); err != nil {
					yield(domain.PartialRecord{}, mismatch(src, "invalid placemark: %v", err))
					return
				}
				if !d.yieldStation(pm, timestamps, source, station, yield) {
					return
				}
			}
		}
	}
}

// yieldStation emits one record per timestamp for a single Placemark.
// Stations without coordinates are skipped; MOSMIX carries a few such
// pseudo-stations.
func (d *mosmixDecoder) yieldStation(pm kmlPlacemark, timestamps []time.Time, source string, station domain.StationContext, yield func(domain.PartialRecord, error) bool) bool {
	coords := strings.Split(strings.TrimSpace(pm.Coordinates), ",")
	if len(coords) != 3 {
		return true
	}
	lon, errLon := strconv.ParseFloat(coords[0], 64)
	lat, errLat := strconv.ParseFloat(coords[1], 64)
	height, errH := strconv.ParseFloat(coords[2], 64)
	if errLon != nil || errLat != nil || errH != nil {
		return true
	}
	station.WMOStationID = strings.TrimSpace(pm.Name)
	station.DWDStationID = stations.WMOToDWD(station.WMOStationID)
	station.StationName = strings.TrimSpace(pm.Description)
	station.Lat, station.Lon, station.Height = float64Ptr(lat), float64Ptr(lon), float64Ptr(height)

	series := make(map[domain.Parameter][]*domain.Value, len(pm.Forecasts))
	for _, fc := range pm.Forecasts {
		col, ok := mosmixElements[fc.ElementName]
		if !ok {
			continue
		}
		values, err := parseValueRun(fc.Value, col, len(timestamps))
		if err != nil {
			return yield(domain.PartialRecord{}, fmt.Errorf("station %s, element %s: %w", pm.Name, fc.ElementName, err))
		}
		series[col.param] = values
	}

	for i, ts := range timestamps {
		params := make(map[domain.Parameter]*domain.Value, len(series))
		for param, values := range series {
			params[param] = values[i]
		}
		sanitizeForecast(params)
		rec := domain.PartialRecord{
			Station:         station,
			ObservationType: domain.Forecast,
			Source:          source,
			Timestamp:       ts,
			Parameters:      params,
		}
		if !yield(rec, nil) {
			return false
		}
	}
	return true
}

// parseValueRun splits a forecast element's space-separated value run. The
// run length must match the document's timestamp axis.
func parseValueRun(raw string, col column, want int) ([]*domain.Value, error) {
	tokens := strings.Fields(raw)
	if len(tokens) != want {
		return nil, fmt.Errorf("%d values for %d time steps", len(tokens), want)
	}
	values := make([]*domain.Value, len(tokens))
	for i, tok := range tokens {
		if tok == "-" {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, &domain.NumericFormatError{Token: tok}
		}
		if col.condition != nil {
			if cond := col.condition(int(v)); cond != "" {
				values[i] = domain.NewConditionValue(cond)
			}
			continue
		}
		values[i] = domain.NewValue(v, col.unit)
	}
	return values, nil
}

// sanitizeForecast fixes out-of-domain values MOSMIX is known to emit:
// negative precipitation becomes missing, wind directions above 360° wrap,
// cloud cover clamps to 0-100 %.
func sanitizeForecast(params map[domain.Parameter]*domain.Value) {
	if v := params[domain.Precipitation]; v != nil && v.SI < 0 {
		params[domain.Precipitation] = nil
	}
	if v := params[domain.WindDirection]; v != nil && v.SI > 360 {
		params[domain.WindDirection] = domain.NewValue(v.Native-360, v.NativeUnit)
	}
	if v := params[domain.CloudCover]; v != nil && v.SI < 0 {
		params[domain.CloudCover] = domain.NewValue(0, v.NativeUnit)
	}
	if v := params[domain.CloudCover]; v != nil && v.SI > 100 {
		params[domain.CloudCover] = domain.NewValue(100, v.NativeUnit)
	}
}

// textOf consumes an element and returns its trimmed character data.
func textOf(dec *xml.Decoder, start *xml.StartElement) (string, error) {
	var s struct {
		Text string `xml:",chardata"`
	}
	if err := dec.DecodeElement(&s, start); err != nil {
		return "", err
	}
	return strings.TrimSpace(s.Text), nil
}

// parseTimeSteps consumes the ForecastTimeSteps element into the shared
// timestamp axis.
func parseTimeSteps(dec *xml.Decoder, start *xml.StartElement) ([]time.Time, error) {
	var steps struct {
		TimeSteps []string `xml:"TimeStep"`
	}
	if err := dec.DecodeElement(&steps, start); err != nil {
		return nil, err
	}
	timestamps := make([]time.Time, len(steps.TimeSteps))
	for i, s := range steps.TimeSteps {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("bad time step %q", s)
		}
		timestamps[i] = ts.UTC()
	}
	return timestamps, nil
}
