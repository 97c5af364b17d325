package decoder

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/resolve"
	"github.com/couchcryptid/dwd-weather-etl/internal/stations"
	"github.com/couchcryptid/dwd-weather-etl/internal/units"
)

// obsFieldSpec is the shared numeric convention of all observation products:
// dot decimal, -999 missing-value sentinel.
var obsFieldSpec = resolve.FieldSpec{Sentinels: []string{"-999"}}

var (
	metadataRe = regexp.MustCompile(`^Metadaten_Geographie_(\d+)\.txt$`)
	productRe  = regexp.MustCompile(`^produkt_.*\.txt$`)
)

const (
	stationIDColumn = "STATIONS_ID"
	timestampColumn = "MESS_DATUM"
)

// column maps one product column to a canonical parameter. Numeric columns
// declare their native unit; condition columns declare a code mapping
// instead.
type column struct {
	param     domain.Parameter
	unit      units.Unit
	condition func(int) units.Condition
	ignored   []string
}

// HourlyDescriptor is the static metadata of one hourly observation family:
// which product columns it reads and how they map to parameters. Descriptors
// are process-wide constants validated by Validate at registry init.
type HourlyDescriptor struct {
	Family  string // DWD product code, e.g. "FF" for wind
	columns map[string]column
	// fixRow post-processes one row's parameter map; the pressure family
	// uses it to approximate missing MSL pressure from station pressure.
	fixRow func(params map[domain.Parameter]*domain.Value, height *float64)
	// fillWRTR enables the precipitation family's neighbor fill for the
	// WRTR condition column, which DWD omits every third hour.
	fillWRTR bool
}

// Validate checks that every numeric column's unit is registered with the
// unit converter. Called once at registry init; a failure is a programming
// error in the descriptor table.
func (d HourlyDescriptor) Validate() error {
	for name, col := range d.columns {
		if col.condition == nil && !units.IsRegistered(col.unit) {
			return fmt.Errorf("observations %s: column %s has unregistered unit %q", d.Family, name, col.unit)
		}
	}
	return nil
}

// Hourly observation family descriptors, one per supported product code.
var (
	CloudCoverObservations = HourlyDescriptor{
		Family: "N",
		columns: map[string]column{
			"V_N": {param: domain.CloudCover, unit: units.Eighth, ignored: []string{"-1", "9"}},
		},
	}
	DewPointObservations = HourlyDescriptor{
		Family: "TD",
		columns: map[string]column{
			"TD": {param: domain.DewPoint, unit: units.Celsius},
		},
	}
	TemperatureObservations = HourlyDescriptor{
		Family: "TU",
		columns: map[string]column{
			"TT_TU": {param: domain.Temperature, unit: units.Celsius},
			"RF_TU": {param: domain.RelativeHumidity, unit: units.Percent},
		},
	}
	PrecipitationObservations = HourlyDescriptor{
		Family: "RR",
		columns: map[string]column{
			"R1":   {param: domain.Precipitation, unit: units.Millimeter},
			"WRTR": {param: domain.Condition, condition: units.PrecipitationForm},
		},
		fillWRTR: true,
	}
	SunshineObservations = HourlyDescriptor{
		Family: "SD",
		columns: map[string]column{
			"SD_SO": {param: domain.Sunshine, unit: units.Minute},
		},
	}
	VisibilityObservations = HourlyDescriptor{
		Family: "VV",
		columns: map[string]column{
			"V_VV": {param: domain.Visibility, unit: units.Meter},
		},
	}
	WindObservations = HourlyDescriptor{
		Family: "FF",
		columns: map[string]column{
			"F": {param: domain.WindSpeed, unit: units.MetersPerSecond},
			"D": {param: domain.WindDirection, unit: units.Degree, ignored: []string{"990"}},
		},
	}
	PressureObservations = HourlyDescriptor{
		Family: "P0",
		columns: map[string]column{
			"P":  {param: domain.PressureMSL, unit: units.Hectopascal},
			"P0": {param: domain.PressureStation, unit: units.Hectopascal},
		},
		fixRow: approximatePressureMSL,
	}
)

// approximatePressureMSL fills a missing mean-sea-level pressure from the
// station-level pressure through the barometric formula. The approximation
// ignores the current temperature, so the result is rounded to the nearest
// 10 Pa. The station-level value is not part of the record model and is
// dropped either way.
func approximatePressureMSL(params map[domain.Parameter]*domain.Value, height *float64) {
	msl := params[domain.PressureMSL]
	station := params[domain.PressureStation]
	if msl == nil && station != nil && height != nil {
		pa := station.SI * math.Pow(1-0.0065**height/288.15, -5.255)
		pa = math.Round(pa/10) * 10
		params[domain.PressureMSL] = &domain.Value{
			SI:         pa,
			SIUnit:     units.Pascal,
			Native:     pa / 100,
			NativeUnit: units.Hectopascal,
		}
	}
	delete(params, domain.PressureStation)
}

// hourlyDecoder decodes one hourly observation zip: a produkt_* data member
// plus a Metadaten_Geographie_* member carrying the station's location
// history.
type hourlyDecoder struct {
	desc HourlyDescriptor
}

// NewHourly builds the decoder for one hourly observation family.
func NewHourly(desc HourlyDescriptor) Decoder {
	return &hourlyDecoder{desc: desc}
}

func (d *hourlyDecoder) Parse(src Source, station domain.StationContext) iter.Seq2[domain.PartialRecord, error] {
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

		emit := func(row rawRow) bool {
			rec, err := d.decodeRow(row, product.Name, station, history)
			if err != nil {
				return yield(domain.PartialRecord{}, err)
			}
			return yield(rec, nil)
		}

		if d.desc.fillWRTR {
			emitWithWRTRFill(rows, emit)
			return
		}
		for {
			row, ok := rows.next()
			if !ok {
				return
			}
			if !emit(row) {
				return
			}
		}
	}
}

func (d *hourlyDecoder) decodeRow(row rawRow, productName string, station domain.StationContext, history locationHistory) (domain.PartialRecord, error) {
	if row.err != nil {
		return domain.PartialRecord{}, row.err
	}
	ts, err := time.Parse("2006010215", row.fields[timestampColumn])
	if err != nil {
		return domain.PartialRecord{}, &domain.LineParseError{
			File: productName,
			Line: row.line,
			Err:  fmt.Errorf("bad timestamp %q", row.fields[timestampColumn]),
		}
	}
	ts = ts.UTC()

	// A per-line station id wins over the archive-level one.
	if id := row.fields[stationIDColumn]; id != "" {
		station.DWDStationID = zfill(id, 5)
		station.WMOStationID = stations.DWDToWMO(station.DWDStationID)
	}
	history.apply(ts, &station)

	params, perr := decodeColumns(row, d.desc.columns, productName)
	if perr != nil {
		return domain.PartialRecord{}, perr
	}
	if d.desc.fixRow != nil {
		d.desc.fixRow(params, station.Height)
	}

	return domain.PartialRecord{
		Station:         station,
		ObservationType: domain.Historical,
		Source:          "Observations:Recent:" + productName,
		Timestamp:       ts,
		Parameters:      params,
	}, nil
}

// decodeColumns resolves every descriptor column present in the row into the
// parameter map. Columns the descriptor does not know (quality flags, eor
// markers, future additions) are dropped silently.
func decodeColumns(row rawRow, columns map[string]column, productName string) (map[domain.Parameter]*domain.Value, error) {
	params := make(map[domain.Parameter]*domain.Value, len(columns))
	for name, col := range columns {
		token, ok := row.fields[name]
		if !ok {
			continue
		}
		spec := obsFieldSpec.WithIgnored(col.ignored...)
		v, missing, err := resolve.Number(token, spec)
		if err != nil {
			return nil, &domain.LineParseError{File: productName, Line: row.line, Err: err}
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
	return params, nil
}

// emitWithWRTRFill streams rows through a three-row window, filling the WRTR
// condition column DWD omits every third hour. A row's missing WRTR is taken
// from whichever neighbor shares an active precipitation indicator (RS_IND),
// or set to dry when the indicator reports no precipitation.
func emitWithWRTRFill(rows *rowReader, emit func(rawRow) bool) {
	var prev, cur *rawRow
	flush := func(next *rawRow) bool {
		if cur == nil {
			return true
		}
		fillWRTR(prev, cur, next)
		ok := emit(*cur)
		prev, cur = cur, next
		return ok
	}
	for {
		row, ok := rows.next()
		if !ok {
			flush(nil)
			return
		}
		if cur == nil {
			cur = &row
			continue
		}
		next := row
		if !flush(&next) {
			return
		}
	}
}

func fillWRTR(prev, cur, next *rawRow) {
	if cur.err != nil || cur.fields["WRTR"] != "-999" {
		return
	}
	switch {
	case cur.fields["RS_IND"] == "0":
		cur.fields["WRTR"] = "0"
	case prev != nil && prev.err == nil && prev.fields["RS_IND"] == "1":
		cur.fields["WRTR"] = prev.fields["WRTR"]
	case next != nil && next.err == nil && next.fields["RS_IND"] == "1":
		cur.fields["WRTR"] = next.fields["WRTR"]
	default:
		cur.fields["WRTR"] = "9"
	}
}

// rawRow is one data line keyed by trimmed header name. err is set for lines
// with the wrong field count; they still occupy a slot in the WRTR window.
type rawRow struct {
	line   int
	fields map[string]string
	err    error
}

// rowReader streams the semicolon-delimited lines of a product file.
type rowReader struct {
	scanner *bufio.Scanner
	header  []string
	file    string
	line    int
}

func newRowReader(r io.Reader, file string) (*rowReader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !sc.Scan() {
		return nil, fmt.Errorf("%s: empty file", file)
	}
	header := splitSemicolon(latin1String(sc.Bytes()))
	return &rowReader{scanner: sc, header: header, file: file, line: 1}, nil
}

func (r *rowReader) hasColumn(name string) bool {
	for _, h := range r.header {
		if h == name {
			return true
		}
	}
	return false
}

func (r *rowReader) next() (rawRow, bool) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(latin1String(r.scanner.Bytes()))
		if text == "" {
			continue
		}
		fields := splitSemicolon(text)
		if len(fields) != len(r.header) {
			return rawRow{
				line: r.line,
				err: &domain.LineParseError{
					File: r.file,
					Line: r.line,
					Err:  fmt.Errorf("expected %d fields, got %d", len(r.header), len(fields)),
				},
			}, true
		}
		row := rawRow{line: r.line, fields: make(map[string]string, len(fields))}
		for i, name := range r.header {
			row.fields[name] = fields[i]
		}
		return row, true
	}
	return rawRow{}, false
}

// locationHistory is a station's position over time, from the geography
// metadata member. Entries are sorted by their valid-from date.
type locationHistory []locationEntry

type locationEntry struct {
	from   time.Time
	lat    float64
	lon    float64
	height float64
	name   string
}

// apply stamps the station context with the location valid at ts. Contexts
// keep their seed values when the history is empty or starts after ts.
func (h locationHistory) apply(ts time.Time, station *domain.StationContext) {
	var entry *locationEntry
	for i := range h {
		if h[i].from.After(ts) {
			break
		}
		entry = &h[i]
	}
	if entry == nil {
		return
	}
	station.Lat = float64Ptr(entry.lat)
	station.Lon = float64Ptr(entry.lon)
	station.Height = float64Ptr(entry.height)
	station.StationName = entry.name
}

// parseSourceHistory locates the geography metadata member, stamps the
// station context with the archive's station id, and parses the location
// history. The 10-minute families ship the metadata in a separate archive,
// so a missing member is not an error; records then carry no position.
func parseSourceHistory(src Source, station *domain.StationContext) (locationHistory, error) {
	meta := src.Find(metadataRe)
	var metaID string
	if meta != nil {
		metaID = metadataRe.FindStringSubmatch(meta.Name)[1]
	}
	if metaID == "" {
		if product := src.Find(productIDRe); product != nil {
			metaID = productIDRe.FindStringSubmatch(product.Name)[1]
		}
	}
	if metaID != "" {
		station.DWDStationID = zfill(metaID, 5)
		station.WMOStationID = stations.DWDToWMO(station.DWDStationID)
	}
	if meta == nil {
		return nil, nil
	}

	f, err := meta.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", meta.Name, err)
	}
	defer f.Close()
	return parseLocationHistory(f, meta.Name)
}

var productIDRe = regexp.MustCompile(`^produkt_.*_(\d+)\.txt$`)

func parseLocationHistory(r io.Reader, file string) (locationHistory, error) {
	rows, err := newRowReader(r, file)
	if err != nil {
		return nil, err
	}
	var history locationHistory
	for {
		row, ok := rows.next()
		if !ok {
			break
		}
		if row.err != nil {
			// Metadata files end with a free-text legend; skip
			// anything that is not a well-formed row.
			continue
		}
		from, err := time.Parse("20060102", row.fields["von_datum"])
		if err != nil {
			continue
		}
		entry := locationEntry{from: from.UTC(), name: row.fields["Stationsname"]}
		if _, err := fmt.Sscanf(row.fields["Geogr.Breite"], "%f", &entry.lat); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(row.fields["Geogr.Laenge"], "%f", &entry.lon); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(row.fields["Stationshoehe"], "%f", &entry.height); err != nil {
			continue
		}
		history = append(history, entry)
	}
	sort.Slice(history, func(i, j int) bool { return history[i].from.Before(history[j].from) })
	return history, nil
}

func zfill(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}
