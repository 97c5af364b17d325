package decoder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/units"
)

// RADOLAN RV composite layout. The product is a fixed 1200 km x 1100 km
// national grid with one little-endian uint16 per cell, 0.01 mm resolution,
// published as a five-minute nowcast series.
const (
	radolanProduct   = "RV"
	radolanWMOID     = "10000"
	radolanHeight    = 1200
	radolanWidth     = 1100
	radolanInterval  = 5
	radolanPrecision = "E-02"
	// Cell values of 4096 and above are outside radar coverage.
	radolanMissing = 4096
)

var radolanOffsetRe = regexp.MustCompile(`VV([ \d]{4})`)

// radolanDecoder parses RADOLAN RV composite archives. Each archive member
// is one forecast step: the measured frame plus nowcast frames offset by a
// few minutes each.
type radolanDecoder struct{}

// NewRADOLAN builds the radar composite decoder.
func NewRADOLAN() Decoder {
	return &radolanDecoder{}
}

func (d *radolanDecoder) Parse(src Source, station domain.StationContext) iter.Seq2[domain.PartialRecord, error] {
	if len(src.Files) == 0 {
		return failSeq(mismatch(src, "empty source"))
	}
	files := make([]File, len(src.Files))
	copy(files, src.Files)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return func(yield func(domain.PartialRecord, error) bool) {
		for i := range files {
			rec, err := d.parseFrame(src, files[i])
			if err != nil {
				yield(domain.PartialRecord{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (d *radolanDecoder) parseFrame(src Source, file File) (domain.PartialRecord, error) {
	f, err := file.Open()
	if err != nil {
		return domain.PartialRecord{}, fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	ts, offset, err := d.parseHeader(src, r)
	if err != nil {
		return domain.PartialRecord{}, err
	}
	cells, err := d.parseGrid(src, r)
	if err != nil {
		return domain.PartialRecord{}, err
	}

	return domain.PartialRecord{
		ObservationType: domain.Radar,
		Source:          "RADOLAN::" + radolanProduct + "::" + ts.Format(time.RFC3339),
		Timestamp:       ts.Add(offset),
		Grid: &domain.Grid{
			Parameter: domain.Precipitation.WithPeriod(radolanInterval),
			Unit:      units.Millimeter,
			Cells:     cells,
		},
	}, nil
}

// parseHeader consumes the ASCII header up to the ETX byte and verifies the
// frame is the RV composite this decoder understands.
func (d *radolanDecoder) parseHeader(src Source, r *bufio.Reader) (ts time.Time, offset time.Duration, err error) {
	header, err := r.ReadString('\x03')
	if err != nil {
		return ts, 0, mismatch(src, "unterminated header: %v", err)
	}
	header = header[:len(header)-1]
	if len(header) < 17 {
		return ts, 0, mismatch(src, "truncated header")
	}
	if product := header[:2]; product != radolanProduct {
		return ts, 0, mismatch(src, "product %q, want %s", product, radolanProduct)
	}
	if id := header[8:13]; id != radolanWMOID {
		return ts, 0, mismatch(src, "grid id %q, want composite id %s", id, radolanWMOID)
	}
	ts, err = time.Parse("0215040106", header[2:8]+header[13:17])
	if err != nil {
		return ts, 0, mismatch(src, "bad header timestamp %q", header[2:8]+header[13:17])
	}
	ts = ts.UTC()

	if want := fmt.Sprintf("GP%dx%d", radolanHeight, radolanWidth); !strings.Contains(header, want) {
		return ts, 0, mismatch(src, "header missing grid size %s", want)
	}
	if want := fmt.Sprintf("BY%10d", 2*radolanHeight*radolanWidth+len(header)+1); !strings.Contains(header, want) {
		return ts, 0, mismatch(src, "header missing byte count %s", want)
	}
	if want := fmt.Sprintf("PR%5s", radolanPrecision); !strings.Contains(header, want) {
		return ts, 0, mismatch(src, "header missing precision %s", want)
	}
	if want := fmt.Sprintf("INT%4d", radolanInterval); !strings.Contains(header, want) {
		return ts, 0, mismatch(src, "header missing interval %s", want)
	}

	m := radolanOffsetRe.FindStringSubmatch(header)
	if m == nil {
		return ts, 0, mismatch(src, "header missing forecast offset")
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(m[1]))
	if err != nil {
		return ts, 0, mismatch(src, "bad forecast offset %q", m[1])
	}
	return ts, time.Duration(minutes) * time.Minute, nil
}

// parseGrid reads the binary payload into per-cell precipitation sums in mm,
// reversing row order so the grid runs south to north.
func (d *radolanDecoder) parseGrid(src Source, r io.Reader) ([][]*float64, error) {
	buf := make([]byte, 2*radolanHeight*radolanWidth)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, mismatch(src, "truncated grid: %v", err)
	}
	if n, err := io.Copy(io.Discard, r); err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	} else if n != 0 {
		return nil, mismatch(src, "%d trailing bytes after grid", n)
	}

	cells := make([][]*float64, radolanHeight)
	for row := 0; row < radolanHeight; row++ {
		line := make([]*float64, radolanWidth)
		base := (radolanHeight - 1 - row) * radolanWidth * 2
		for col := 0; col < radolanWidth; col++ {
			raw := binary.LittleEndian.Uint16(buf[base+2*col:])
			if raw >= radolanMissing {
				continue
			}
			line[col] = float64Ptr(float64(raw) * 0.01)
		}
		cells[row] = line
	}
	return cells, nil
}
