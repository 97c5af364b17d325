// Package stations cross-references DWD network-local station ids with
// international WMO station ids.
//
// The mapping comes from the DWD statlex station list, published as an HTML
// table. Loading it is optional: without a loaded index every lookup returns
// the empty string and records simply omit the cross-referenced id.
package stations

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// StationListURL is where DWD publishes the station list the index is built
// from. Fetching it is the retrieval layer's job; this package only parses.
const StationListURL = "https://www.dwd.de/DE/leistungen/klimadatendeutschland/statliste/" +
	"statlex_html.html?view=nasPublication"

// stationTypes are the station kinds carrying both a DWD and a WMO id.
var stationTypes = map[string]bool{"SY": true, "MN": true}

var cellRe = regexp.MustCompile(`<td[^>]*?>(.*?)</td>`)

// Index holds the bidirectional DWD/WMO station id mapping.
type Index struct {
	dwdToWMO map[string]string
	wmoToDWD map[string]string
}

// ParseStationList builds an Index from the statlex HTML. Rows are
// line-oriented: a data row starts with <tr> and has exactly eleven cells.
// Returns an error when no station rows are found, which indicates a layout
// change in the upstream list.
func ParseStationList(r io.Reader) (*Index, error) {
	html, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read station list: %w", err)
	}
	idx := &Index{
		dwdToWMO: make(map[string]string),
		wmoToDWD: make(map[string]string),
	}
	for line := range strings.Lines(string(html)) {
		if !strings.HasPrefix(line, "<tr>") || strings.Count(line, "<td") != 11 {
			continue
		}
		cells := cellRe.FindAllStringSubmatch(line, -1)
		if len(cells) != 11 {
			continue
		}
		if !stationTypes[cells[2][1]] {
			continue
		}
		dwdID := zfill(cells[1][1], 5)
		wmoID := cells[3][1]
		idx.dwdToWMO[dwdID] = wmoID
		idx.wmoToDWD[wmoID] = dwdID
	}
	if len(idx.dwdToWMO) == 0 {
		return nil, errors.New("found no stations in station list")
	}
	return idx, nil
}

// ToWMO returns the WMO id for a DWD station id, or "" when unmapped.
func (i *Index) ToWMO(dwdID string) string {
	if i == nil {
		return ""
	}
	return i.dwdToWMO[dwdID]
}

// ToDWD returns the DWD id for a WMO station id, or "" when unmapped.
func (i *Index) ToDWD(wmoID string) string {
	if i == nil {
		return ""
	}
	return i.wmoToDWD[wmoID]
}

// Len reports the number of mapped stations.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.dwdToWMO)
}

// index is the process-wide default, set once at startup before any parse
// begins and read-only afterwards.
var index *Index

// Load parses the station list and installs it as the package default.
func Load(r io.Reader) error {
	idx, err := ParseStationList(r)
	if err != nil {
		return err
	}
	index = idx
	return nil
}

// SetIndex swaps the package default, for tests. Pass nil to clear.
func SetIndex(i *Index) {
	index = i
}

// DWDToWMO converts against the package default index.
func DWDToWMO(dwdID string) string { return index.ToWMO(dwdID) }

// WMOToDWD converts against the package default index.
func WMOToDWD(wmoID string) string { return index.ToDWD(wmoID) }

func zfill(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
