// Package registry dispatches DWD file names to format decoders. Product
// files are recognized by name alone: the upstream open-data server encodes
// the product family in a stable naming scheme, so dispatch never has to
// sniff file contents.
package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/couchcryptid/dwd-weather-etl/internal/decoder"
	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
)

// entry binds one file-name pattern to a decoder factory. Patterns are
// anchored at the start of the name.
type entry struct {
	pattern *regexp.Regexp
	name    string
	build   func() decoder.Decoder
}

// AmbiguousFormatError reports a file name matched by more than one pattern.
// The table below is written to keep patterns mutually exclusive; a name
// hitting two of them means the table itself needs fixing, so dispatch
// refuses rather than picking one.
type AmbiguousFormatError struct {
	Name     string
	Decoders []string
}

func (e *AmbiguousFormatError) Error() string {
	return fmt.Sprintf("file name %q matches multiple formats: %s",
		e.Name, strings.Join(e.Decoders, ", "))
}

// Registry is an immutable dispatch table.
type Registry struct {
	entries []entry
}

// New builds the default registry covering every supported product family.
func New() *Registry {
	return &Registry{entries: []entry{
		radar("DE1200_RV"),
		forecast(`MOSMIX_(S|L)_LATEST(_240)?\.kmz$`),
		synop(`Z__C_EDZW_\d+_.*\.json\.bz2$`),
		current(`\w{5}-BEOB\.csv$`),
		hourly("stundenwerte_FF_", decoder.WindObservations),
		hourly("stundenwerte_N_", decoder.CloudCoverObservations),
		hourly("stundenwerte_P0_", decoder.PressureObservations),
		hourly("stundenwerte_RR_", decoder.PrecipitationObservations),
		hourly("stundenwerte_SD_", decoder.SunshineObservations),
		hourly("stundenwerte_TD_", decoder.DewPointObservations),
		hourly("stundenwerte_TU_", decoder.TemperatureObservations),
		hourly("stundenwerte_VV_", decoder.VisibilityObservations),
		tenMinute("10minutenwerte_extrema_wind_", decoder.WindGustObservations),
		tenMinute("10minutenwerte_SOLAR_", decoder.SolarRadiationObservations),
	}}
}

// GetDecoder resolves a file name to its decoder. Unmatched names return
// ErrUnrecognizedFormat; names matched by more than one pattern return an
// AmbiguousFormatError. Resolution depends only on the name, never on match
// order.
func (r *Registry) GetDecoder(name string) (decoder.Decoder, error) {
	var matches []*entry
	for i := range r.entries {
		if r.entries[i].pattern.MatchString(name) {
			matches = append(matches, &r.entries[i])
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%s: %w", name, domain.ErrUnrecognizedFormat)
	case 1:
		return matches[0].build(), nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.name
		}
		return nil, &AmbiguousFormatError{Name: name, Decoders: names}
	}
}

// Formats lists the registered decoder names, for diagnostics.
func (r *Registry) Formats() []string {
	names := make([]string, len(r.entries))
	for i := range r.entries {
		names[i] = r.entries[i].name
	}
	return names
}

func compile(pattern string) *regexp.Regexp {
	return regexp.MustCompile("^(?:" + pattern + ")")
}

func hourly(prefix string, desc decoder.HourlyDescriptor) entry {
	if err := desc.Validate(); err != nil {
		panic(err)
	}
	return entry{
		pattern: compile(regexp.QuoteMeta(prefix)),
		name:    "hourly/" + desc.Family,
		build:   func() decoder.Decoder { return decoder.NewHourly(desc) },
	}
}

func tenMinute(prefix string, desc decoder.TenMinuteDescriptor) entry {
	if err := desc.Validate(); err != nil {
		panic(err)
	}
	return entry{
		pattern: compile(regexp.QuoteMeta(prefix)),
		name:    "10min/" + desc.Family,
		build:   func() decoder.Decoder { return decoder.NewTenMinute(desc) },
	}
}

func radar(pattern string) entry {
	return entry{pattern: compile(pattern), name: "radolan", build: decoder.NewRADOLAN}
}

func forecast(pattern string) entry {
	return entry{pattern: compile(pattern), name: "mosmix", build: decoder.NewMOSMIX}
}

func synop(pattern string) entry {
	return entry{pattern: compile(pattern), name: "synop", build: decoder.NewSYNOP}
}

func current(pattern string) entry {
	return entry{pattern: compile(pattern), name: "current", build: decoder.NewCurrentObservations}
}
