// Package merge folds partial records into canonical per-station, per-time
// records. DWD splits one observation hour across several product files
// (temperature in one archive, precipitation in another); the merger joins
// everything that shares a (station id, timestamp) key into one record with
// the union of all reported parameters.
package merge

import (
	"iter"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
)

// Policy decides which value survives when two partials disagree on the same
// parameter.
type Policy string

const (
	// KeepFirst keeps the value seen first in stream order.
	KeepFirst Policy = "keep-first"
	// KeepLast lets later values overwrite earlier ones.
	KeepLast Policy = "keep-last"
	// DropKey discards the whole merged record on any disagreement.
	DropKey Policy = "drop-key"
)

// Options configure a merge run.
type Options struct {
	// Policy defaults to KeepFirst.
	Policy Policy
	// OnConflict, when set, is called once per detected disagreement,
	// whatever the policy then does with it.
	OnConflict func(*domain.ConflictError)
}

// slot is the accumulation state for one merge key.
type slot struct {
	partial domain.PartialRecord
	dropped bool
}

// Merge consumes a partial-record sequence and yields one canonical Record
// per (station, timestamp) key. Input need not be sorted, so the sequence is
// buffered in full; keys are emitted in first-seen order. Errors in the
// input pass through interleaved, and whether to continue past them remains
// the consumer's call.
//
// Merging is order-independent apart from conflict resolution: the union of
// parameters, station metadata fill and explicit-missing handling give the
// same record whichever file arrived first.
func Merge(seq iter.Seq2[domain.PartialRecord, error], opts Options) iter.Seq2[domain.Record, error] {
	if opts.Policy == "" {
		opts.Policy = KeepFirst
	}
	return func(yield func(domain.Record, error) bool) {
		var order []domain.MergeKey
		slots := make(map[domain.MergeKey]*slot)

		for partial, err := range seq {
			if err != nil {
				if !yield(domain.Record{}, err) {
					return
				}
				continue
			}
			key := partial.Key()
			s, ok := slots[key]
			if !ok {
				slots[key] = &slot{partial: clone(partial)}
				order = append(order, key)
				continue
			}
			fold(s, partial, opts)
		}

		for _, key := range order {
			s := slots[key]
			if s.dropped {
				continue
			}
			if !yield(domain.FromPartial(s.partial), nil) {
				return
			}
		}
	}
}

// fold merges one more partial into an existing slot.
func fold(s *slot, next domain.PartialRecord, opts Options) {
	fillStation(&s.partial.Station, next.Station)
	if s.partial.Source == "" {
		s.partial.Source = next.Source
	}
	if s.partial.ObservationType == "" {
		s.partial.ObservationType = next.ObservationType
	}
	if s.partial.Grid == nil {
		s.partial.Grid = next.Grid
	}

	for param, value := range next.Parameters {
		current, seen := s.partial.Parameters[param]
		switch {
		case !seen:
			s.partial.Parameters[param] = value
		case current == nil && value != nil:
			// A concrete value fills an explicit missing one.
			s.partial.Parameters[param] = value
		case value == nil:
			// Explicit missing never displaces anything.
		case !current.Equal(value):
			conflict := &domain.ConflictError{
				StationID: s.partial.Station.DWDStationID,
				Timestamp: s.partial.Timestamp,
				Parameter: param,
				Kept:      current,
				Dropped:   value,
			}
			switch opts.Policy {
			case KeepLast:
				conflict.Kept, conflict.Dropped = value, current
				s.partial.Parameters[param] = value
			case DropKey:
				conflict.Kept = nil
				s.dropped = true
			}
			if opts.OnConflict != nil {
				opts.OnConflict(conflict)
			}
		}
	}
}

// fillStation completes missing station metadata from another partial. Set
// fields always win over unset ones regardless of arrival order.
func fillStation(dst *domain.StationContext, src domain.StationContext) {
	if dst.DWDStationID == "" {
		dst.DWDStationID = src.DWDStationID
	}
	if dst.WMOStationID == "" {
		dst.WMOStationID = src.WMOStationID
	}
	if dst.StationName == "" {
		dst.StationName = src.StationName
	}
	if dst.Lat == nil {
		dst.Lat = src.Lat
	}
	if dst.Lon == nil {
		dst.Lon = src.Lon
	}
	if dst.Height == nil {
		dst.Height = src.Height
	}
}

// clone copies a partial so folding never mutates a decoder-owned map.
func clone(p domain.PartialRecord) domain.PartialRecord {
	params := make(map[domain.Parameter]*domain.Value, len(p.Parameters))
	for k, v := range p.Parameters {
		params[k] = v
	}
	p.Parameters = params
	return p
}
