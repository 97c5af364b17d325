package pipeline

import (
	"iter"
	"path/filepath"

	"github.com/couchcryptid/dwd-weather-etl/internal/archive"
	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/merge"
	"github.com/couchcryptid/dwd-weather-etl/internal/registry"
)

// Parse runs the full per-file chain: dispatch on the file name, extract the
// container, decode, and merge partials into canonical records. The sequence
// is lazy; resources are released when it is drained or abandoned.
//
// Fatal conditions (unrecognized name, structural mismatch) surface as the
// sequence's only element. Line-scoped errors come interleaved with records
// and the consumer decides whether to skip or halt.
func Parse(path string, reg *registry.Registry, opts merge.Options) iter.Seq2[domain.Record, error] {
	return func(yield func(domain.Record, error) bool) {
		dec, err := reg.GetDecoder(filepath.Base(path))
		if err != nil {
			yield(domain.Record{}, err)
			return
		}
		src, closer, err := archive.Open(path)
		if err != nil {
			yield(domain.Record{}, err)
			return
		}
		defer closer.Close()

		for rec, err := range merge.Merge(dec.Parse(src, domain.StationContext{}), opts) {
			if !yield(rec, err) {
				return
			}
		}
	}
}
