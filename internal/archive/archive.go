// Package archive turns downloaded DWD product files into decoder sources.
// Container handling lives here so decoders only ever see named member
// streams: zip and kmz members stay lazy, tar members are materialized
// because tar permits sequential access only, and single-stream compression
// (bz2, gz) is unwrapped transparently.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/dwd-weather-etl/internal/decoder"
)

// nopCloser is returned for sources with no held resources.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open prepares the file at path as a decoder source. The source's Name is
// the file's base name, which is what the registry dispatches on. The
// returned closer must be held until the decoder's record sequence has been
// drained.
func Open(path string) (decoder.Source, io.Closer, error) {
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, ".zip"), strings.HasSuffix(name, ".kmz"):
		return openZip(path, name)
	case strings.HasSuffix(name, ".tar.bz2"):
		return openTarBz2(path, name)
	case strings.HasSuffix(name, ".bz2"):
		return openStream(path, name, func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		})
	case strings.HasSuffix(name, ".gz"):
		return openStream(path, name, func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		})
	default:
		return openStream(path, name, func(r io.Reader) (io.Reader, error) {
			return r, nil
		})
	}
}

func openZip(path, name string) (decoder.Source, io.Closer, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return decoder.Source{}, nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	src := decoder.Source{Name: name}
	for _, member := range zr.File {
		src.Files = append(src.Files, decoder.File{
			Name: member.Name,
			Open: member.Open,
		})
	}
	return src, zr, nil
}

// openTarBz2 reads the whole archive up front. RADOLAN composites are the
// only tar products and hold two frames of roughly 2.6 MB each.
func openTarBz2(path, name string) (decoder.Source, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return decoder.Source{}, nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer f.Close()

	src := decoder.Source{Name: name}
	tr := tar.NewReader(bzip2.NewReader(f))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return decoder.Source{}, nil, fmt.Errorf("read archive %s: %w", path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		buf, err := io.ReadAll(tr)
		if err != nil {
			return decoder.Source{}, nil, fmt.Errorf("read %s from %s: %w", hdr.Name, path, err)
		}
		src.Files = append(src.Files, decoder.File{
			Name: hdr.Name,
			Open: func() (io.ReadCloser, error) {
				return io.NopCloser(bytes.NewReader(buf)), nil
			},
		})
	}
	return src, nopCloser{}, nil
}

// openStream exposes a plainly or singly compressed file as a one-member
// source. The member opens the underlying file lazily and owns it.
func openStream(path, name string, wrap func(io.Reader) (io.Reader, error)) (decoder.Source, io.Closer, error) {
	member := strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".bz2")
	src := decoder.Source{
		Name: name,
		Files: []decoder.File{{
			Name: member,
			Open: func() (io.ReadCloser, error) {
				f, err := os.Open(path)
				if err != nil {
					return nil, err
				}
				r, err := wrap(f)
				if err != nil {
					f.Close()
					return nil, err
				}
				return &wrappedFile{Reader: r, file: f}, nil
			},
		}},
	}
	return src, nopCloser{}, nil
}

// wrappedFile closes the backing file once the decompressed stream is done.
type wrappedFile struct {
	io.Reader
	file *os.File
}

func (w *wrappedFile) Close() error { return w.file.Close() }
