// Command dwdparse parses DWD open-data weather files into NDJSON on stdout.
//
// Usage:
//
//	# Parse a local file
//	dwdparse MOSMIX_S_LATEST_240.kmz
//
//	# Parse a local file, emitting the units used by DWD instead of SI
//	dwdparse -units dwd MOSMIX_S_LATEST_240.kmz
//
//	# Download and parse a file from the open data server
//	dwdparse https://opendata.dwd.de/.../stundenwerte_RR_01766_akt.zip
//
//	# Translate between DWD and WMO station ids while parsing, downloading
//	# the station list to the given path if it does not exist yet
//	dwdparse -load-stations -stations stations.html MOSMIX_S_LATEST_240.kmz
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/merge"
	"github.com/couchcryptid/dwd-weather-etl/internal/observability"
	"github.com/couchcryptid/dwd-weather-etl/internal/pipeline"
	"github.com/couchcryptid/dwd-weather-etl/internal/registry"
	"github.com/couchcryptid/dwd-weather-etl/internal/stations"
)

func main() {
	units := flag.String("units", "", `emit "dwd" native units instead of SI`)
	stationsPath := flag.String("stations", "", "path of a station list with DWD/WMO id mappings")
	loadStations := flag.Bool("load-stations", false, "download the station list before parsing")
	flag.Parse()

	logger := observability.NewLogger("info", "text")

	if *units != "" && *units != "dwd" {
		logger.Error("unsupported unit system", "units", *units)
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: dwdparse [flags] TARGET...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := setUpStations(*stationsPath, *loadStations, logger); err != nil {
		logger.Error("failed to set up station list", "error", err)
		os.Exit(1)
	}

	reg := registry.New()
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	enc := json.NewEncoder(out)

	exitCode := 0
	for _, target := range flag.Args() {
		if err := parseTarget(target, reg, enc, *units == "dwd", logger); err != nil {
			logger.Error("parsing failed", "target", target, "error", err)
			exitCode = 1
		}
	}
	out.Flush()
	os.Exit(exitCode)
}

// parseTarget parses one local path or URL, writing one JSON object per
// record. Malformed lines are logged and skipped.
func parseTarget(target string, reg *registry.Registry, enc *json.Encoder, nativeUnits bool, logger *slog.Logger) error {
	path := target
	if u, err := url.Parse(target); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		downloaded, cleanup, err := download(u)
		if err != nil {
			return err
		}
		defer cleanup()
		path = downloaded
	}

	for rec, err := range pipeline.Parse(path, reg, merge.Options{}) {
		if err != nil {
			var lineErr *domain.LineParseError
			if errors.As(err, &lineErr) {
				logger.Warn("skipping malformed line", "error", lineErr)
				continue
			}
			return err
		}
		if err := enc.Encode(rec.FlatMap(nativeUnits)); err != nil {
			return err
		}
	}
	return nil
}

// download fetches a URL into a temp file named after the URL's base name,
// so format dispatch still sees the product name.
func download(u *url.URL) (string, func(), error) {
	resp, err := http.Get(u.String())
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}

	dir, err := os.MkdirTemp("", "dwdparse-")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	dst := filepath.Join(dir, path.Base(u.Path))
	f, err := os.Create(dst)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		cleanup()
		return "", nil, err
	}
	return dst, cleanup, nil
}

// setUpStations loads the id-translation table, downloading the list first
// when asked to and the local copy does not exist yet.
func setUpStations(path string, loadList bool, logger *slog.Logger) error {
	if path == "" {
		if loadList {
			return loadStationsFromURL()
		}
		return nil
	}
	if loadList {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Info("downloading station list", "path", path)
			if err := downloadStations(path); err != nil {
				return err
			}
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return stations.Load(f)
}

func loadStationsFromURL() error {
	resp, err := http.Get(stations.StationListURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", stations.StationListURL, resp.Status)
	}
	return stations.Load(resp.Body)
}

func downloadStations(path string) error {
	resp, err := http.Get(stations.StationListURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", stations.StationListURL, resp.Status)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}
