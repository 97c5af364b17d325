package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/merge"
	"github.com/couchcryptid/dwd-weather-etl/internal/observability"
	"github.com/couchcryptid/dwd-weather-etl/internal/registry"
)

const currentObsFile = `surface observations;Parameter description;dry_bulb_temperature_at_2_meter_above_ground;relative_humidity
10315______;;;
Datum;Uhrzeit (UTC);Lufttemperatur;Relative Feuchte
12.04.23;09:00;11,3;66
12.04.23;10:00;12,1;---
`

type captureLoader struct {
	mu      sync.Mutex
	records []domain.Record
	err     error
}

func (l *captureLoader) LoadBatch(_ context.Context, records []domain.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, records...)
	return nil
}

func (l *captureLoader) loaded() []domain.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Record(nil), l.records...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, spoolDir string, loader BatchLoader) *Pipeline {
	t.Helper()
	p := New(registry.New(), loader, discardLogger(), observability.NewMetricsForTesting(),
		spoolDir, 10*time.Millisecond, merge.KeepFirst)
	for _, sub := range []string{doneDir, failedDir} {
		require.NoError(t, os.MkdirAll(filepath.Join(spoolDir, sub), 0o755))
	}
	return p
}

func TestParse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "10315-BEOB.csv")
	require.NoError(t, os.WriteFile(path, []byte(currentObsFile), 0o644))

	var records []domain.Record
	for rec, err := range Parse(path, registry.New(), merge.Options{}) {
		require.NoError(t, err)
		records = append(records, rec)
	}

	require.Len(t, records, 2)
	assert.Equal(t, "10315", records[0].WMOStationID)
	assert.InDelta(t, 284.45, records[0].Parameters[domain.Temperature].SI, 1e-9)
	assert.InDelta(t, 285.25, records[1].Parameters[domain.Temperature].SI, 1e-9)
}

func TestParseUnrecognizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	var gotErr error
	for _, err := range Parse(path, registry.New(), merge.Options{}) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, domain.ErrUnrecognizedFormat)
}

func TestProcessFileSuccess(t *testing.T) {
	dir := t.TempDir()
	loader := &captureLoader{}
	p := newTestPipeline(t, dir, loader)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10315-BEOB.csv"), []byte(currentObsFile), 0o644))

	p.processFile(context.Background(), "10315-BEOB.csv")

	assert.Len(t, loader.loaded(), 2)
	assert.FileExists(t, filepath.Join(dir, doneDir, "10315-BEOB.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "10315-BEOB.csv"))
}

func TestProcessFileUnrecognized(t *testing.T) {
	dir := t.TempDir()
	loader := &captureLoader{}
	p := newTestPipeline(t, dir, loader)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	p.processFile(context.Background(), "notes.txt")

	assert.Empty(t, loader.loaded())
	assert.FileExists(t, filepath.Join(dir, failedDir, "notes.txt"))
}

func TestProcessFileLoaderError(t *testing.T) {
	dir := t.TempDir()
	loader := &captureLoader{err: errors.New("sink down")}
	p := newTestPipeline(t, dir, loader)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10315-BEOB.csv"), []byte(currentObsFile), 0o644))

	p.processFile(context.Background(), "10315-BEOB.csv")

	assert.FileExists(t, filepath.Join(dir, failedDir, "10315-BEOB.csv"))
}

func TestScanSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	loader := &captureLoader{}
	p := newTestPipeline(t, dir, loader)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10315-BEOB.csv"), []byte(currentObsFile), 0o644))

	require.NoError(t, p.scan(context.Background()))

	assert.Len(t, loader.loaded(), 2)
	assert.FileExists(t, filepath.Join(dir, doneDir, "10315-BEOB.csv"))
}

func TestRunBecomesReadyAndStops(t *testing.T) {
	dir := t.TempDir()
	p := newTestPipeline(t, dir, &captureLoader{})
	require.Error(t, p.CheckReadiness(context.Background()), "not ready before the first scan")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return p.CheckReadiness(context.Background()) == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}

func TestFormatLabel(t *testing.T) {
	tests := map[string]string{
		"DE1200_RV2305081330.tar.bz2":        "radolan",
		"MOSMIX_S_LATEST_240.kmz":            "mosmix",
		"Z__C_EDZW_2023_MW_466.json.bz2":     "synop",
		"stundenwerte_TU_01766_akt.zip":      "hourly",
		"10minutenwerte_SOLAR_01766_akt.zip": "10min",
		"10315-BEOB.csv":                     "current",
		"notes.txt":                          "other",
	}
	for name, want := range tests {
		assert.Equal(t, want, formatLabel(name), "name %q", name)
	}
}
