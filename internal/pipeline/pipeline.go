// Package pipeline orchestrates the scan-parse-publish loop of the ETL
// service and exposes the one-file parse chain the CLI shares with it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/merge"
	"github.com/couchcryptid/dwd-weather-etl/internal/observability"
	"github.com/couchcryptid/dwd-weather-etl/internal/registry"
)

// loadBatchSize caps how many records go to the sink in one write.
const loadBatchSize = 500

// Subdirectories of the spool dir that hold finished files.
const (
	doneDir   = "done"
	failedDir = "failed"
)

// BatchLoader writes records to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []domain.Record) error
}

// Pipeline watches a spool directory for downloaded DWD product files,
// parses each through the format registry, and publishes merged records.
// Processed files move to done/, files that failed structurally to failed/.
type Pipeline struct {
	registry     *registry.Registry
	loader       BatchLoader
	logger       *slog.Logger
	metrics      *observability.Metrics
	spoolDir     string
	pollInterval time.Duration
	mergePolicy  merge.Policy
	ready        atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(reg *registry.Registry, loader BatchLoader, logger *slog.Logger, metrics *observability.Metrics, spoolDir string, pollInterval time.Duration, policy merge.Policy) *Pipeline {
	return &Pipeline{
		registry:     reg,
		loader:       loader,
		logger:       logger,
		metrics:      metrics,
		spoolDir:     spoolDir,
		pollInterval: pollInterval,
		mergePolicy:  policy,
	}
}

// CheckReadiness returns nil once the pipeline has completed at least one
// scan of the spool directory.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a spool scan yet")
	}
	return nil
}

// Run executes the scan loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, sub := range []string{doneDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(p.spoolDir, sub), 0o755); err != nil {
			return fmt.Errorf("prepare spool dir: %w", err)
		}
	}

	p.logger.Info("pipeline started", "spool_dir", p.spoolDir, "poll_interval", p.pollInterval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for {
		if err := p.scan(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			p.logger.Error("spool scan failed", "error", err)
		}
		p.ready.Store(true)

		if !sleepWithContext(ctx, p.pollInterval) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// scan processes every regular file currently in the spool directory, oldest
// name first.
func (p *Pipeline) scan(ctx context.Context) error {
	entries, err := os.ReadDir(p.spoolDir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.processFile(ctx, name)
	}
	return nil
}

// processFile runs one file through parse, merge and load, then files it
// under done/ or failed/.
func (p *Pipeline) processFile(ctx context.Context, name string) {
	start := time.Now()
	path := filepath.Join(p.spoolDir, name)
	logger := p.logger.With("file", name)

	records, err := p.publish(ctx, path)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.metrics.FilesProcessed.WithLabelValues(formatLabel(name), outcome).Inc()

	if err != nil {
		if ctx.Err() != nil {
			// Interrupted mid-file; leave it in place for the next run.
			return
		}
		logger.Error("file processing failed", "error", err, "records", records)
		p.moveTo(path, failedDir, logger)
		return
	}

	p.metrics.RecordsPerFile.Observe(float64(records))
	p.metrics.FileProcessingDuration.Observe(time.Since(start).Seconds())
	logger.Info("file processed", "records", records, "duration", time.Since(start))
	p.moveTo(path, doneDir, logger)
}

// publish streams the file's records to the loader in batches. Line-scoped
// errors are counted and skipped; anything else aborts the file.
func (p *Pipeline) publish(ctx context.Context, path string) (int, error) {
	opts := merge.Options{
		Policy: p.mergePolicy,
		OnConflict: func(c *domain.ConflictError) {
			p.metrics.MergeConflicts.Inc()
			p.logger.Warn("merge conflict", "error", c)
		},
	}

	total := 0
	batch := make([]domain.Record, 0, loadBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.loader.LoadBatch(ctx, batch); err != nil {
			return fmt.Errorf("load batch: %w", err)
		}
		p.metrics.RecordsProduced.Add(float64(len(batch)))
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for rec, err := range Parse(path, p.registry, opts) {
		if err != nil {
			var lineErr *domain.LineParseError
			if errors.As(err, &lineErr) {
				p.metrics.LineErrors.Inc()
				p.logger.Debug("skipping malformed line", "error", lineErr)
				continue
			}
			return total, err
		}
		batch = append(batch, rec)
		if len(batch) == loadBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	return total, flush()
}

func (p *Pipeline) moveTo(path, sub string, logger *slog.Logger) {
	dst := filepath.Join(p.spoolDir, sub, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		logger.Error("moving processed file failed", "error", err)
	}
}

// formatLabel reduces a file name to a low-cardinality metric label.
func formatLabel(name string) string {
	switch {
	case len(name) >= 9 && name[:9] == "DE1200_RV":
		return "radolan"
	case len(name) >= 7 && name[:7] == "MOSMIX_":
		return "mosmix"
	case len(name) >= 8 && name[:8] == "Z__C_EDZ":
		return "synop"
	case len(name) >= 13 && name[:13] == "stundenwerte_":
		return "hourly"
	case len(name) >= 15 && name[:15] == "10minutenwerte_":
		return "10min"
	case len(name) >= 9 && name[len(name)-9:] == "-BEOB.csv":
		return "current"
	default:
		return "other"
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
