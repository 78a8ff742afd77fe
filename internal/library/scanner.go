// Package library implements recursive music library scanning. The
// scanner is a task-queue handler collaborator for the library_scan task
// type; it fans file metadata extraction out through the batch processor.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/nuevabiblioteca/biblioteca/internal/batch"
	"github.com/nuevabiblioteca/biblioteca/internal/config"
	"github.com/nuevabiblioteca/biblioteca/internal/metadata"
	"github.com/nuevabiblioteca/biblioteca/internal/taskqueue"
)

// TaskType is the registry identifier for library scan tasks.
const TaskType = "library_scan"

// ScanParams is the task payload for a library_scan task. Empty Roots
// fall back to the configured library roots.
type ScanParams struct {
	Roots []string `json:"roots,omitempty"`
}

// ScanReport summarizes one scan run; it is the task's stored result.
type ScanReport struct {
	Roots          []string `json:"roots"`
	TotalFiles     int      `json:"total_files"`
	Imported       int      `json:"imported"`
	Errors         []string `json:"errors,omitempty"`
	ElapsedSeconds float64  `json:"elapsed_seconds"`
}

// Scanner walks the configured library roots for audio files and extracts
// their metadata in bounded-concurrency chunks.
type Scanner struct {
	extractor  *metadata.Extractor
	processor  *batch.Processor[string, *metadata.TrackMetadata]
	roots      []string
	extensions map[string]bool
	logger     *slog.Logger
}

// NewScanner creates a Scanner from the library and batch configuration.
func NewScanner(libCfg config.LibraryConfig, batchCfg config.BatchConfig, extractor *metadata.Extractor, logger *slog.Logger) *Scanner {
	exts := make(map[string]bool, len(libCfg.Extensions))
	for _, ext := range libCfg.Extensions {
		exts[strings.ToLower(ext)] = true
	}
	return &Scanner{
		extractor:  extractor,
		processor:  batch.New[string, *metadata.TrackMetadata](batchCfg.ChunkSize, batchCfg.Workers),
		roots:      libCfg.Roots,
		extensions: exts,
		logger:     logger,
	}
}

// Scan walks the given roots (or the configured ones when empty), then
// extracts metadata for every matching file. File-level failures are
// collected into the report; only cancellation aborts the scan.
func (s *Scanner) Scan(ctx context.Context, roots []string) (*ScanReport, error) {
	if len(roots) == 0 {
		roots = s.roots
	}
	if len(roots) == 0 {
		return nil, errors.New("no library roots configured")
	}

	start := time.Now()
	report := &ScanReport{Roots: roots}

	var files []string
	for _, root := range roots {
		rootFiles, err := s.collect(ctx, root)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", root, err))
			continue
		}
		files = append(files, rootFiles...)
	}
	report.TotalFiles = len(files)

	s.logger.Info("library scan starting",
		"roots", roots,
		"files", len(files))

	tracks, err := s.processor.Process(ctx, files, s.extractor.Extract, func(p batch.Progress) {
		s.logger.Debug("scan progress",
			"processed", p.ProcessedItems,
			"total", p.TotalItems,
			"percent", p.Percent())
	})
	if err != nil {
		return nil, err
	}

	report.Imported = len(tracks)
	if missing := report.TotalFiles - report.Imported; missing > 0 {
		report.Errors = append(report.Errors,
			fmt.Sprintf("%d files could not be read", missing))
	}
	report.ElapsedSeconds = time.Since(start).Seconds()

	s.logger.Info("library scan finished",
		"imported", report.Imported,
		"errors", len(report.Errors),
		"elapsed", time.Since(start))

	return report, nil
}

// collect walks one root and returns the matching audio file paths.
func (s *Scanner) collect(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		if s.extensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Handler adapts the scanner to the task queue contract. A scan with no
// resolvable roots is a configuration problem and never retried.
func (s *Scanner) Handler() taskqueue.Handler {
	return func(ctx context.Context, params json.RawMessage) (any, error) {
		var p ScanParams
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, taskqueue.NonRetryable(fmt.Errorf("invalid scan params: %w", err))
			}
		}

		report, err := s.Scan(ctx, p.Roots)
		if err != nil {
			if len(p.Roots) == 0 && len(s.roots) == 0 {
				return nil, taskqueue.NonRetryable(err)
			}
			return nil, err
		}
		return report, nil
	}
}
