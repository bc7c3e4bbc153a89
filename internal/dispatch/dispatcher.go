/**
 * Directory Dispatcher
 *
 * Enumerates a directory, plans one write per (file, store) pair that is not
 * already satisfied, extracts each planned file once and fans the result out
 * to every store that still needs it.
 */

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/minoad/docuparse/internal/errors"
	"github.com/minoad/docuparse/internal/logging"
	"github.com/minoad/docuparse/internal/processor"
	"github.com/minoad/docuparse/internal/storage"
)

// DefaultProcessingTimeout bounds the extraction of a single file
const DefaultProcessingTimeout = 5 * time.Minute

// Options control a single run
type Options struct {
	// Force rewrites records that already exist
	Force bool
	// DryRun logs the plan without extracting or writing anything
	DryRun bool
}

// Config holds dispatcher dependencies
type Config struct {
	Registry    *processor.Registry
	Writers     []storage.Writer
	Concurrency int
	// ProcessingTimeout is the per-file extraction limit. Zero uses DefaultProcessingTimeout.
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// Candidate is one (file, store) pair considered for writing
type Candidate struct {
	Path      string
	Key       string
	Extractor processor.Extractor
	Writer    storage.Writer
	Exists    bool
}

// FileFailure records a file whose extraction failed
type FileFailure struct {
	Path     string `json:"path"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

// Report summarizes a run
type Report struct {
	RunID      string        `json:"run_id"`
	DryRun     bool          `json:"dry_run"`
	Candidates int           `json:"candidates"`
	Planned    int           `json:"planned"`
	Extracted  int           `json:"extracted"`
	Written    int           `json:"written"`
	Skipped    int           `json:"skipped"`
	Failed     []FileFailure `json:"failed,omitempty"`
}

// fileJob is a file with the writers that still need its record
type fileJob struct {
	path      string
	key       string
	extractor processor.Extractor
	writers   []storage.Writer
}

// Dispatcher drives extraction and storage for a directory
type Dispatcher struct {
	registry    *processor.Registry
	writers     []storage.Writer
	concurrency int
	timeout     time.Duration
	logger      *logging.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if len(cfg.Writers) == 0 {
		return nil, fmt.Errorf("at least one writer is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = DefaultProcessingTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("dispatch")
	}

	return &Dispatcher{
		registry:    cfg.Registry,
		writers:     cfg.Writers,
		concurrency: cfg.Concurrency,
		timeout:     cfg.ProcessingTimeout,
		logger:      cfg.Logger,
	}, nil
}

// Run processes every registered file directly inside dir. Directory and
// store failures abort the run. A file that fails to extract is logged,
// listed in the report and does not affect the other files.
func (d *Dispatcher) Run(ctx context.Context, dir string, opts Options) (*Report, error) {
	report := &Report{RunID: uuid.New().String(), DryRun: opts.DryRun}
	logger := d.logger.With("run_id", report.RunID)

	files, err := d.enumerate(dir, logger)
	if err != nil {
		return report, err
	}

	candidates, err := d.candidates(ctx, files)
	if err != nil {
		return report, err
	}
	report.Candidates = len(candidates)

	jobs := plan(candidates, opts.Force)
	for _, job := range jobs {
		report.Planned += len(job.writers)
	}
	report.Skipped = report.Candidates - report.Planned

	logger.Info("Run planned",
		"directory", dir,
		"candidates", report.Candidates,
		"planned", report.Planned,
		"files", len(jobs),
		"force", opts.Force,
		"dry_run", opts.DryRun)

	if opts.DryRun {
		for _, job := range jobs {
			for _, w := range job.writers {
				logger.Info("Would extract and write",
					"path", job.path,
					"extractor", job.extractor.Name(),
					"store", w.Name())
			}
		}
		return report, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, job := range jobs {
		g.Go(func() error {
			return d.process(gctx, job, opts.Force, logger, report, &mu)
		})
	}

	err = g.Wait()
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Path < report.Failed[j].Path })

	logger.Info("Run finished",
		"extracted", report.Extracted,
		"written", report.Written,
		"skipped", report.Skipped,
		"failed", len(report.Failed))

	return report, err
}

type sourceFile struct {
	path      string
	key       string
	extractor processor.Extractor
}

// enumerate lists the registered files directly inside dir in name order
func (d *Dispatcher) enumerate(dir string, logger *logging.Logger) ([]sourceFile, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, apperrors.NewInvalidDirectoryError(dir, err)
	}
	if !info.IsDir() {
		return nil, apperrors.NewInvalidDirectoryError(dir, fmt.Errorf("not a directory"))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.NewInvalidDirectoryError(dir, err)
	}

	var files []sourceFile
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		extractor, ok := d.registry.Resolve(filepath.Ext(entry.Name()))
		if !ok {
			logger.Debug("Skipping unregistered file", "path", path)
			continue
		}

		fi, err := os.Stat(path)
		if err != nil {
			logger.Warn("Skipping unreadable entry",
				"path", path,
				"category", apperrors.Categorize(err),
				"error", err)
			continue
		}
		if fi.IsDir() {
			continue
		}

		files = append(files, sourceFile{path: path, key: CanonicalKey(path), extractor: extractor})
	}
	return files, nil
}

// candidates pairs every file with every writer
func (d *Dispatcher) candidates(ctx context.Context, files []sourceFile) ([]Candidate, error) {
	out := make([]Candidate, 0, len(files)*len(d.writers))
	for _, f := range files {
		for _, w := range d.writers {
			exists, err := w.Exists(ctx, f.key)
			if err != nil {
				return nil, fmt.Errorf("failed to check %s for %s: %w", w.Name(), f.key, err)
			}
			out = append(out, Candidate{
				Path:      f.path,
				Key:       f.key,
				Extractor: f.extractor,
				Writer:    w,
				Exists:    exists,
			})
		}
	}
	return out, nil
}

// plan keeps the candidates that need a write and groups them by file
func plan(candidates []Candidate, force bool) []fileJob {
	var jobs []fileJob
	index := make(map[string]int)

	for _, c := range candidates {
		if c.Exists && !force {
			continue
		}
		i, ok := index[c.Key]
		if !ok {
			i = len(jobs)
			index[c.Key] = i
			jobs = append(jobs, fileJob{path: c.Path, key: c.Key, extractor: c.Extractor})
		}
		jobs[i].writers = append(jobs[i].writers, c.Writer)
	}
	return jobs
}

func (d *Dispatcher) process(ctx context.Context, job fileJob, force bool, logger *logging.Logger, report *Report, mu *sync.Mutex) error {
	start := time.Now()

	extractCtx, cancel := context.WithTimeout(ctx, d.timeout)
	result, err := extract(extractCtx, job)
	timedOut := errors.Is(extractCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if timedOut {
			err = apperrors.NewProcessingTimeoutError(job.path, d.timeout, err)
		}

		failure := FileFailure{
			Path:     job.path,
			Code:     string(apperrors.CodeOf(err)),
			Category: apperrors.Categorize(err),
			Error:    err.Error(),
		}
		fields := []interface{}{
			"path", job.path,
			"extractor", job.extractor.Name(),
			"category", failure.Category,
			"code", failure.Code,
			"error", err,
		}
		var perr *apperrors.ProcessingError
		if errors.As(err, &perr) {
			fields = append(fields, "details", perr.ToMap())
		}
		logger.Error("Extraction failed", fields...)

		mu.Lock()
		report.Failed = append(report.Failed, failure)
		mu.Unlock()
		return nil
	}

	mu.Lock()
	report.Extracted++
	mu.Unlock()

	doc := storage.Document(result.Fields())
	for _, w := range job.writers {
		written, err := w.WriteData(ctx, storage.Payload{job.key: doc}, force)
		if err != nil {
			return fmt.Errorf("failed to write %s to %s: %w", job.key, w.Name(), err)
		}

		mu.Lock()
		if written {
			report.Written++
		} else {
			report.Skipped++
		}
		mu.Unlock()

		logger.Info("Record stored",
			"path", job.path,
			"store", w.Name(),
			"written", written,
			"duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}

type extraction struct {
	result *processor.Result
	err    error
}

// extract returns when the extractor does or when ctx ends, whichever is
// first. An extractor that ignores ctx, such as a cgo OCR call, keeps running
// in the background after the deadline.
func extract(ctx context.Context, job fileJob) (*processor.Result, error) {
	done := make(chan extraction, 1)
	go func() {
		result, err := job.extractor.Extract(ctx, job.path)
		done <- extraction{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		select {
		case out := <-done:
			return out.result, out.err
		default:
			return nil, ctx.Err()
		}
	}
}

// CanonicalKey resolves path to an absolute path with symlinks evaluated,
// keeping the absolute form when evaluation fails
func CanonicalKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
