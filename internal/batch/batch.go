// Package batch snapshots and exports many debug databases, isolating
// failures per file.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jtang613/pdbscope/internal/snapshot"
)

// Defaults
const (
	DefaultSuffix    = "_analysis.json"
	DefaultOutputDir = "batch_output"
	DefaultExtension = ".pdb"
)

// State is the progress of one file.
type State int

// File states. A file moves Pending → Opened → Exported or Pending → Failed.
const (
	Pending State = iota
	Opened
	Exported
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Opened:
		return "opened"
	case Exported:
		return "exported"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// FileResult records the outcome for one input file.
type FileResult struct {
	Path       string
	Output     string
	State      State
	Symbols    int
	Structures int
	Err        error
	Duration   time.Duration
}

// Orchestrator drives the snapshot pipeline across files.
type Orchestrator struct {
	Builder   *snapshot.Builder
	OutputDir string
	Suffix    string
	// Jobs is the number of files processed concurrently. Values below one
	// mean one.
	Jobs   int
	Logger zerolog.Logger
}

// OutputPath returns the export destination for input: the input's stem
// plus the suffix, inside the output directory.
func (o *Orchestrator) OutputPath(input string) string {
	suffix := o.Suffix
	if suffix == "" {
		suffix = DefaultSuffix
	}
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(o.OutputDir, stem+suffix)
}

// Run processes paths and returns one result per path in input order. A
// failing file never stops the others. Cancelling ctx stops scheduling new
// files; unscheduled files are reported as failed.
func (o *Orchestrator) Run(ctx context.Context, paths []string) *Report {
	report := &Report{
		RunID:   uuid.NewString(),
		Results: make([]FileResult, len(paths)),
	}
	for i, p := range paths {
		report.Results[i] = FileResult{Path: p, Output: o.OutputPath(p), State: Pending}
	}
	if len(paths) == 0 {
		return report
	}

	logger := o.Logger.With().Str("run_id", report.RunID).Logger()

	if err := os.MkdirAll(o.OutputDir, 0o755); err != nil {
		err = fmt.Errorf("failed to create output directory: %w", err)
		logger.Error().Err(err).Str("dir", o.OutputDir).Msg("batch aborted")
		for i := range report.Results {
			report.Results[i].State = Failed
			report.Results[i].Err = err
		}
		return report
	}

	jobs := max(o.Jobs, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))

	for i := range paths {
		// results are indexed per goroutine, no locking needed
		res := &report.Results[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				res.State = Failed
				res.Err = err
				return nil
			}
			o.process(res, logger)
			return nil
		})
	}
	_ = g.Wait()

	processed, failed := report.Counts()
	logger.Info().Int("processed", processed).Int("failed", failed).Msg("batch complete")
	return report
}

func (o *Orchestrator) process(res *FileResult, logger zerolog.Logger) {
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	log := logger.With().Str("file", res.Path).Logger()

	snap, err := o.Builder.Build(res.Path)
	if err != nil {
		res.State = Failed
		res.Err = err
		log.Error().Err(err).Msg("failed to open database")
		return
	}
	res.State = Opened
	res.Symbols = len(snap.Symbols)
	res.Structures = len(snap.Structures)

	if !snap.Export(res.Output, log) {
		res.State = Failed
		res.Err = fmt.Errorf("failed to export %s", res.Output)
		return
	}
	res.State = Exported
	log.Info().
		Str("output", res.Output).
		Int("symbols", res.Symbols).
		Int("structures", res.Structures).
		Msg("exported")
}

// Discover lists the files directly inside dir whose extension matches ext,
// ignoring case, sorted by name.
func Discover(dir, ext string) ([]string, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ext) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
