package batch

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/jtang613/pdbscope/internal/snapshot"
)

// Report is the outcome of one Run.
type Report struct {
	RunID   string
	Results []FileResult
}

// Counts returns the number of exported and failed files.
func (r *Report) Counts() (processed, failed int) {
	for _, res := range r.Results {
		switch res.State {
		case Exported:
			processed++
		case Failed:
			failed++
		}
	}
	return processed, failed
}

// SummaryDocument is the exported JSON form of a Report.
type SummaryDocument struct {
	Summary Summary `json:"summary"`
}

// Summary aggregates per-file outcomes.
type Summary struct {
	RunID      string          `json:"run_id"`
	TotalFiles int             `json:"total_files"`
	Processed  []ProcessedFile `json:"processed"`
	Failed     []FailedFile    `json:"failed"`
}

// ProcessedFile is an exported file with its record counts.
type ProcessedFile struct {
	File       string `json:"file"`
	Symbols    int    `json:"symbols"`
	Structures int    `json:"structures"`
}

// FailedFile is a file that could not be processed.
type FailedFile struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Document converts the report to its export form.
func (r *Report) Document() *SummaryDocument {
	s := Summary{
		RunID:      r.RunID,
		TotalFiles: len(r.Results),
		Processed:  []ProcessedFile{},
		Failed:     []FailedFile{},
	}
	for _, res := range r.Results {
		switch res.State {
		case Exported:
			s.Processed = append(s.Processed, ProcessedFile{
				File:       res.Path,
				Symbols:    res.Symbols,
				Structures: res.Structures,
			})
		case Failed:
			msg := "unknown error"
			if res.Err != nil {
				msg = res.Err.Error()
			}
			s.Failed = append(s.Failed, FailedFile{File: res.Path, Error: msg})
		}
	}
	return &SummaryDocument{Summary: s}
}

// WriteSummaryJSON writes the summary document to w.
func (r *Report) WriteSummaryJSON(w io.Writer) error {
	return snapshot.EncodeJSON(w, r.Document())
}

// WriteSummary writes the summary document to path. Failures are logged and
// reported as false.
func (r *Report) WriteSummary(path string, logger zerolog.Logger) bool {
	if err := snapshot.WriteFile(path, r.WriteSummaryJSON); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("summary export failed")
		return false
	}
	return true
}
