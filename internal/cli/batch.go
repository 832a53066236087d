package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jtang613/pdbscope/internal/batch"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		jobs      int
		summary   string
		outputDir string
		suffix    string
	)
	cmd := &cobra.Command{
		Use:   "batch <directory | pdb...>",
		Short: "Export snapshot documents for many databases",
		Long: `Export a snapshot document for every database given, or for every file with
the configured extension directly inside a single directory argument. A file
that fails is recorded and the rest continue.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := a.batchInputs(args)
			if err != nil {
				return err
			}

			o := &batch.Orchestrator{
				Builder:   a.builder(),
				OutputDir: a.cfg.Batch.OutputDir,
				Suffix:    a.cfg.Batch.Suffix,
				Jobs:      a.cfg.Batch.Jobs,
				Logger:    a.logger,
			}
			if cmd.Flags().Changed("jobs") {
				o.Jobs = jobs
			}
			if outputDir != "" {
				o.OutputDir = outputDir
			}
			if suffix != "" {
				o.Suffix = suffix
			}

			report := o.Run(cmd.Context(), paths)

			out := reporter{w: cmd.OutOrStdout()}
			out.header("Batch Processing")
			for _, r := range report.Results {
				if r.Err != nil {
					out.printf("[-] %s: %v\n", r.Path, r.Err)
					continue
				}
				out.printf("[+] %s -> %s (%d symbols, %d structures)\n", r.Path, r.Output, r.Symbols, r.Structures)
			}
			processed, failed := report.Counts()
			out.printf("\nBatch processing complete: %d processed, %d failed. Results in: %s\n", processed, failed, o.OutputDir)

			if summary != "" && !report.WriteSummary(summary, a.logger) {
				return errExportFailed
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 1, "Files processed in parallel (default from config)")
	cmd.Flags().StringVar(&summary, "summary", "", "Write the batch summary document to this file")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for exported documents (default from config)")
	cmd.Flags().StringVar(&suffix, "suffix", "", "Suffix appended to each output file stem (default from config)")
	return cmd
}

// batchInputs expands a single directory argument into its databases.
func (a *app) batchInputs(args []string) ([]string, error) {
	if len(args) != 1 {
		return args, nil
	}
	info, err := os.Stat(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", args[0], err)
	}
	if !info.IsDir() {
		return args, nil
	}
	paths, err := batch.Discover(args[0], a.cfg.Batch.Extension)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		a.logger.Warn().Str("dir", args[0]).Str("extension", a.cfg.Batch.Extension).Msg("no databases found")
	}
	return paths, nil
}
