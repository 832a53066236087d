package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		kernel bool
		export string
	)
	cmd := &cobra.Command{
		Use:   "analyze <pdb>",
		Short: "Run the complete analysis: info, symbols, structures and timings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, args[0], func(x *analysis) error {
				return x.full(kernel, export)
			})
		},
	}
	cmd.Flags().BoolVar(&kernel, "kernel", false, "Also resolve the kernel symbol preset")
	cmd.Flags().StringVar(&export, "export", "", "Also export the snapshot document to this file")
	return cmd
}

// full runs the default report and the optional sections.
func (x *analysis) full(kernel bool, export string) error {
	x.basicInfo()
	x.symbolReport(defaultSymbolRows)
	x.listStructures(defaultStructRows)
	x.perf()
	if kernel {
		x.out.kernel(x.symbols)
	}
	if export != "" {
		return x.export(export)
	}
	return nil
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <pdb>",
		Short: "Show database identity, machine type and layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, args[0], func(x *analysis) error {
				x.basicInfo()
				return nil
			})
		},
	}
}

func newSymbolsCmd(a *app) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "symbols <pdb>",
		Short: "List public symbols sorted by address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, args[0], func(x *analysis) error {
				x.symbolReport(rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", defaultSymbolRows, "Rows to print")
	return cmd
}

func newLookupCmd(a *app) *cobra.Command {
	var kernel bool
	cmd := &cobra.Command{
		Use:   "lookup <pdb> [symbol...]",
		Short: "Resolve symbol names to RVAs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && !kernel {
				return errors.New("nothing to look up: pass symbol names or --kernel")
			}
			return a.analyze(cmd, args[0], func(x *analysis) error {
				for _, name := range args[1:] {
					x.lookup(name)
				}
				if kernel {
					x.out.kernel(x.symbols)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&kernel, "kernel", false, "Resolve the kernel symbol preset")
	return cmd
}

func newStructCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "struct <pdb> <name>",
		Short: "Show a structure layout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, args[0], func(x *analysis) error {
				x.structure(args[1])
				return nil
			})
		},
	}
}

func newMemberCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "member <pdb> <struct> <member>",
		Short: "Show the offset of a structure member",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, args[0], func(x *analysis) error {
				x.member(args[1], args[2])
				return nil
			})
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "search <pdb> <pattern>",
		Short: "Search symbols by case-insensitive regular expression",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, args[0], func(x *analysis) error {
				return x.search(args[1], rows)
			})
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", defaultMatchRows, "Rows to print")
	return cmd
}

func newStructsCmd(a *app) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "structs <pdb>",
		Short: "List structure names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, args[0], func(x *analysis) error {
				x.listStructures(rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", defaultStructRows, "Rows to print")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <pdb> <output.json>",
		Short: "Write the snapshot document of a database",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := reporter{w: cmd.OutOrStdout()}
			snap, err := a.builder().Build(args[0])
			if err != nil {
				return err
			}
			out.header("Export Results")
			out.printf("Exporting to: %s\n", args[1])
			if !snap.Export(args[1], a.logger) {
				out.printf("Export failed\n")
				return errExportFailed
			}
			out.printf("Export successful (%d symbols, %d structures)\n", len(snap.Symbols), len(snap.Structures))
			return nil
		},
	}
}

func newPerfCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "perf <pdb>",
		Short: "Time cold enumeration against cached lookups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd, args[0], func(x *analysis) error {
				x.perf()
				return nil
			})
		},
	}
}
