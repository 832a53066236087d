package cli

import (
	"github.com/spf13/cobra"

	"github.com/jtang613/pdbscope/internal/diff"
)

func newDiffCmd(a *app) *cobra.Command {
	var export string
	cmd := &cobra.Command{
		Use:   "diff <old-pdb> <new-pdb>",
		Short: "Compare the public symbols of two databases",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := a.builder()
			oldSnap, err := b.Build(args[0])
			if err != nil {
				return err
			}
			newSnap, err := b.Build(args[1])
			if err != nil {
				return err
			}

			entries := diff.Compare(oldSnap, newSnap)
			diff.SortByName(entries)

			out := reporter{w: cmd.OutOrStdout()}
			out.header("PDB Diff")
			out.printf("Old: %s\nNew: %s\n\n", oldSnap.Path, newSnap.Path)
			if err := diff.Print(cmd.OutOrStdout(), entries, a.useColor()); err != nil {
				return err
			}

			if export != "" {
				if !diff.Export(entries, export, a.logger) {
					return errExportFailed
				}
				out.printf("Differences exported to: %s\n", export)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&export, "export", "", "Write the differences as JSON to this file")
	return cmd
}
