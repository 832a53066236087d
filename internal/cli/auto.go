package cli

import (
	"github.com/spf13/cobra"

	"github.com/jtang613/pdbscope/internal/locator"
)

func newAutoCmd(a *app) *cobra.Command {
	var (
		kernel bool
		export string
		store  string
	)
	cmd := &cobra.Command{
		Use:   "auto <executable>",
		Short: "Find an executable's PDB in the local symbol store and analyze it",
		Long: `Read the CodeView record of a PE executable and look up the matching PDB
in a local symbol store laid out as <root>/<name>/<GUID><age>/<name>.
Nothing is downloaded; the store must already hold the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := store
			if root == "" {
				dir, err := a.cfg.SymbolStoreDir()
				if err != nil {
					return err
				}
				root = dir
			}

			id, path, err := locator.Store{Root: root}.Locate(args[0])
			if err != nil {
				a.logger.Error().Err(err).Str("executable", args[0]).Msg("debug database not available")
				return err
			}
			a.logger.Info().Str("identity", id.String()).Str("path", path).Msg("located debug database")

			return a.analyze(cmd, path, func(x *analysis) error {
				return x.full(kernel, export)
			})
		},
	}
	cmd.Flags().BoolVar(&kernel, "kernel", false, "Also resolve the kernel symbol preset")
	cmd.Flags().StringVar(&export, "export", "", "Also export the snapshot document to this file")
	cmd.Flags().StringVar(&store, "store", "", "Symbol store root (default from config)")
	return cmd
}
