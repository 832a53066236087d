// Package cli implements the pdbscope command tree.
package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jtang613/pdbscope/internal/config"
	"github.com/jtang613/pdbscope/internal/index"
	"github.com/jtang613/pdbscope/internal/logging"
	"github.com/jtang613/pdbscope/internal/safe"
	"github.com/jtang613/pdbscope/internal/snapshot"
	"github.com/jtang613/pdbscope/pkg/pdb"
	"github.com/jtang613/pdbscope/pkg/provider"
	"github.com/jtang613/pdbscope/pkg/version"
)

// app carries state shared by every command: the provider, the loaded
// configuration and the logger built from it.
type app struct {
	prov provider.Provider

	configPath string
	logLevel   string
	noColor    bool

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCmd returns the pdbscope command tree backed by the native PDB
// reader.
func NewRootCmd() *cobra.Command {
	return newRootCmd(pdb.Provider{})
}

func newRootCmd(prov provider.Provider) *cobra.Command {
	a := &app{prov: prov, logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "pdbscope",
		Short: "pdbscope - symbol and structure analysis for PDB debug databases",
		Long: `Resolve symbols to addresses, inspect structure layouts, search symbols
by pattern and compare two builds of the same program, straight from its
PDB debug database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default: $PDBSCOPE_CONFIG or the user config dir)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		newAnalyzeCmd(a),
		newInfoCmd(a),
		newSymbolsCmd(a),
		newLookupCmd(a),
		newStructCmd(a),
		newMemberCmd(a),
		newSearchCmd(a),
		newStructsCmd(a),
		newExportCmd(a),
		newPerfCmd(a),
		newDiffCmd(a),
		newBatchCmd(a),
		newAutoCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(config.ResolvePath(a.configPath))
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	lc := logging.DefaultConfig()
	lc.Level = cfg.Log.Level
	lc.Pretty = cfg.Log.Pretty
	lc.NoColor = a.noColor
	lc.Output = cmd.ErrOrStderr()
	a.logger = logging.NewWithComponent(lc, cmd.Name())
	return nil
}

func (a *app) useColor() bool {
	return !a.noColor && !color.NoColor
}

func (a *app) indexOptions() []index.Option {
	return []index.Option{index.WithLimits(a.cfg.Limits), index.WithLogger(a.logger)}
}

// builder returns a snapshot builder using the configured disk cache. A cache
// that cannot be opened is logged and skipped.
func (a *app) builder() *snapshot.Builder {
	b := &snapshot.Builder{Provider: a.prov, Limits: a.cfg.Limits, Logger: a.logger}
	if dir := a.cfg.Cache.Dir; dir != "" {
		cache, err := snapshot.OpenDiskCache(dir)
		if err != nil {
			a.logger.Warn().Err(err).Str("dir", dir).Msg("snapshot cache disabled")
		} else {
			b.Cache = cache
		}
	}
	return b
}

// withSession opens path, runs fn and closes the session.
func (a *app) withSession(path string, fn func(provider.Session) error) error {
	s, err := a.prov.Open(path)
	if err != nil {
		return err
	}
	defer safe.Close(s, a.logger.With().Str("path", path).Logger(), "failed to close session")
	return fn(s)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("pdbscope version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command. Cancelling ctx stops batch scheduling.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
