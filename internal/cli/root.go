// Package cli implements the devsync command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"devsync/internal/config"
)

// Version is stamped at build time with -ldflags "-X devsync/internal/cli.Version=...".
var Version = "dev"

// RootOptions holds global flags and the state PersistentPreRunE prepares for
// subcommands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	Config config.Config
	Log    *zap.Logger
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "devsync",
		Short: "Room presence and code sync coordinator",
		Long: `devsync coordinates collaborative editing rooms: it tracks who is in each
room, keeps the room's code and language, and relays edits, typing and cursor
presence between participants over WebSockets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.Log, opts.Verbose)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			opts.Config, opts.Log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Log != nil {
				_ = opts.Log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewProbeCommand(opts))
	cmd.AddCommand(NewDiscoverCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

func newLogger(lc config.LogConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zc.Level = level
	return zc.Build()
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the devsync version",
		Args:  cobra.NoArgs,
		// No config or logger needed.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "devsync", Version)
		},
	}
}
