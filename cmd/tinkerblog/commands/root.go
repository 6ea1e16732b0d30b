// Package commands implements the tinkerblog CLI.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog/internal/config"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	debug      bool
	logger     *zap.Logger
}

// NewRootCommand builds the tinkerblog command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "tinkerblog",
		Short: "A markdown blog with live code blocks",
		Long: `tinkerblog renders markdown posts into a blog. Fenced code blocks are
syntax highlighted, and blocks marked "react-live" become editable sandboxes
whose output updates as you type.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.debug)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default is <dir>/"+config.FileName+")")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "verbose development logging")

	root.AddCommand(
		newServeCommand(opts),
		newBuildCommand(opts),
		newHighlightCommand(opts),
		newVersionCommand(version),
	)
	return root
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadSite resolves the site directory from args and loads its config.
func (o *globalOptions) loadSite(args []string) (string, *config.Config, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", nil, fmt.Errorf("directory does not exist: %s", dir)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cfg *config.Config
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadFromDir(absDir)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.debug {
		cfg.Server.Debug = true
	}
	return absDir, cfg, nil
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tinkerblog version %s\n", version)
		},
	}
}
