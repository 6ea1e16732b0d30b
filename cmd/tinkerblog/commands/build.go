package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog"
	"github.com/livetemplate/tinkerblog/internal/code"
	"github.com/livetemplate/tinkerblog/internal/config"
	"github.com/livetemplate/tinkerblog/internal/highlight"
	"github.com/livetemplate/tinkerblog/internal/sandbox"
	"github.com/livetemplate/tinkerblog/internal/site"
)

func newBuildCommand(global *globalOptions) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "build [directory]",
		Short: "Export the blog as static HTML",
		Long: `Render every post, the index and the 404 page to plain HTML files.
Live blocks keep their first evaluation as a fixed preview.`,
		Example: `  tinkerblog build                 # Export to ./public
  tinkerblog build ./myblog -o dist`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, cfg, err := global.loadSite(args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("out") {
				outDir = cfg.OutputDir
			}
			if !filepath.IsAbs(outDir) {
				outDir = filepath.Join(dir, outDir)
			}

			count, err := runBuild(cmd.Context(), dir, outDir, cfg, global.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d posts to %s\n", count, outDir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "public", "output directory (default is output_dir from config)")
	return cmd
}

func runBuild(ctx context.Context, dir, outDir string, cfg *config.Config, logger *zap.Logger) (int, error) {
	manager := site.New(dir, cfg, logger)
	if err := manager.Discover(); err != nil {
		return 0, fmt.Errorf("failed to discover posts: %w", err)
	}

	h, err := highlight.New(cfg.Highlight.Theme)
	if err != nil {
		return 0, err
	}
	sandboxes, closeSandboxes := sandbox.NewFromConfig(cfg.Sandbox, logger)
	defer closeSandboxes()

	renderer := code.NewRenderer(h, sandboxes, nil, logger)
	widget, stopBio := site.NewBioWidget(cfg, manager.StaticDir(), logger)
	defer stopBio()

	pages := site.NewPages(cfg, manager, tinkerblog.NewMarkdown(renderer), widget, site.PageOptions{}, logger)
	if err := pages.Export(ctx, outDir); err != nil {
		return 0, fmt.Errorf("failed to export site: %w", err)
	}
	return len(manager.Posts()), nil
}
