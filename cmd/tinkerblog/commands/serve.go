package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/tinkerblog/internal/config"
	"github.com/livetemplate/tinkerblog/internal/server"
)

type serveOptions struct {
	port  int
	host  string
	watch bool
}

func newServeCommand(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve [directory]",
		Short: "Start the development server",
		Example: `  tinkerblog serve                 # Serve current directory
  tinkerblog serve ./myblog --watch # Serve with live reload`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, cfg, err := global.loadSite(args)
			if err != nil {
				return err
			}

			// CLI flags override config
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = opts.port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = opts.host
			}
			if cmd.Flags().Changed("watch") {
				cfg.Features.HotReload = opts.watch
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, dir, cfg, global.logger)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 8080, "port to listen on")
	cmd.Flags().StringVar(&opts.host, "host", "localhost", "host to bind")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", true, "reload browsers when posts or static files change")
	return cmd
}

func runServe(ctx context.Context, dir string, cfg *config.Config, logger *zap.Logger) error {
	srv, err := server.New(dir, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	if err := srv.Discover(); err != nil {
		return fmt.Errorf("failed to discover posts: %w", err)
	}
	for _, post := range srv.Site().Posts() {
		logger.Info("post", zap.String("path", post.URLPath(cfg.PathPrefix)), zap.String("file", post.SourceFile))
	}

	if cfg.Features.HotReload {
		if err := srv.EnableWatch(); err != nil {
			logger.Warn("watch mode disabled", zap.Error(err))
		}
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", zap.String("url", "http://"+addr+cfg.PathPrefix+"/"))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
