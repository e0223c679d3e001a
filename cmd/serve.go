package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dans-labs/transformer/internal/config"
	"github.com/dans-labs/transformer/internal/engine"
	"github.com/dans-labs/transformer/internal/fetch"
	"github.com/dans-labs/transformer/internal/logging"
	"github.com/dans-labs/transformer/internal/pipeline"
	"github.com/dans-labs/transformer/internal/registry"
	"github.com/dans-labs/transformer/internal/server"
	"github.com/dans-labs/transformer/internal/store"
	"github.com/dans-labs/transformer/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transformation service",
	Long: `Start the HTTP service: scan the stylesheet store, compile every
stylesheet into the registry, and serve transformation requests.

Examples:
  transformer serve
  transformer serve --port 8080 --stylesheets ./saved-xsl`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 1745, "Port to serve on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("stylesheets", "./saved-xsl", "Stylesheet store directory")
	serveCmd.Flags().Bool("watch", false, "Reload the registry when the store directory changes")

	bindFlags(serveCmd, map[string]string{
		"port":        "server.port",
		"host":        "server.host",
		"stylesheets": "stylesheets.dir",
		"watch":       "stylesheets.watch",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})

	if err := os.MkdirAll(cfg.Stylesheets.Dir, 0o755); err != nil {
		return fmt.Errorf("creating stylesheet directory: %w", err)
	}

	st, err := store.New(cfg.Stylesheets.Dir)
	if err != nil {
		return fmt.Errorf("opening stylesheet store: %w", err)
	}
	compiler, err := engine.New(cfg.Stylesheets.Dir, cfg.Stylesheets.ScratchDir)
	if err != nil {
		return fmt.Errorf("initializing XSLT engine: %w", err)
	}
	reg := registry.New(compiler, st, logger)
	fetcher := fetch.New(cfg.Fetch.Timeout)
	pipe, err := pipeline.New(reg, fetcher, cfg.Stylesheets.ScratchDir, logger)
	if err != nil {
		return fmt.Errorf("initializing pipeline: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	names, err := reg.ReloadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading stylesheets: %w", err)
	}
	logger.Info(ctx, "stylesheets loaded", "count", len(names))

	if cfg.Stylesheets.Watch {
		w, err := watcher.New(cfg.Stylesheets.Dir, reg, cfg.Stylesheets.WatchDebounce, logger)
		if err != nil {
			return fmt.Errorf("initializing watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
	}

	srv := server.New(cfg, logger, reg, pipe, st, fetcher)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info(ctx, "shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, err, "server shutdown")
		}
		cancel()
	}()

	fmt.Printf("Starting transformer at http://%s\n", cfg.Server.Addr())
	return srv.Start(ctx)
}
