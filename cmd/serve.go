package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/kamusis/sloka-search/internal/config"
	"github.com/kamusis/sloka-search/internal/server"
)

var (
	flagServeAddr string
	flagServeWarm bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP",
	Long: `Start the HTTP API. The corpus, embeddings and index are loaded by the first
request that needs them, or at startup with --warm.

Protected routes check the X-API-Key header against SLOKA_API_KEY (environment
or ~/.sloka/.env). Set require_api_key in sloka.yaml to refuse requests when no
key is configured.`,
	Args:        cobra.NoArgs,
	RunE:        runServe,
	Annotations: map[string]string{annotationVerbose: "true"},
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "Listen address (default: listen_addr from config)")
	serveCmd.Flags().BoolVar(&flagServeWarm, "warm", false, "Load everything before accepting requests")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	apiKey, err := config.GetConfigValue("SLOKA_API_KEY")
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, false)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagServeWarm {
		// A failed warm-up leaves the engine degraded; the API still starts and
		// reports the reason on /api/semantic/status.
		if err := engine.EnsureReady(ctx); err != nil {
			logger.Warn("warm-up failed", slog.String("error", err.Error()))
		}
	}

	if !flagDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	if apiKey == "" && !cfg.RequireAPIKey {
		logger.Warn("SLOKA_API_KEY is not set; API key authentication is disabled")
	}
	router := server.NewRouter(engine, server.Options{
		APIKey:        apiKey,
		RequireAPIKey: cfg.RequireAPIKey,
		DefaultTopK:   cfg.DefaultTopK,
		AudioDir:      cfg.AudioDir,
		Logger:        logger,
	})

	addr := flagServeAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	return server.Serve(ctx, addr, router, logger)
}
