// Package server exposes the search engine over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kamusis/sloka-search/internal/search"
)

// Options configures the HTTP layer.
type Options struct {
	// APIKey is the expected X-API-Key value. Empty disables the check unless
	// RequireAPIKey is set, in which case protected routes answer 500.
	APIKey        string
	RequireAPIKey bool
	DefaultTopK   int
	// AudioDir holds recitations as <mandala>/Hymn_<h>/Stanza_<s>.mp3.
	AudioDir string
	Logger   *slog.Logger
}

// NewRouter builds the gin router for engine.
func NewRouter(engine *search.Engine, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 10
	}
	h := &handler{engine: engine, defaultTopK: opts.DefaultTopK, audioDir: opts.AudioDir, log: opts.Logger}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(opts.Logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-API-Key", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/", h.home)
	router.GET("/healthz", h.health)
	router.GET("/api/semantic/status", h.status)

	protected := router.Group("/api")
	protected.Use(apiKeyAuth(opts.APIKey, opts.RequireAPIKey))
	{
		protected.POST("/semantic/search", h.search)
		protected.GET("/semantic/random", h.random)
		protected.POST("/semantic/reload", h.reload)
		protected.GET("/index/:mandala", h.partition)
		protected.GET("/sloka/:mandala/:hymn/:stanza", h.verse)
		protected.GET("/audio/:mandala/:hymn/:stanza", h.audio)
	}
	return router
}

// Serve runs an HTTP server on addr until ctx is canceled, then shuts it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
