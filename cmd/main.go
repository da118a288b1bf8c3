package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkglog "github.com/slatecast/slatecast/pkg/log"

	"github.com/slatecast/slatecast/internal/capture"
	"github.com/slatecast/slatecast/internal/config"
	"github.com/slatecast/slatecast/internal/document"
	"github.com/slatecast/slatecast/internal/handler"
	"github.com/slatecast/slatecast/internal/host"
	"github.com/slatecast/slatecast/internal/hub"
	"github.com/slatecast/slatecast/internal/service"
	"github.com/slatecast/slatecast/internal/state"
)

const version = "0.4.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "slatecastd"})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Str("version", version).Msg("starting slatecastd")

	// Session state, seeded from the document collaborator.
	store := state.New()
	provider := document.StaticProvider{}
	if err := store.UpdateDocument(func(d *state.DocumentState) {
		*d = provider.Current()
	}); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed session state")
	}

	// Hub carries the connection registry and the broadcast fabric.
	wsHub := hub.NewHub(cfg.WebSocket, cfg.Broadcast)
	go wsHub.Run()

	// Command engine over the shared state.
	engine := service.NewEngine(store, host.LogNotifier{}, wsHub)

	// Capture pipeline over the built-in frame source.
	source := capture.NewTestPatternSource(cfg.Capture)
	pipeline := capture.NewPipeline(source, store, cfg.Capture)

	// Handlers
	wsHandler := handler.NewWSHandler(wsHub, engine, version, cfg.WebSocket)
	hostServer := host.NewServer(engine, pipeline, wsHub, store, cfg.Outputs)

	// Setup HTTP server
	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)
	hostServer.RegisterRoutes(mux)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     pkglog.HTTPMiddleware(*logger)(mux),
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("slatecastd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down slatecastd")

	if err := pipeline.Stop(); err != nil {
		logger.Error().Err(err).Msg("failed to stop capture pipeline")
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("slatecastd stopped")
}
