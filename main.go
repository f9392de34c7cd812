// main.go
//
// Game store server entrypoint.
//   - Loads .env + environment (internal/config).
//   - Opens the configured GameStore (memory or SQLite).
//   - Serves the HTTP + websocket API until SIGINT/SIGTERM.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/snakesladders/internal/config"
	"github.com/robalobadob/snakesladders/internal/httpserver"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	config.SetLogLevel(cfg.LogLevel)
	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set; writes are not authorized per player")
	}

	st, closer, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()

	srv := httpserver.New(st, cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("driver", cfg.StoreDriver).Msg("starting snakes server")
		errc <- srv.Start(":" + cfg.Port)
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server exited")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}
}
