// Command relay runs the anonymous message relay bot.
//
// Configuration comes from the environment (optionally a .env file); see
// internal/config for the variables. BOT_TOKEN is required.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-anon-relay/internal/app"
	"github.com/tbourn/go-anon-relay/internal/config"
	"github.com/tbourn/go-anon-relay/internal/observability"
	"github.com/tbourn/go-anon-relay/internal/sysutil"
	"github.com/tbourn/go-anon-relay/internal/telegram"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("reading .env")
	}
	if err := run(); err != nil {
		log.Error().Err(err).Msg("relay stopped")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logs := sysutil.SetupLogger(cfg.Log)
	defer logs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(sctx)
		}()
	}

	a, err := app.New(ctx, cfg, telegram.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}
