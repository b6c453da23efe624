// Package app assembles the relay from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-relay/internal/bot"
	"github.com/tbourn/go-anon-relay/internal/config"
	httpapi "github.com/tbourn/go-anon-relay/internal/http"
	"github.com/tbourn/go-anon-relay/internal/http/handlers"
	"github.com/tbourn/go-anon-relay/internal/repo"
	"github.com/tbourn/go-anon-relay/internal/services"
	"github.com/tbourn/go-anon-relay/internal/session"
	"github.com/tbourn/go-anon-relay/internal/sysutil"
	"github.com/tbourn/go-anon-relay/internal/telegram"
)

// shutdownTimeout bounds HTTP drain and webhook removal.
const shutdownTimeout = 10 * time.Second

// App is the assembled relay. Fields are exported for tests and main.
type App struct {
	Config     config.Config
	DB         *gorm.DB
	Sessions   session.Store
	Client     *telegram.Client
	Handler    *bot.Handler
	Dispatcher *telegram.Dispatcher
	Server     *http.Server
	BotName    string

	closers []func() error
}

// New opens storage and sessions, connects to the Bot API and builds the
// handler graph. On error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, opts telegram.Options) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.DB, err = openDB(cfg.Storage); err != nil {
		return nil, err
	}
	if sqlDB, derr := a.DB.DB(); derr == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	if a.Sessions, err = a.openSessions(ctx, cfg.Sessions); err != nil {
		return nil, err
	}

	if opts.RPS == 0 {
		opts.RPS, opts.Burst = cfg.Bot.OutboundRPS, cfg.Bot.OutboundBurst
	}
	if a.Client, err = telegram.New(cfg.Bot.Token, opts); err != nil {
		return nil, err
	}
	a.BotName = sysutil.FirstNonEmpty(a.Client.Username(), cfg.Bot.Username)

	store := repo.Store{}
	links := services.NewLinkService(a.DB, store, cfg.Bot.LinkBaseURL, a.BotName)
	relay := services.NewRelayService(a.DB, store, store, links, a.Sessions, a.Client)
	audit := services.NewAuditService(a.DB, store, cfg.Bot.AdminID, cfg.Bot.AuditLimit)

	a.Handler = &bot.Handler{Links: links, Relay: relay, Audit: audit, Out: a.Client, AuditLimit: cfg.Bot.AuditLimit}
	a.Dispatcher = &telegram.Dispatcher{Handler: a.Handler}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, handlers.New(a.Dispatcher, cfg.Bot.WebhookSecret, a.BotName))
	a.Server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	return a, nil
}

func openDB(cfg config.StorageConfig) (*gorm.DB, error) {
	db, err := repo.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if err := repo.Instrument(db); err != nil {
		return nil, fmt.Errorf("instrument database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func (a *App) openSessions(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	if cfg.Backend != "redis" {
		return session.NewMemoryStore(cfg.TTL), nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.closers = append(a.closers, rdb.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	return session.NewRedisStore(rdb, cfg.TTL), nil
}

// Run performs the startup calls, serves HTTP and, in polling mode, polls
// for updates until ctx is canceled. It then drains the server and, in
// webhook mode, removes the webhook.
func (a *App) Run(ctx context.Context) error {
	mode, err := a.startup(ctx)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Server.Addr, err)
	}
	return a.serve(ctx, ln, mode)
}

func (a *App) startup(ctx context.Context) (string, error) {
	if err := a.Client.SetCommands(ctx); err != nil {
		log.Warn().Err(err).Msg("set bot commands failed")
	}

	mode := "polling"
	if a.Config.Bot.WebhookMode() {
		mode = "webhook"
		if err := a.Client.SetWebhook(ctx, a.Config.Bot.WebhookURL(), a.Config.Bot.WebhookSecret); err != nil {
			return "", fmt.Errorf("set webhook: %w", err)
		}
		log.Info().Str("url", a.Config.Bot.WebhookURL()).Msg("webhook registered")
	} else if err := a.Client.DeleteWebhook(ctx); err != nil {
		return "", fmt.Errorf("delete webhook: %w", err)
	}

	if a.Config.Bot.NotifyAdmin && a.Config.Bot.AdminID != 0 {
		msg := fmt.Sprintf("🤖 <b>Bot @%s started</b>\nMode: %s\nTime: %s",
			a.BotName, mode, time.Now().Format("2006-01-02 15:04:05"))
		if err := a.Client.SendText(ctx, a.Config.Bot.AdminID, msg); err != nil {
			log.Warn().Err(err).Msg("admin start notice failed")
		}
	}
	log.Info().Str("bot", a.BotName).Str("mode", mode).Str("addr", a.Server.Addr).Msg("relay started")
	return mode, nil
}

func (a *App) serve(ctx context.Context, ln net.Listener, mode string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var wg sync.WaitGroup
	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	if mode == "polling" {
		poller := &telegram.Poller{Source: a.Client, Dispatcher: a.Dispatcher, Timeout: a.Config.Bot.PollTimeout}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = poller.Run(pollCtx)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("http server failed")
	}
	stopPolling()
	// getUpdates cannot be interrupted; give it one poll interval to return.
	if !waitTimeout(&wg, a.Config.Bot.PollTimeout+shutdownTimeout) {
		log.Warn().Msg("poller did not stop in time")
	}

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if mode == "webhook" {
		if err := a.Client.DeleteWebhook(shCtx); err != nil {
			log.Warn().Err(err).Msg("delete webhook on shutdown failed")
		}
	}
	return runErr
}

// Close releases the database and session connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
