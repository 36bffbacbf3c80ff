// Command server runs the conversational finance bot: webhook ingress,
// SQLite-backed conversation and transaction storage, the Anthropic
// tool-calling agent, and the WhatsApp outbound sender.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/finchat/go-finance-bot/internal/agent"
	"github.com/finchat/go-finance-bot/internal/config"
	httpapi "github.com/finchat/go-finance-bot/internal/http"
	"github.com/finchat/go-finance-bot/internal/observability"
	"github.com/finchat/go-finance-bot/internal/repo"
	"github.com/finchat/go-finance-bot/internal/services"
	"github.com/finchat/go-finance-bot/internal/sysutil"
	"github.com/finchat/go-finance-bot/internal/whatsapp"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// defaultRates seeds a fresh database with a usable USD-based snapshot so
// transactions can be registered before a real rate feed runs. Values are
// indicative only and are replaced by the first snapshot update.
var defaultRates = map[string]float64{
	"EUR": 0.92,
	"GBP": 0.78,
	"BRL": 5.40,
	"JPY": 147.0,
	"CHF": 0.86,
	"CAD": 1.36,
	"AUD": 1.52,
	"MXN": 18.6,
	"INR": 88.0,
}

func main() {
	// Best effort; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("database tracing setup failed")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	if err := repo.SeedCategories(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("category seeding failed")
	}
	if err := seedRates(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("exchange-rate seeding failed")
	}

	linker := &services.LinkingService{DB: db, CodeTTL: cfg.Bot.PairingCodeTTL}

	orch := &agent.Orchestrator{
		Model:         agent.NewAnthropicClient(cfg.Model.APIKey),
		Tools:         &agent.Tools{DB: db},
		ModelName:     cfg.Model.Name,
		MaxTokens:     int64(cfg.Model.MaxTokens),
		MaxIterations: cfg.Model.MaxIterations,
		CallTimeout:   cfg.Model.Timeout,
	}

	inbound := &services.InboundService{
		DB:            db,
		Agent:         orch,
		Sender:        whatsapp.New(cfg.Platform),
		Linker:        linker,
		HistoryWindow: cfg.Bot.HistoryWindow,
		RateLimitMax:  cfg.Bot.RateLimitMax,
		RateLimitWin:  cfg.Bot.RateLimitWin,
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, inbound, linker, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	// Let dispatched messages finish their pipeline before exiting.
	inbound.Wait()
	log.Info().Msg("server stopped")
}

// seedRates installs defaultRates when no snapshot exists yet.
func seedRates(ctx context.Context, db *gorm.DB) error {
	if _, err := repo.CurrentSnapshot(ctx, db); err == nil {
		return nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	_, err := repo.SaveSnapshot(ctx, db, "USD", defaultRates)
	return err
}
