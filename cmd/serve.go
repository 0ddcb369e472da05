package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/supportdesk/conversation-engine/docs"
	"github.com/supportdesk/conversation-engine/internal/config"
	"github.com/supportdesk/conversation-engine/internal/events"
	httpapi "github.com/supportdesk/conversation-engine/internal/http"
	"github.com/supportdesk/conversation-engine/internal/observability"
	"github.com/supportdesk/conversation-engine/internal/repo"
	"github.com/supportdesk/conversation-engine/internal/services"
	"github.com/supportdesk/conversation-engine/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background abandonment sweeper",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
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
		return fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	producer := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	// Background sweeper: every instance runs one; the per-session
	// compare-and-swap keeps concurrent sweepers safe.
	sweeper := services.NewSweeper(db, producer, log.Logger,
		cfg.Chat.AbandonAfter, cfg.Chat.SweepInterval, cfg.Chat.SweepSkipAssigned)
	go sweeper.Run(ctx)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, producer, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("supportd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
