package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/supportdesk/conversation-engine/internal/config"
	"github.com/supportdesk/conversation-engine/internal/events"
	"github.com/supportdesk/conversation-engine/internal/repo"
	"github.com/supportdesk/conversation-engine/internal/services"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single abandonment sweep pass and exit",
	Long: "Marks active chat sessions idle past CHAT_ABANDON_AFTER as abandoned. " +
		"Safe to run while servers are up; each session is claimed with a " +
		"compare-and-swap so concurrent sweepers never double-process.",
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	producer := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()

	sweeper := services.NewSweeper(db, producer, log.Logger,
		cfg.Chat.AbandonAfter, cfg.Chat.SweepInterval, cfg.Chat.SweepSkipAssigned)

	swept, err := sweeper.RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	log.Info().Int("swept", swept).Msg("sweep complete")
	return nil
}
