package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/notehub/internal/api"
	"example.com/notehub/internal/database"
	"example.com/notehub/internal/messaging"
	"example.com/notehub/internal/notes"
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Start the notes service",
	Run:   runNotes,
}

func init() {
	rootCmd.AddCommand(notesCmd)
}

func runNotes(cmd *cobra.Command, args []string) {
	log.Info().Msg("Starting notes service")

	db, err := database.Connect(cfg.DBSource)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := db.AutoMigrate(&notes.Note{}); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	broker := messaging.NewClient(cfg.BrokerURL)
	if err := broker.EnsureTopology(); err != nil {
		log.Error().Err(err).Msg("Broker unavailable, continuing without event infrastructure")
	}

	service := notes.NewService(db, broker)
	router := api.NewRouter()
	notes.NewHandler(service, cfg.JWTSecret).RegisterRoutes(router)

	server := api.NewServer(cfg.NotesAddress, router)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down notes service")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := broker.Close(); err != nil {
		log.Error().Err(err).Msg("Broker close failed")
	}
}
