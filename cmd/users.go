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
	"example.com/notehub/internal/users"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Start the users service",
	Run:   runUsers,
}

func init() {
	rootCmd.AddCommand(usersCmd)
}

func runUsers(cmd *cobra.Command, args []string) {
	log.Info().Msg("Starting users service")

	db, err := database.Connect(cfg.DBSource)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := db.AutoMigrate(&users.User{}); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// A broker outage at startup only degrades event publishing; the
	// HTTP API keeps serving and the client redials on the next publish.
	broker := messaging.NewClient(cfg.BrokerURL)
	if err := broker.EnsureTopology(); err != nil {
		log.Error().Err(err).Msg("Broker unavailable, continuing without event infrastructure")
	}

	service := users.NewService(db, broker)
	router := api.NewRouter()
	users.NewHandler(service, cfg.JWTSecret, cfg.JWTExpiry()).RegisterRoutes(router)

	server := api.NewServer(cfg.UsersAddress, router)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down users service")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := broker.Close(); err != nil {
		log.Error().Err(err).Msg("Broker close failed")
	}
}
