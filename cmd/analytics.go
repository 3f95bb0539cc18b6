package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/notehub/internal/analytics"
	"example.com/notehub/internal/api"
	"example.com/notehub/internal/auth"
	"example.com/notehub/internal/cache"
	"example.com/notehub/internal/database"
	"example.com/notehub/internal/events"
	"example.com/notehub/internal/messaging"
)

const consumerRetryDelay = 5 * time.Second

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Start the analytics service",
	Long: `Starts the analytics HTTP API together with the two event
consumers that project user and note events into per-user statistics.`,
	Run: runAnalytics,
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
}

func runAnalytics(cmd *cobra.Command, args []string) {
	log.Info().Msg("Starting analytics service")

	db, err := database.Connect(cfg.DBSource)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := db.AutoMigrate(
		&analytics.UserEvent{},
		&analytics.NoteEvent{},
		&analytics.UserStatistics{},
	); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// Topology setup failure is non-fatal: the HTTP API still serves and
	// the consumers keep retrying until the broker comes back.
	setup := messaging.NewClient(cfg.BrokerURL)
	if err := setup.EnsureTopology(); err != nil {
		log.Error().Err(err).Msg("Broker unavailable, continuing without event infrastructure")
	}
	if err := setup.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close topology setup connection")
	}

	redisCache, err := cache.New(cache.Options{
		Enabled:  cfg.RedisEnabled,
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	processor := analytics.NewProcessor(db)

	// Each queue gets its own connection so a slow handler on one stream
	// never blocks the other.
	ctx, cancel := context.WithCancel(context.Background())
	consumers := []*messaging.Consumer{
		messaging.NewConsumer(messaging.NewClient(cfg.BrokerURL), events.AnalyticsUsersQueue, processor.HandleEvent),
		messaging.NewConsumer(messaging.NewClient(cfg.BrokerURL), events.AnalyticsNotesQueue, processor.HandleEvent),
	}
	for _, consumer := range consumers {
		go runConsumer(ctx, consumer)
	}

	service := analytics.NewService(db, redisCache)
	router := api.NewRouter()
	analytics.NewHandler(service).RegisterRoutes(router, auth.Middleware(cfg.JWTSecret))

	server := api.NewServer(cfg.AnalyticsAddress, router)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down analytics service")
	cancel()
	for _, consumer := range consumers {
		if err := consumer.Close(); err != nil {
			log.Error().Err(err).Msg("Consumer close failed")
		}
	}
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := redisCache.Close(); err != nil {
		log.Error().Err(err).Msg("Redis close failed")
	}
}

// runConsumer keeps one queue subscription alive, redialing after
// connection loss until shutdown.
func runConsumer(ctx context.Context, consumer *messaging.Consumer) {
	for {
		err := consumer.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("Consumer stopped, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(consumerRetryDelay):
		}
	}
}
