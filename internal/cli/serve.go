package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/RishiKendai/contestguard/internal/api"
	"github.com/RishiKendai/contestguard/internal/infra/mongo"
	"github.com/RishiKendai/contestguard/internal/repository"
	"github.com/RishiKendai/contestguard/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the results API and consume queued run requests",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting contestguard server")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return fmt.Errorf("failed to create MongoDB client: %w", err)
	}
	defer mongoClient.Close(context.Background())

	mongoRepo := repository.NewMongoRepository(mongoClient)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	router, handler := api.SetupRoutes(ctx, cfg, api.Dependencies{
		Contests: repository.NewContestsRepository(mongoRepo),
		Records:  repository.NewResultsRepository(mongoRepo),
		Runner:   a.runner,
		Status:   a.status,
	})

	consumerDone := make(chan struct{})
	if a.redis != nil {
		consumer := stream.NewConsumer(
			a.redis.Client,
			cfg.RedisStreamKey,
			cfg.RedisConsumerGroup,
			consumerName(),
			a.runner,
			stream.NewRetryHandler(a.redis.Client, cfg.RedisDeadLetterKey),
			cfg.StreamRetentionDuration,
		)
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Redis consumer error")
			}
		}()
		log.Info().Msg("Redis consumer started")
	} else {
		close(consumerDone)
		log.Info().Msg("REDIS_HOST not set, run requests are only accepted over HTTP")
	}

	srv, srvErr := api.StartServer("api", router, cfg.ServerPort)
	metricsSrv, metricsErr := api.StartMetricsServer(cfg.MetricsPort)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
	case err, ok := <-srvErr:
		if ok {
			runErr = err
		}
	case err, ok := <-metricsErr:
		if ok {
			runErr = err
		}
	}

	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down API server")
	}
	if err := api.ShutdownServer(metricsSrv, 5*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down metrics server")
	}

	cancel()
	<-consumerDone
	handler.Wait()

	log.Info().Msg("Shutdown complete")
	return runErr
}

func consumerName() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
}
