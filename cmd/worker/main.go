package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/campaign-dispatch/internal/app"
	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
)

func main() {
	cfg, err := config.Load()
	log := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if !cfg.UsesQueue() {
		log.Fatal().Msg("AMQP_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build dispatch pipeline")
	}
	defer a.Close()

	q, err := queue.DialAMQP(cfg.AMQPURL, cfg.RunQueueMaxRetries, log.With().Str("component", "queue").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to rabbitmq")
	}
	defer q.Close()

	if err := queue.StartCampaignRunSubscriber(ctx, q, a.Dispatcher, log); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to campaign runs")
	}

	log.Info().Str("topic", queue.TopicCampaignRuns).Msg("worker running, waiting for messages")
	<-ctx.Done()
	log.Info().Msg("worker stopped")
}
