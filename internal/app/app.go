package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/delivery"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
	"github.com/unclebandit/campaign-dispatch/internal/service"
)

// App holds the dispatch components shared by the server and the worker.
type App struct {
	Config     config.Config
	Counters   repository.CounterRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Quota      *service.QuotaCounter
	Dispatcher *service.Dispatcher
	Stats      *service.StatsAggregator

	closers []func() error
}

// New opens the configured stores and wires the dispatch pipeline.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg}

	var pg *sql.DB
	if cfg.StoreDriver == config.DriverPostgres || cfg.CounterStore == config.DriverPostgres {
		conn, err := db.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		pg = conn
		a.closers = append(a.closers, conn.Close)
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		a.Recipients = &repository.RecipientRepository{DB: pg, Audience: cfg.RecipientAudience}
	default:
		a.Recipients = repository.NewMemoryRecipientRepository(cfg.RecipientAudience)
	}

	switch cfg.CounterStore {
	case config.DriverPostgres:
		a.Counters = &repository.CounterRepository{DB: pg}
	case config.DriverRedis:
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.Counters = repository.NewRedisCounterRepository(client)
	default:
		a.Counters = repository.NewMemoryCounterRepository()
	}

	a.Quota = service.NewQuotaCounter(a.Counters, cfg.DailySendLimit)
	renderer := service.NewTemplateRenderer(cfg.TemplatePath, log.With().Str("component", "template").Logger())
	pair := delivery.NewProviderPair(cfg, renderer, a.Quota, log)

	a.Dispatcher = &service.Dispatcher{
		Quota:           a.Quota,
		Recipients:      a.Recipients,
		Sender:          pair,
		Campaign:        cfg.Campaign,
		TrackingBaseURL: cfg.PublicBaseURL,
		Log:             log.With().Str("component", "dispatch").Logger(),
	}
	a.Stats = &service.StatsAggregator{Counters: a.Counters, DailyLimit: cfg.DailySendLimit}

	log.Info().Str("config", cfg.String()).Msg("dispatch pipeline ready")
	return a, nil
}

func openRedis(ctx context.Context, url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Close releases store connections in reverse order of opening.
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
