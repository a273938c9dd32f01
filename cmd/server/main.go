package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/campaign-dispatch/internal/app"
	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/controller"
	"github.com/unclebandit/campaign-dispatch/internal/handler"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/queue"
)

func main() {
	cfg, err := config.Load()
	log := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	q, closeQueue, err := runQueue(ctx, cfg, a, log)
	if err != nil {
		return err
	}
	defer closeQueue()

	campaignController := &controller.CampaignController{
		Runner:    a.Dispatcher,
		Stats:     a.Stats,
		Publisher: q,
		Log:       log.With().Str("component", "http").Logger(),
	}
	trackingHandler := handler.NewTrackingHandler(a.Counters, cfg.Campaign.BaseLink, log.With().Str("component", "tracking").Logger())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/campaign/run", campaignController.RunCampaign)
	r.Post("/campaign/run/async", campaignController.RunCampaignAsync)
	r.Get("/campaign/stats", campaignController.GetStats)
	r.Get("/t/open.gif", trackingHandler.OpenPixel)
	r.Get("/t/click", trackingHandler.Click)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.AppAddr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// runQueue returns the queue async runs are published to. Without RabbitMQ
// the runs execute in this process.
func runQueue(ctx context.Context, cfg config.Config, a *app.App, log zerolog.Logger) (queue.Queue, func(), error) {
	if cfg.UsesQueue() {
		q, err := queue.DialAMQP(cfg.AMQPURL, cfg.RunQueueMaxRetries, log.With().Str("component", "queue").Logger())
		if err != nil {
			return nil, nil, err
		}
		log.Info().Msg("campaign runs are queued to rabbitmq")
		return q, func() { _ = q.Close() }, nil
	}

	q := queue.NewInMemoryQueue(cfg.RunQueueMaxRetries, log.With().Str("component", "queue").Logger())
	if err := queue.StartCampaignRunSubscriber(ctx, q, a.Dispatcher, log); err != nil {
		return nil, nil, err
	}
	return q, q.Wait, nil
}
