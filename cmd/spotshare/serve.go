package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"spotshare/internal/api"
	"spotshare/internal/booking"
	"spotshare/internal/config"
	"spotshare/internal/database"
	"spotshare/internal/events"
	"spotshare/internal/geocode"
	"spotshare/internal/listing"
	"spotshare/internal/metrics"
	"spotshare/internal/payment"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, spots watcher and backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	bus := events.NewEventBus()
	bus.OnError(func(evt events.Event, err error) {
		logger.Error().Err(err).Str("event", evt.Type).Msg("event handler failed")
	})
	if cfg.Payment.WebhookURL != "" {
		payment.NewWebhookClient(cfg.Payment.WebhookURL, cfg.Payment.APIKey, logger).Subscribe(bus)
	} else {
		logger.Warn().Msg("payment.webhook_url not set, approvals are not forwarded")
	}
	arbiter := a.newArbiter(booking.WithPublisher(bus))

	var geocoder geocode.Geocoder
	if cfg.Geocoding.APIKey != "" {
		gc := geocode.NewGoogleClient(cfg.Geocoding.BaseURL, cfg.Geocoding.APIKey)
		if a.rdb != nil && cfg.GeocodeCacheTTL() > 0 {
			gc.UseRedisCache(a.rdb, cfg.GeocodeCacheTTL())
		}
		geocoder = gc
	}
	listingSvc := listing.NewService(a.store, geocoder, logger)

	if cfg.Spots.ConfigPath != "" {
		err := config.WatchSpots(ctx, cfg.Spots.ConfigPath, cfg.SpotsReloadInterval(),
			func(sc *config.SpotsConfig) {
				if err := listingSvc.SyncFromConfig(ctx, sc, a.loc); err != nil {
					logger.Error().Err(err).Msg("sync spots from config")
				}
			},
			func(err error) {
				logger.Error().Err(err).Str("path", cfg.Spots.ConfigPath).Msg("reload spots config")
			})
		if err != nil {
			return fmt.Errorf("load spots config: %w", err)
		}
	}

	if a.db != nil {
		go database.NewBackupService(a.db, cfg.Backup, &logger).Start(ctx)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, a.ready, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	rps, burst := cfg.RateLimit()
	srv := api.NewHTTPServer(api.Options{
		Address:        cfg.Server.Address,
		APIKey:         cfg.Server.APIKey,
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
		Ready:          a.ready,
	}, arbiter, listingSvc, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info().Str("timezone", a.loc.String()).Str("store", cfg.Database.Driver).Msg("spotshare started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown api: %w", err)
	}
	logger.Info().Msg("spotshare stopped")
	return nil
}

func startHealthServer(ctx context.Context, port int, ready api.ReadyFunc, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := ready(ctxPing); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
