package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"spotshare/internal/booking"
	"spotshare/internal/config"
	"spotshare/internal/database"
	"spotshare/internal/listing"
	"spotshare/internal/memstore"
)

// backend is what both store implementations provide.
type backend interface {
	booking.Store
	listing.Store
	PingContext(ctx context.Context) error
}

type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	loc    *time.Location
	store  backend
	db     *database.DB
	rdb    *redis.Client
}

func newLogger(level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		logger = logger.Level(lvl)
	}
	return logger
}

// openApp loads .env and the config file, then opens the configured store and Redis.
func openApp(configPath string) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: newLogger(cfg.Log.Level), loc: loc}

	switch cfg.Database.Driver {
	case "memory":
		a.store = memstore.New()
		a.logger.Warn().Msg("using in-memory store, data is lost on exit")
	case "sqlite":
		db, err := database.NewDB(cfg.Database.Path, &a.logger)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		a.db = db
		a.store = db
	default:
		return nil, fmt.Errorf("unknown database.driver %q", cfg.Database.Driver)
	}

	if cfg.Redis.Address != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return a, nil
}

// ready pings the store and, when configured, Redis.
func (a *app) ready(ctx context.Context) error {
	if err := a.store.PingContext(ctx); err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	if a.rdb != nil {
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis not ready: %w", err)
		}
	}
	return nil
}

func (a *app) newArbiter(opts ...booking.Option) *booking.Arbiter {
	base := []booking.Option{
		booking.WithLocation(a.loc),
		booking.WithMaxAttempts(a.cfg.MaxAttempts()),
		booking.WithLogger(a.logger),
	}
	return booking.NewArbiter(a.store, append(base, opts...)...)
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("close db")
		}
	}
}
