package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"openboard/internal/bus"
	"openboard/internal/bus/redisbus"
	"openboard/internal/server"
	"openboard/internal/store"
	"openboard/internal/store/postgres"
	"openboard/internal/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := server.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	b, closeBus, err := openBus(ctx, cfg, logger)
	if err != nil {
		logger.Error("open bus", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeBus()

	srv := server.New(cfg, st, b, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func openStore(ctx context.Context, cfg server.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		st, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres store")
		return st, func() { st.Close() }, nil
	case cfg.DBPath != "":
		st, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite store", slog.String("path", cfg.DBPath))
		return st, func() { st.Close() }, nil
	default:
		logger.Warn("no DATABASE_URL or DB_PATH set, board data will not survive restarts")
		return store.NewMemory(), func() {}, nil
	}
}

func openBus(ctx context.Context, cfg server.Config, logger *slog.Logger) (bus.Bus, func(), error) {
	if cfg.RedisAddr != "" {
		b, err := redisbus.New(ctx, cfg.RedisAddr, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis presence bus", slog.String("addr", cfg.RedisAddr))
		return b, func() { b.Close() }, nil
	}
	return bus.NewMemory(), func() {}, nil
}
