package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nebulachat/nebula/internal/auth"
	"github.com/nebulachat/nebula/internal/config"
	"github.com/nebulachat/nebula/internal/kv"
	"github.com/nebulachat/nebula/internal/log"
	"github.com/nebulachat/nebula/internal/store"
)

// initLogger builds the process logger. DEBUG in the environment switches
// to debug level.
func initLogger() log.Logger {
	cfg := log.Config{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		cfg.Level = slog.LevelDebug
	}
	return log.NewWithWriter(os.Stderr, cfg)
}

// openLocal opens the configuration, durable storage, session store and
// data store. Commands that never call the model (signup, login, logout,
// chats) use this instead of the full application container, so they work
// without a Gemini API key.
func openLocal() (*config.Config, *auth.Store, *store.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := initLogger()

	fileKV, err := kv.NewFile(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening durable storage: %w", err)
	}
	storage := kv.NewFallback(fileKV, logger.With("component", "kv"))

	sessions, err := auth.New(auth.Config{
		KV:        storage,
		Logger:    logger.With("component", "auth"),
		DemoLogin: cfg.DemoLogin,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := store.Open(storage, logger.With("component", "store"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening data store: %w", err)
	}

	return cfg, sessions, db, nil
}
