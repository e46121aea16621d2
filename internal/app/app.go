// Package app assembles the application: configuration, durable storage,
// session store, data store, Genkit, the reply pipeline and the sync
// client.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"golang.org/x/time/rate"

	"github.com/nebulachat/nebula/internal/auth"
	"github.com/nebulachat/nebula/internal/bot"
	"github.com/nebulachat/nebula/internal/config"
	"github.com/nebulachat/nebula/internal/graph"
	"github.com/nebulachat/nebula/internal/kv"
	"github.com/nebulachat/nebula/internal/log"
	"github.com/nebulachat/nebula/internal/store"
)

// App is the application container.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	KV       kv.Store
	Sessions *auth.Store
	Store    *store.DB
	Genkit   *genkit.Genkit

	pipeline *bot.Pipeline

	ctx    context.Context //nolint:containedctx // App lifecycle context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles the application. The Gemini credential must already be in
// the environment (config.RequireAPIKey).
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	fileKV, err := kv.NewFile(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening durable storage: %w", err)
	}
	// Storage faults degrade to memory instead of failing operations.
	storage := kv.NewFallback(fileKV, logger.With("component", "kv"))

	sessions, err := auth.New(auth.Config{
		KV:        storage,
		Logger:    logger.With("component", "auth"),
		DemoLogin: cfg.DemoLogin,
	})
	if err != nil {
		return nil, err
	}

	db, err := store.Open(storage, logger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("opening data store: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)

	g := genkit.Init(appCtx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	responder, err := bot.NewGenkitResponder(bot.ResponderConfig{
		Genkit:    g,
		ModelName: cfg.ModelName,
		Logger:    logger.With("component", "bot"),
		Timeout:   cfg.RequestTimeout(),
		Limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateBurst),
	})
	if err != nil {
		cancel()
		return nil, err
	}

	pipeline, err := bot.NewPipeline(responder, db, logger.With("component", "bot"))
	if err != nil {
		cancel()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		KV:       storage,
		Sessions: sessions,
		Store:    db,
		Genkit:   g,
		pipeline: pipeline,
		ctx:      appCtx,
		cancel:   cancel,
	}, nil
}

// Connect builds a sync client bound to the current session. Call after
// authentication; fails with graph.ErrNoSession when no session is
// active. The client does not observe later session changes; reconnect
// after sign-in/sign-out.
func (a *App) Connect() (*graph.Client, error) {
	return graph.New(graph.Config{
		Store:         a.Store,
		Sessions:      a.Sessions,
		Pipeline:      a.pipeline,
		Logger:        a.Logger.With("component", "graph"),
		BackgroundCtx: a.ctx,
		WG:            &a.wg,
	})
}

// Logout signs out and wipes the chat collections, the clean-slate
// policy the demo applied on every logout.
func (a *App) Logout() error {
	if err := a.Sessions.SignOut(); err != nil {
		return err
	}
	return a.Store.Wipe()
}

// Close stops background work and waits for in-flight reply pipelines.
func (a *App) Close() error {
	a.Logger.Info("shutting down")
	a.cancel()
	a.wg.Wait()
	return nil
}
