// Package server provides the public entry point for initializing the
// weft engine server.
//
// This package exists in pkg/ (not internal/) so embedders can compose
// the full server with their own middleware or listeners:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":3001", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/weftworks/weft/internal/api"
	"github.com/weftworks/weft/internal/api/handlers"
	"github.com/weftworks/weft/internal/clockwork"
	"github.com/weftworks/weft/internal/config"
	"github.com/weftworks/weft/internal/engine"
	"github.com/weftworks/weft/internal/feed"
	"github.com/weftworks/weft/internal/fileio"
	"github.com/weftworks/weft/internal/httpclient"
	"github.com/weftworks/weft/internal/llm"
	"github.com/weftworks/weft/internal/mcp"
	"github.com/weftworks/weft/internal/sandbox"
	"github.com/weftworks/weft/internal/schedule"
	"github.com/weftworks/weft/internal/slackclient"
	"github.com/weftworks/weft/internal/store"
	"github.com/weftworks/weft/internal/telemetry"
)

// Server holds the initialized weft engine.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store (PostgreSQL when DATABASE_URL is set,
	// in-memory otherwise).
	Store store.Store

	// Driver runs workflow executions.
	Driver *engine.Driver

	// Scheduler fires trigger-schedule nodes; nil when disabled.
	Scheduler *schedule.Scheduler

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all engine components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the engine with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var dataStore store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		dataStore = pg
		log.Info().Msg("✅ PostgreSQL store initialized")
	} else {
		dataStore = store.NewMemoryStore()
		log.Info().Msg("✅ In-memory store initialized")
	}
	if err := dataStore.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	caps := engine.Capabilities{
		Store:  dataStore,
		HTTP:   httpclient.New(),
		LLM:    llm.New(),
		MCP:    mcp.New(),
		JS:     sandbox.NewJSRunner(),
		Python: sandbox.NewPyRunner(),
		Slack:  slackclient.New(),
		Clock:  clockwork.New(),
		Feeds:  feed.New(),
		Files:  fileio.New(""),
	}

	driver := engine.NewDriver(caps)
	log.Info().Msg("✅ Workflow driver initialized")

	var scheduler *schedule.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = schedule.New(dataStore, driver)
	}

	h := handlers.New(dataStore, driver, caps)
	router := api.NewRouter(h)

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Driver:       driver,
		Scheduler:    scheduler,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
