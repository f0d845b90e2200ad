// Copyright 2024 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Gist of what's happening:
//
// We're using Gin's Engine (gin.New()) which provides:
// - A router with middleware support
// - HTTP handler implementation (ServeHTTP)
// - Recovery middleware for handling panics
// And then we add the request logging middleware on top.
//
// The engine is assigned to http.Server.Handler, so Shutdown() gives us a
// graceful stop that integrates with the lifecycle package's signal handling.

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/config"
	"github.com/stratastor/pdud/pkg/pdu/inventory"
)

var srv *http.Server

// NewEngine builds the gin engine serving health, metrics and the PDU API
func NewEngine(cfg *config.Config, manager *inventory.Manager, l logger.Logger) *gin.Engine {
	// Switch to debug mode for non-production environments
	switch cfg.Environment {
	case "prod", "production":
		gin.SetMode(gin.ReleaseMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware(l))

	registerRoutes(engine, manager, l)

	return engine
}

// Start serves the API on the configured port until ctx is cancelled
func Start(ctx context.Context, manager *inventory.Manager) error {
	cfg := config.GetConfig()
	l, err := logger.NewTag(config.NewLoggerConfig(cfg), "server")
	if err != nil {
		return err
	}

	srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: NewEngine(cfg, manager, l),
	}

	// Channel to catch server startup errors
	errChan := make(chan error, 1)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			if err != http.ErrServerClosed {
				errChan <- err
			}
		}
	}()

	l.Info("PDU daemon listening", "addr", srv.Addr)

	// Wait for either server error or context cancellation
	select {
	case err := <-errChan:
		return fmt.Errorf("server startup failed: %w", err)
	case <-ctx.Done():
		return Shutdown(context.Background())
	}
}

func Shutdown(ctx context.Context) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
