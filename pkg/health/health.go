// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/config"
	"github.com/stratastor/pdud/pkg/httpclient"
	"github.com/stratastor/pdud/pkg/server"
)

type HealthChecker struct {
	Client   *httpclient.Client
	Logger   logger.Logger
	Endpoint string
}

func NewHealthChecker(cfg *config.Config) (*HealthChecker, error) {
	l, err := logger.NewTag(config.NewLoggerConfig(cfg), "health")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	clientConfig := httpclient.NewClientConfig()
	clientConfig.Timeout = 5 * time.Second
	clientConfig.RetryCount = 3
	clientConfig.RetryWaitTime = 2 * time.Second
	clientConfig.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	if err := httpclient.ValidateConfig(clientConfig); err != nil {
		return nil, err
	}

	return &HealthChecker{
		Client:   httpclient.NewClient(clientConfig),
		Logger:   l,
		Endpoint: cfg.Health.Endpoint,
	}, nil
}

// CheckHealth queries the running daemon. A degraded daemon is reported
// without an error, only an unreachable or failing one is an error.
func (hc *HealthChecker) CheckHealth(ctx context.Context) (*server.HealthReport, error) {
	var report server.HealthReport
	_, err := hc.Client.NewRequest(httpclient.RequestConfig{
		Path:    hc.Endpoint,
		Result:  &report,
		Context: ctx,
	}).Get()
	if err != nil {
		hc.Logger.Debug("Health check failed", "err", err)
		return nil, err
	}

	if report.Status != "healthy" {
		hc.Logger.Warn("PDU daemon degraded", "states", report.States)
	}
	return &report, nil
}

func (hc *HealthChecker) Close() error {
	return hc.Client.Close()
}
