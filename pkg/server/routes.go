// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/internal/constants"
	"github.com/stratastor/pdud/pkg/pdu/api"
	"github.com/stratastor/pdud/pkg/pdu/daemon"
	"github.com/stratastor/pdud/pkg/pdu/inventory"
)

// HealthReport is the body of GET /health
type HealthReport struct {
	Status  string               `json:"status"`
	Version string               `json:"version"`
	PDUs    int                  `json:"pdus"`
	States  map[daemon.State]int `json:"states"`
}

func registerRoutes(engine *gin.Engine, manager *inventory.Manager, l logger.Logger) {
	engine.GET(constants.HealthPath, healthHandler(manager))
	engine.GET(constants.MetricsPath, gin.WrapH(promhttp.Handler()))

	pduHandler := api.NewPDUHandler(manager, l)

	v1 := engine.Group(constants.APIBase)
	{
		pduHandler.RegisterRoutes(v1)
	}
}

// healthHandler reports "degraded" while any PDU worker is in ERROR. The
// daemon itself keeps serving, so the status code stays 200.
func healthHandler(manager *inventory.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := HealthReport{
			Status:  "healthy",
			Version: constants.Version,
			States:  make(map[daemon.State]int),
		}

		statuses, err := manager.Statuses()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}

		report.PDUs = len(statuses)
		for _, s := range statuses {
			report.States[s.State]++
		}
		if report.States[daemon.StateError] > 0 {
			report.Status = "degraded"
		}

		c.JSON(http.StatusOK, report)
	}
}
