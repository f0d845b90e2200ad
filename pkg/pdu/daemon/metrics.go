// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	namespace = "pdud"
	subsystem = "worker"

	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "polls_total",
			Help:      "Total number of port polls by result (success, error)",
		},
		[]string{"pdu", "result"},
	)

	pollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "poll_duration_seconds",
			Help:      "Duration of driver port polls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"pdu"},
	)

	driverConstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "driver_constructions_total",
			Help:      "Total number of driver construction attempts by result",
		},
		[]string{"pdu", "result"},
	)

	driverRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "driver_rebuilds_total",
			Help:      "Total number of drivers discarded after consecutive poll failures",
		},
		[]string{"pdu"},
	)

	registryWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "workers",
			Help:      "Number of PDU workers currently registered",
		},
	)
)
