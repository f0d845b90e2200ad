// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package constants

// Build-time variables set via ldflags
var (
	Version   = "v0.0.1-dev" // Set via -X flag during build
	CommitSHA = "unknown"    // Set via -X flag during build
	BuildTime = "unknown"    // Set via -X flag during build
)

const (
	PdudVersion = "v0.0.1"

	// config
	ConfigFileName = "pdud.yml"
	EnvPrefix      = "PDUD"

	// EnvVPDUEndpoint overrides the host:port of the virtual PDU driver
	EnvVPDUEndpoint = "PDUD_VPDU_ENDPOINT"

	// routes
	APIVersion = "v1"
	APIBase    = "/api/" + APIVersion + "/pdud"
	APIPDUs    = APIBase + "/pdus"

	HealthPath  = "/health"
	MetricsPath = "/metrics"
)
