// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"maps"
	"net/http"
)

// PDU Daemon Error Codes (2400-2499)
const (
	// Lookup Errors (2400-2409)
	PDUNotFound         ErrorCode = 2400 + iota // PDU not configured
	PDUPortNotFound                             // Port not present in the latest snapshot
	PDUPortReserved                             // Port is reserved
	PDUPortStateInvalid                         // Unknown port state requested
	PDUNotReady                                 // Worker has not completed a poll yet
	PDUPortMinOffTime                           // Port was powered off too recently
)

const (
	// Driver Errors (2410-2419)
	PDUDriverNotFound        ErrorCode = 2410 + iota // No driver registered for model
	PDUDriverConstructFailed                         // Driver rejected its configuration
	PDUDriverUnavailable                             // No live driver instance
	PDUPollFailed                                    // Driver failed to list ports
	PDUControlFailed                                 // Driver failed to change a port
)

const (
	// Worker Errors (2420-2429)
	PDUInvalidSpec   ErrorCode = 2420 + iota // Worker spec failed validation
	PDUWorkerStopped                         // Worker already stopped
)

func init() {
	pduErrorDefinitions := map[ErrorCode]errorDefinition{
		PDUNotFound: {
			"PDU not found",
			DomainPDU,
			http.StatusNotFound,
		},
		PDUPortNotFound: {
			"PDU port not found",
			DomainPDU,
			http.StatusNotFound,
		},
		PDUPortReserved: {
			"PDU port is reserved",
			DomainPDU,
			http.StatusConflict,
		},
		PDUPortStateInvalid: {
			"Invalid PDU port state",
			DomainPDU,
			http.StatusBadRequest,
		},
		PDUNotReady: {
			"PDU has not been polled successfully yet",
			DomainPDU,
			http.StatusServiceUnavailable,
		},
		PDUPortMinOffTime: {
			"PDU port has not been off for its minimum off time",
			DomainPDU,
			http.StatusConflict,
		},
		PDUDriverNotFound: {
			"PDU driver not found",
			DomainPDU,
			http.StatusBadRequest,
		},
		PDUDriverConstructFailed: {
			"Failed to construct PDU driver",
			DomainPDU,
			http.StatusBadGateway,
		},
		PDUDriverUnavailable: {
			"PDU driver unavailable",
			DomainPDU,
			http.StatusServiceUnavailable,
		},
		PDUPollFailed: {
			"Failed to poll PDU ports",
			DomainPDU,
			http.StatusBadGateway,
		},
		PDUControlFailed: {
			"Failed to change PDU port state",
			DomainPDU,
			http.StatusBadGateway,
		},
		PDUInvalidSpec: {
			"Invalid PDU specification",
			DomainPDU,
			http.StatusBadRequest,
		},
		PDUWorkerStopped: {
			"PDU worker stopped",
			DomainPDU,
			http.StatusServiceUnavailable,
		},
	}

	maps.Copy(errorDefinitions, pduErrorDefinitions)
}
