/*
 * Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in>
 * Copyright 2024-2025 The StrataSTOR Authors and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

import "net/http"

const (
	DomainConfig    Domain = "CONFIG"
	DomainServer    Domain = "SERVER"
	DomainCommand   Domain = "CMD"
	DomainLifecycle Domain = "LIFECYCLE"
	DomainPDU       Domain = "PDU"
	DomainMisc      Domain = "MISC"
)

// ErrorCode represents unique error identifiers
type ErrorCode int

// Domain represents the subsystem where the error originated
type Domain string

type DaemonError struct {
	Code       ErrorCode `json:"code"`
	Domain     Domain    `json:"domain"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`

	// Metadata carries call-site context (pdu name, port id, command line)
	// into API responses and structured logs.
	Metadata map[string]string `json:"metadata,omitempty"`

	cause error
}

// Error code ranges:
// 1000-1099: Configuration errors
// 1100-1199: Server errors
// 1300-1399: Command execution
// 1500-1599: Lifecycle management
// 2400-2499: PDU daemon
const (
	// Configuration Errors (1000-1099)
	ConfigNotFound         ErrorCode = 1000 + iota // Config file not found
	ConfigInvalid                                  // Invalid config format
	ConfigLoadFailed                               // Failed to load config
	ConfigWriteFailed                              // Failed to write config
	ConfigValidationFailed                         // Config validation failed
	ConfigMarshalFailed                            // Config serialization failed
)

const (
	// Server Errors (1100-1199)
	ServerStart             ErrorCode = 1100 + iota // Failed to start server
	ServerShutdown                                  // Error during shutdown
	ServerTimeout                                   // Operation timeout
	ServerRequestValidation                         // Request validation failed
	ServerInternalError
	ServerBadRequest   // Bad request error
	ServerUnreachable  // Remote endpoint could not be reached
	ServerUpstreamFail // Remote endpoint answered with an error status
)

const (
	// Command Execution (1300-1399)
	CommandNotFound     ErrorCode = 1300 + iota // Command not found
	CommandExecution                            // Execution failed
	CommandTimeout                              // Command timed out
	CommandInvalidInput                         // Invalid command input
	CommandOutputParse                          // Output parsing failed
)

const (
	// Lifecycle Management (1500-1599)
	LifecyclePID      ErrorCode = 1500 + iota // PID file operation failed
	LifecycleShutdown                         // Shutdown process error
	LifecycleReload                           // Config reload failed
)

type errorDefinition struct {
	message    string
	domain     Domain
	httpStatus int
}

var errorDefinitions = map[ErrorCode]errorDefinition{
	// Configuration errors
	ConfigNotFound: {"Configuration file not found", DomainConfig, http.StatusNotFound},
	ConfigInvalid:  {"Invalid configuration format", DomainConfig, http.StatusBadRequest},
	ConfigLoadFailed: {
		"Failed to load configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigWriteFailed: {
		"Failed to write configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigValidationFailed: {
		"Configuration validation failed",
		DomainConfig,
		http.StatusBadRequest,
	},
	ConfigMarshalFailed: {
		"Failed to serialize configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},

	// Server errors
	ServerStart: {
		"Failed to start server",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerShutdown: {
		"Error during server shutdown",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerTimeout: {
		"Server operation timed out",
		DomainServer,
		http.StatusGatewayTimeout,
	},
	ServerRequestValidation: {"Request validation failed", DomainServer, http.StatusBadRequest},
	ServerInternalError: {
		"Internal server error",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerBadRequest: {
		"Bad request error",
		DomainServer,
		http.StatusBadRequest,
	},
	ServerUnreachable:  {"Remote endpoint unreachable", DomainServer, http.StatusBadGateway},
	ServerUpstreamFail: {"Remote endpoint returned an error", DomainServer, http.StatusBadGateway},

	// Command errors
	CommandNotFound: {"Command not found", DomainCommand, http.StatusNotFound},
	CommandExecution: {
		"Command execution failed",
		DomainCommand,
		http.StatusInternalServerError,
	},
	CommandTimeout:      {"Command timed out", DomainCommand, http.StatusGatewayTimeout},
	CommandInvalidInput: {"Invalid command input", DomainCommand, http.StatusBadRequest},
	CommandOutputParse: {
		"Failed to parse command output",
		DomainCommand,
		http.StatusInternalServerError,
	},

	// Lifecycle errors
	LifecyclePID: {"PID file operation failed", DomainLifecycle, http.StatusInternalServerError},
	LifecycleShutdown: {
		"Shutdown process error",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
	LifecycleReload: {
		"Configuration reload failed",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
}
