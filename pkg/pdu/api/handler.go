// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/pdu"
	"github.com/stratastor/pdud/pkg/pdu/inventory"
)

const (
	defaultPortTimeout = 5 * time.Second
	maxPortTimeout     = 60 * time.Second
)

// APIResponse represents a standardized API response format
type APIResponse struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError represents error information in API responses
type APIError struct {
	Code    int                    `json:"code"`
	Domain  string                 `json:"domain"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// PortUpdateRequest is the body of PATCH .../ports/:port_id. At least one
// field must be set; a reservation change is applied before a state change.
type PortUpdateRequest struct {
	State    *string `json:"state,omitempty"`
	Reserved *bool   `json:"reserved,omitempty"`
}

// PDUHandler serves the PDU inventory over REST
type PDUHandler struct {
	manager *inventory.Manager
	logger  logger.Logger
}

// NewPDUHandler creates a new PDU API handler
func NewPDUHandler(manager *inventory.Manager, logger logger.Logger) *PDUHandler {
	return &PDUHandler{
		manager: manager,
		logger:  logger,
	}
}

// sendSuccess sends a successful response with the standardized format
func (h *PDUHandler) sendSuccess(c *gin.Context, statusCode int, result interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Result:  result,
	})
}

// sendError sends an error response with the standardized format
func (h *PDUHandler) sendError(c *gin.Context, err error) {
	_ = c.Error(err)

	response := APIResponse{
		Success: false,
	}

	var de *errors.DaemonError
	if errors.As(err, &de) {
		h.logger.Debug("PDU API error",
			"error", err,
			"code", de.Code,
			"domain", de.Domain,
			"path", c.Request.URL.Path)

		response.Error = &APIError{
			Code:    int(de.Code),
			Domain:  string(de.Domain),
			Message: de.Message,
			Details: de.Details,
		}

		if len(de.Metadata) > 0 {
			response.Error.Meta = make(map[string]interface{}, len(de.Metadata))
			for k, v := range de.Metadata {
				response.Error.Meta[k] = v
			}
		}

		c.JSON(de.HTTPStatus, response)
		return
	}

	h.logger.Error("PDU API error", "error", err, "path", c.Request.URL.Path)
	response.Error = &APIError{
		Code:    http.StatusInternalServerError,
		Domain:  string(errors.DomainPDU),
		Message: "Internal server error",
		Details: err.Error(),
	}
	c.JSON(http.StatusInternalServerError, response)
}

// ListPDUs handles GET /pdus
func (h *PDUHandler) ListPDUs(c *gin.Context) {
	statuses, err := h.manager.Statuses()
	if err != nil {
		h.sendError(c, err)
		return
	}
	h.sendSuccess(c, http.StatusOK, gin.H{"pdus": statuses})
}

// GetPDU handles GET /pdus/:name
func (h *PDUHandler) GetPDU(c *gin.Context) {
	w, err := h.manager.Get(c.Param("name"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	h.sendSuccess(c, http.StatusOK, w.Status())
}

// GetPort handles GET /pdus/:name/ports/:port_id?timeout=5s
func (h *PDUHandler) GetPort(c *gin.Context) {
	timeout, err := parseTimeout(c.Query("timeout"))
	if err != nil {
		h.sendError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	port, err := h.manager.GetPort(ctx, c.Param("name"), c.Param("port_id"))
	if err != nil {
		h.sendError(c, err)
		return
	}
	h.sendSuccess(c, http.StatusOK, port)
}

// UpdatePort handles PATCH /pdus/:name/ports/:port_id
func (h *PDUHandler) UpdatePort(c *gin.Context) {
	name, portID := c.Param("name"), c.Param("port_id")

	var req PortUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendError(c, errors.Wrap(err, errors.ServerRequestValidation))
		return
	}
	if req.State == nil && req.Reserved == nil {
		h.sendError(c, errors.New(errors.ServerRequestValidation, "one of 'state' or 'reserved' is required"))
		return
	}

	var update inventory.PortUpdate
	if req.State != nil {
		state, err := pdu.ParsePortState(*req.State)
		if err != nil {
			h.sendError(c, err)
			return
		}
		if !state.Controllable() {
			h.sendError(c, errors.New(errors.PDUPortStateInvalid, string(state)).
				WithMetadata("valid_states", "ON,OFF,REBOOT"))
			return
		}
		update.State = &state
	}
	update.Reserved = req.Reserved

	// Powering on may wait out the port's minimum off time
	timeout, err := parseTimeout(c.Query("timeout"))
	if err != nil {
		h.sendError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	port, err := h.manager.UpdatePort(ctx, name, portID, update)
	if err != nil {
		h.sendError(c, err)
		return
	}
	h.sendSuccess(c, http.StatusOK, port)
}

// Sync handles POST /pdus/sync
func (h *PDUHandler) Sync(c *gin.Context) {
	if err := h.manager.Sync(); err != nil {
		h.sendError(c, errors.Wrap(err, errors.PDUInvalidSpec))
		return
	}
	h.sendSuccess(c, http.StatusOK, gin.H{"pdus": h.manager.Names()})
}

func parseTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return defaultPortTimeout, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 || d > maxPortTimeout {
		return 0, errors.New(errors.ServerRequestValidation, "invalid timeout "+raw).
			WithMetadata("max", maxPortTimeout.String())
	}
	return d, nil
}
