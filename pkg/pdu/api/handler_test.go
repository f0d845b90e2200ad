// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/pdu"
	"github.com/stratastor/pdud/pkg/pdu/daemon"
	"github.com/stratastor/pdud/pkg/pdu/drivers/dummy"
	"github.com/stratastor/pdud/pkg/pdu/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pdusURI = "/api/v1/pdud/pdus"

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *APIError       `json:"error"`
}

func setupPDUTestRouter(t *testing.T) (*gin.Engine, *inventory.Manager) {
	t.Helper()

	l, err := logger.NewTag(logger.Config{LogLevel: "error"}, "pdu.api.test")
	require.NoError(t, err)

	reg, err := daemon.NewRegistry(daemon.Options{
		PollingInterval:     20 * time.Millisecond,
		ConstructionBackoff: 20 * time.Millisecond,
		Tick:                5 * time.Millisecond,
	}, l)
	require.NoError(t, err)

	specs := []daemon.Spec{{
		Model:           dummy.Model,
		Name:            "rack-a",
		Config:          pdu.Config{"ports": []interface{}{"web", "db", "cache"}},
		ReservedPortIDs: []string{"2"},
	}}
	m, err := inventory.NewManager(l, reg, specs, inventory.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop() })

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())

	NewPDUHandler(m, l).RegisterRoutes(router.Group("/api/v1/pdud"))

	return router, m
}

func do(t *testing.T, router *gin.Engine, method, uri string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, uri, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func decodePort(t *testing.T, env envelope) pdu.Port {
	t.Helper()
	var port pdu.Port
	require.NoError(t, json.Unmarshal(env.Result, &port))
	return port
}

func TestPDUAPI(t *testing.T) {
	router, m := setupPDUTestRouter(t)

	t.Run("ListPDUs", func(t *testing.T) {
		w, env := do(t, router, http.MethodGet, pdusURI, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, env.Success)

		var result struct {
			PDUs map[string]daemon.Status `json:"pdus"`
		}
		require.NoError(t, json.Unmarshal(env.Result, &result))
		require.Contains(t, result.PDUs, "rack-a")
		assert.Equal(t, dummy.Model, result.PDUs["rack-a"].Model)
	})

	t.Run("GetPDUNotFound", func(t *testing.T) {
		w, env := do(t, router, http.MethodGet, pdusURI+"/rack-z", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.False(t, env.Success)
		require.NotNil(t, env.Error)
		assert.Equal(t, int(errors.PDUNotFound), env.Error.Code)
		assert.Equal(t, string(errors.DomainPDU), env.Error.Domain)
	})

	t.Run("GetPort", func(t *testing.T) {
		w, env := do(t, router, http.MethodGet, pdusURI+"/rack-a/ports/1?timeout=2s", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var port pdu.Port
		require.NoError(t, json.Unmarshal(env.Result, &port))
		assert.Equal(t, "1", port.ID)
		assert.Equal(t, "db", port.Label)
		assert.Equal(t, pdu.PortStateOff, port.State)
	})

	t.Run("GetPortUnknown", func(t *testing.T) {
		w, env := do(t, router, http.MethodGet, pdusURI+"/rack-a/ports/42?timeout=2s", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, int(errors.PDUPortNotFound), env.Error.Code)
	})

	t.Run("GetPortBadTimeout", func(t *testing.T) {
		for _, timeout := range []string{"soon", "-1s", "5m"} {
			w, env := do(t, router, http.MethodGet, pdusURI+"/rack-a/ports/1?timeout="+timeout, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, timeout)
			require.NotNil(t, env.Error)
			assert.Equal(t, int(errors.ServerRequestValidation), env.Error.Code)
		}
	})

	t.Run("SetPortState", func(t *testing.T) {
		// Every response reflects the change it made
		for i, state := range []string{"on", "off", "on", "off", "reboot"} {
			w, env := do(t, router, http.MethodPatch, pdusURI+"/rack-a/ports/0", gin.H{"state": state})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			want := pdu.PortStateOn
			if state == "off" {
				want = pdu.PortStateOff
			}
			port := decodePort(t, env)
			assert.Equal(t, "0", port.ID)
			assert.Equal(t, want, port.State, "request %d: %s", i, state)
		}

		_, env := do(t, router, http.MethodGet, pdusURI+"/rack-a/ports/0", nil)
		port := decodePort(t, env)
		assert.Equal(t, pdu.PortStateOn, port.State)
		require.NotNil(t, port.LastShutdown)
	})

	t.Run("SetReservedPort", func(t *testing.T) {
		w, env := do(t, router, http.MethodPatch, pdusURI+"/rack-a/ports/2", gin.H{"state": "OFF"})
		assert.Equal(t, http.StatusConflict, w.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, int(errors.PDUPortReserved), env.Error.Code)
	})

	t.Run("InvalidUpdates", func(t *testing.T) {
		tests := []struct {
			name string
			body interface{}
			code errors.ErrorCode
		}{
			{"empty body", gin.H{}, errors.ServerRequestValidation},
			{"unknown state", gin.H{"state": "dim"}, errors.PDUPortStateInvalid},
			{"unknown is not controllable", gin.H{"state": "unknown"}, errors.PDUPortStateInvalid},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w, env := do(t, router, http.MethodPatch, pdusURI+"/rack-a/ports/1", tt.body)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				require.NotNil(t, env.Error)
				assert.Equal(t, int(tt.code), env.Error.Code)
			})
		}
	})

	t.Run("Reserve", func(t *testing.T) {
		w, env := do(t, router, http.MethodPatch, pdusURI+"/rack-a/ports/1", gin.H{"reserved": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var port pdu.Port
		require.NoError(t, json.Unmarshal(env.Result, &port))
		assert.True(t, port.Reserved)

		w, _ = do(t, router, http.MethodPatch, pdusURI+"/rack-a/ports/1", gin.H{"state": "REBOOT"})
		assert.Equal(t, http.StatusConflict, w.Code)

		// Unreserve and power on in one request
		w, env = do(t, router, http.MethodPatch, pdusURI+"/rack-a/ports/1",
			gin.H{"reserved": false, "state": "on"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		port = decodePort(t, env)
		assert.False(t, port.Reserved)
		assert.Equal(t, pdu.PortStateOn, port.State)
	})

	t.Run("ReserveAndSetState", func(t *testing.T) {
		w, env := do(t, router, http.MethodPatch, pdusURI+"/rack-a/ports/0",
			gin.H{"reserved": true, "state": "off"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		port := decodePort(t, env)
		assert.True(t, port.Reserved)
		assert.Equal(t, pdu.PortStateOff, port.State)

		specs := m.Specs()
		require.Len(t, specs, 1)
		assert.Equal(t, []string{"0", "2"}, specs[0].ReservedPortIDs)

		// Reserved without a reservation field in the body
		w, _ = do(t, router, http.MethodPatch, pdusURI+"/rack-a/ports/0", gin.H{"state": "on"})
		assert.Equal(t, http.StatusConflict, w.Code)

		w, _ = do(t, router, http.MethodPatch, pdusURI+"/rack-a/ports/0", gin.H{"reserved": false})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("RejectedCombinedUpdateChangesNothing", func(t *testing.T) {
		before := m.Specs()

		tests := []struct {
			name   string
			portID string
			body   interface{}
			status int
		}{
			{"unknown port", "42", gin.H{"reserved": true, "state": "on"}, http.StatusNotFound},
			{"unknown state", "1", gin.H{"reserved": true, "state": "dim"}, http.StatusBadRequest},
			{"not controllable", "1", gin.H{"reserved": true, "state": "unknown"}, http.StatusBadRequest},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w, env := do(t, router, http.MethodPatch, pdusURI+"/rack-a/ports/"+tt.portID, tt.body)
				assert.Equal(t, tt.status, w.Code, w.Body.String())
				assert.False(t, env.Success)
				assert.Equal(t, before, m.Specs())
			})
		}
	})

	t.Run("Sync", func(t *testing.T) {
		w, env := do(t, router, http.MethodPost, pdusURI+"/sync", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result struct {
			PDUs []string `json:"pdus"`
		}
		require.NoError(t, json.Unmarshal(env.Result, &result))
		assert.Equal(t, []string{"rack-a"}, result.PDUs)
	})
}

func TestParseTimeout(t *testing.T) {
	d, err := parseTimeout("")
	require.NoError(t, err)
	assert.Equal(t, defaultPortTimeout, d)

	d, err = parseTimeout("250ms")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = parseTimeout("0s")
	assert.True(t, errors.HasCode(err, errors.ServerRequestValidation))
}
