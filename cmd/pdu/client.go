// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package pdu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/stratastor/pdud/internal/constants"
	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/httpclient"
	pdutypes "github.com/stratastor/pdud/pkg/pdu"
	"github.com/stratastor/pdud/pkg/pdu/api"
	"github.com/stratastor/pdud/pkg/pdu/daemon"
)

// Client talks to a running daemon's PDU API
type Client struct {
	http *httpclient.Client
}

func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	cfg := httpclient.NewClientConfig()
	cfg.BaseURL = baseURL
	cfg.Timeout = timeout
	cfg.RetryCount = 0
	if err := httpclient.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Client{http: httpclient.NewClient(cfg)}, nil
}

func (c *Client) Close() error {
	return c.http.Close()
}

// do runs one request and decodes the envelope's result into out. Coded
// errors from the daemon come back as DaemonError values.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	var envelope struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   *api.APIError   `json:"error"`
	}

	resp, err := c.http.NewRequest(httpclient.RequestConfig{
		Path:        constants.APIPDUs + path,
		QueryParams: query,
		Body:        body,
		Context:     ctx,
	}).Execute(method)
	if resp == nil || len(resp.Body()) == 0 {
		return err
	}

	if jerr := json.Unmarshal(resp.Body(), &envelope); jerr != nil {
		if err != nil {
			return err
		}
		return errors.Wrap(jerr, errors.ServerUpstreamFail)
	}

	if !envelope.Success {
		if envelope.Error == nil {
			return err
		}
		de := errors.New(errors.ErrorCode(envelope.Error.Code), envelope.Error.Details)
		de.Message = envelope.Error.Message
		for k, v := range envelope.Error.Meta {
			de.WithMetadata(k, fmt.Sprint(v))
		}
		return de
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

func (c *Client) List(ctx context.Context) (map[string]daemon.Status, error) {
	var result struct {
		PDUs map[string]daemon.Status `json:"pdus"`
	}
	if err := c.do(ctx, "GET", "", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.PDUs, nil
}

func (c *Client) Show(ctx context.Context, name string) (*daemon.Status, error) {
	var status daemon.Status
	if err := c.do(ctx, "GET", "/"+url.PathEscape(name), nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) Port(ctx context.Context, name, portID string, wait time.Duration) (*pdutypes.Port, error) {
	var query map[string]string
	if wait > 0 {
		query = map[string]string{"timeout": wait.String()}
	}

	var port pdutypes.Port
	if err := c.do(ctx, "GET", portPath(name, portID), query, nil, &port); err != nil {
		return nil, err
	}
	return &port, nil
}

func (c *Client) UpdatePort(ctx context.Context, name, portID string, req api.PortUpdateRequest) (*pdutypes.Port, error) {
	var port pdutypes.Port
	if err := c.do(ctx, "PATCH", portPath(name, portID), nil, req, &port); err != nil {
		return nil, err
	}
	return &port, nil
}

func (c *Client) Sync(ctx context.Context) ([]string, error) {
	var result struct {
		PDUs []string `json:"pdus"`
	}
	if err := c.do(ctx, "POST", "/sync", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.PDUs, nil
}

func portPath(name, portID string) string {
	return "/" + url.PathEscape(name) + "/ports/" + url.PathEscape(portID)
}
