/*
 * Copyright 2024 Raamsri Kumar <raam@tinkershack.in> and The StrataSTOR Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stratastor/pdud/internal/constants"
	"github.com/stratastor/pdud/pkg/errors"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRetryCount    = 3
	defaultRetryWaitTime = 2 * time.Second
)

// Client is a resty client bound to one base URL
type Client struct {
	*resty.Client
	config ClientConfig
}

// ClientConfig holds the settings shared by the vpdu driver, the health
// checker and the pdu CLI
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration

	// RetryCount applies to transport errors, and to 5xx answers of GET
	// requests
	RetryCount    int
	RetryWaitTime time.Duration

	UserAgent string
}

// NewClientConfig returns a ClientConfig with defaults
func NewClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:       defaultTimeout,
		RetryCount:    defaultRetryCount,
		RetryWaitTime: defaultRetryWaitTime,
		UserAgent:     "pdud/" + constants.PdudVersion,
	}
}

// NewClient creates a client from config. Validate it first with
// ValidateConfig.
func NewClient(config ClientConfig) *Client {
	rc := resty.New().
		SetLogger(NoOpLogger{}).
		SetTransport(&http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			MaxIdleConns:    16,
			IdleConnTimeout: 90 * time.Second,
		})

	if config.BaseURL != "" {
		rc.SetBaseURL(config.BaseURL)
	}
	if config.Timeout > 0 {
		rc.SetTimeout(config.Timeout)
	}
	if config.UserAgent != "" {
		rc.SetHeader("User-Agent", config.UserAgent)
	}
	if config.RetryCount > 0 {
		rc.SetRetryCount(config.RetryCount).
			AddRetryCondition(retryServerErrors)
		if config.RetryWaitTime > 0 {
			rc.SetRetryWaitTime(config.RetryWaitTime)
		}
	}

	return &Client{Client: rc, config: config}
}

// retryServerErrors retries idempotent reads the server failed to answer.
// Port changes are never replayed.
func retryServerErrors(resp *resty.Response, err error) bool {
	if err != nil || resp == nil || resp.Request == nil {
		return false
	}
	return resp.Request.Method == http.MethodGet && resp.StatusCode() >= http.StatusInternalServerError
}

// Close releases idle connections held by the transport
func (c *Client) Close() error {
	c.Client.GetClient().CloseIdleConnections()
	return nil
}

// NoOpLogger silences resty
type NoOpLogger struct{}

func (NoOpLogger) Errorf(string, ...interface{}) {}
func (NoOpLogger) Warnf(string, ...interface{})  {}
func (NoOpLogger) Debugf(string, ...interface{}) {}

// ValidateConfig checks the base URL and rejects negative settings
func ValidateConfig(config ClientConfig) error {
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil {
			return errors.Wrap(err, errors.ConfigInvalid).WithMetadata("base_url", config.BaseURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New(errors.ConfigInvalid,
				fmt.Sprintf("unsupported URL scheme %q", u.Scheme)).
				WithMetadata("base_url", config.BaseURL)
		}
		if u.Host == "" {
			return errors.New(errors.ConfigInvalid, "base URL has no host").
				WithMetadata("base_url", config.BaseURL)
		}
	}
	if config.Timeout < 0 || config.RetryCount < 0 || config.RetryWaitTime < 0 {
		return errors.New(errors.ConfigInvalid, "timeouts and retry settings cannot be negative")
	}
	return nil
}

// RequestConfig describes one call relative to the base URL
type RequestConfig struct {
	Path        string
	QueryParams map[string]string
	Body        interface{}
	Result      interface{}
	Context     context.Context
}

// Request is a prepared call
type Request struct {
	request *resty.Request
	path    string
}

// NewRequest prepares a request from cfg
func (c *Client) NewRequest(cfg RequestConfig) *Request {
	req := c.R()
	if cfg.QueryParams != nil {
		req.SetQueryParams(cfg.QueryParams)
	}
	if cfg.Body != nil {
		req.SetBody(cfg.Body)
	}
	if cfg.Result != nil {
		req.SetResult(cfg.Result)
	}
	if cfg.Context != nil {
		req.SetContext(cfg.Context)
	}
	return &Request{request: req, path: cfg.Path}
}

// Execute performs the request and turns transport failures and non-2xx
// answers into errors.
func (r *Request) Execute(method string) (*resty.Response, error) {
	resp, err := r.request.Execute(method, r.path)
	if err != nil {
		return resp, errors.Wrap(err, errors.ServerUnreachable).
			WithMetadata("method", method).
			WithMetadata("path", r.path)
	}
	if resp.IsError() {
		return resp, errors.New(errors.ServerUpstreamFail,
			fmt.Sprintf("%s %s: %s", method, r.path, strings.TrimSpace(resp.String()))).
			WithMetadata("status", resp.Status())
	}
	return resp, nil
}

func (r *Request) Get() (*resty.Response, error)   { return r.Execute(http.MethodGet) }
func (r *Request) Post() (*resty.Response, error)  { return r.Execute(http.MethodPost) }
func (r *Request) Patch() (*resty.Response, error) { return r.Execute(http.MethodPatch) }
