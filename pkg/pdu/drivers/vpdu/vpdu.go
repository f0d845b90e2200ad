// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package vpdu talks to a virtual PDU over HTTP.
//
// Configuration:
//
//	hostname: 10.0.0.5   required unless PDUD_VPDU_ENDPOINT is set
//	port: 8080           optional, defaults to 80
//	timeout: 5s          optional per-request timeout
//
// The endpoint serves GET /v1/ports returning [{"id","label","state"}] and
// accepts POST /v1/ports/{id}/state with {"state":"ON"}.
package vpdu

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/stratastor/pdud/internal/constants"
	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/httpclient"
	"github.com/stratastor/pdud/pkg/pdu"
)

const (
	Model = "vpdu"

	defaultPort    = 80
	defaultTimeout = 5 * time.Second
)

func init() {
	pdu.RegisterDriver(Model, New)
}

type wirePort struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	State string `json:"state"`
}

type stateRequest struct {
	State pdu.PortState `json:"state"`
}

// Driver is a thin HTTP client of one virtual PDU
type Driver struct {
	client *httpclient.Client
}

// New builds the driver. The endpoint is not contacted until the first poll.
func New(cfg pdu.Config) (pdu.Driver, error) {
	base, err := endpoint(cfg)
	if err != nil {
		return nil, err
	}

	ccfg := httpclient.NewClientConfig()
	ccfg.BaseURL = base
	ccfg.Timeout = cfg.Duration("timeout", defaultTimeout)
	// The worker owns retries
	ccfg.RetryCount = 0

	if err := httpclient.ValidateConfig(ccfg); err != nil {
		return nil, errors.Wrap(err, errors.PDUDriverConstructFailed).
			WithMetadata("model", Model)
	}

	return &Driver{client: httpclient.NewClient(ccfg)}, nil
}

func endpoint(cfg pdu.Config) (string, error) {
	host := cfg.String("hostname", "")
	if host == "" {
		if env := os.Getenv(constants.EnvVPDUEndpoint); env != "" {
			return "http://" + env, nil
		}
		return "", errors.New(errors.PDUDriverConstructFailed,
			"vpdu driver requires 'hostname' or "+constants.EnvVPDUEndpoint).
			WithMetadata("model", Model)
	}

	port := cfg.Int("port", defaultPort)
	if port <= 0 || port > 65535 {
		return "", errors.New(errors.PDUDriverConstructFailed,
			fmt.Sprintf("invalid port %d", port)).
			WithMetadata("model", Model)
	}

	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)), nil
}

func (d *Driver) Ports(ctx context.Context) ([]pdu.Port, error) {
	var ports []wirePort
	_, err := d.client.NewRequest(httpclient.RequestConfig{
		Path:    "/v1/ports",
		Result:  &ports,
		Context: ctx,
	}).Get()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]pdu.Port, 0, len(ports))
	for _, p := range ports {
		state, err := pdu.ParsePortState(p.State)
		if err != nil {
			state = pdu.PortStateUnknown
		}
		out = append(out, pdu.Port{
			ID:         p.ID,
			Label:      p.Label,
			State:      state,
			LastPolled: now,
		})
	}
	return out, nil
}

func (d *Driver) SetPortState(ctx context.Context, portID string, state pdu.PortState) error {
	_, err := d.client.NewRequest(httpclient.RequestConfig{
		Path:    "/v1/ports/" + url.PathEscape(portID) + "/state",
		Body:    stateRequest{State: state},
		Context: ctx,
	}).Post()
	return err
}

// Close drops idle connections so a rebuilt driver starts with a fresh one
func (d *Driver) Close() error {
	return d.client.Close()
}
