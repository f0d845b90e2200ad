// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package dummy provides an in-memory PDU, useful for development setups
// and for exercising the daemon without hardware.
//
// Configuration:
//
//	ports: [label, ...]   required, port ids are "0".."n-1"
//	initial_state: OFF    optional
package dummy

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/pdu"
)

const Model = "dummy"

func init() {
	pdu.RegisterDriver(Model, New)
}

// Driver keeps port states in memory
type Driver struct {
	mu     sync.Mutex
	labels []string
	states []pdu.PortState
}

// New validates cfg and builds an in-memory driver
func New(cfg pdu.Config) (pdu.Driver, error) {
	labels := cfg.Strings("ports")
	if len(labels) == 0 {
		return nil, errors.New(errors.PDUDriverConstructFailed, "dummy driver requires a non-empty 'ports' list").
			WithMetadata("model", Model)
	}

	initial := pdu.PortStateOff
	if s := cfg.String("initial_state", ""); s != "" {
		st, err := pdu.ParsePortState(s)
		if err != nil {
			return nil, errors.Wrap(err, errors.PDUDriverConstructFailed).
				WithMetadata("model", Model)
		}
		initial = st
	}

	states := make([]pdu.PortState, len(labels))
	for i := range states {
		states[i] = initial
	}

	return &Driver{labels: labels, states: states}, nil
}

func (d *Driver) Ports(ctx context.Context) ([]pdu.Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	ports := make([]pdu.Port, len(d.labels))
	for i, label := range d.labels {
		ports[i] = pdu.Port{
			ID:         strconv.Itoa(i),
			Label:      label,
			State:      d.states[i],
			LastPolled: now,
		}
	}
	return ports, nil
}

func (d *Driver) SetPortState(ctx context.Context, portID string, state pdu.PortState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx, err := strconv.Atoi(portID)
	if err != nil || idx < 0 || idx >= len(d.labels) {
		return errors.New(errors.PDUPortNotFound, portID).WithMetadata("model", Model)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// A reboot on real hardware ends with the port powered on
	if state == pdu.PortStateReboot {
		state = pdu.PortStateOn
	}
	d.states[idx] = state
	return nil
}
