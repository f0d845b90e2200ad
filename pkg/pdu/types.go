// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package pdu

import (
	"context"
	"strings"
	"time"

	"github.com/stratastor/pdud/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PortState is the last known power state of a port
type PortState string

const (
	PortStateUnknown PortState = "UNKNOWN"
	PortStateOn      PortState = "ON"
	PortStateOff     PortState = "OFF"
	PortStateReboot  PortState = "REBOOT"
)

var upper = cases.Upper(language.Und)

// ParsePortState accepts any casing ("on", "Off", "REBOOT").
func ParsePortState(s string) (PortState, error) {
	switch st := PortState(upper.String(strings.TrimSpace(s))); st {
	case PortStateOn, PortStateOff, PortStateReboot, PortStateUnknown:
		return st, nil
	default:
		return "", errors.New(errors.PDUPortStateInvalid, s).
			WithMetadata("valid_states", "ON,OFF,REBOOT")
	}
}

// Controllable reports whether the state can be requested from a driver.
func (s PortState) Controllable() bool {
	return s == PortStateOn || s == PortStateOff || s == PortStateReboot
}

// MinOffTimeKey is the driver config key holding the minimum time a port
// stays off before it may be powered on again. Absent means no minimum.
const MinOffTimeKey = "default_min_off_time"

// Port is a read-only snapshot of one outlet as seen by the last poll
type Port struct {
	ID         string    `json:"id" yaml:"id"`
	Label      string    `json:"label,omitempty" yaml:"label,omitempty"`
	State      PortState `json:"state" yaml:"state"`
	Reserved   bool      `json:"reserved" yaml:"reserved"`
	LastPolled time.Time `json:"last_polled" yaml:"last_polled"`

	// MinOffTime is enforced between a shutdown and the next power on
	MinOffTime time.Duration `json:"min_off_time" yaml:"min_off_time"`
	// LastShutdown is nil until the daemon has seen the port go off
	LastShutdown *time.Time `json:"last_shutdown" yaml:"last_shutdown"`
}

// PowerOnAllowedAt returns the earliest time the port may be powered on.
// The zero time means now.
func (p Port) PowerOnAllowedAt() time.Time {
	if p.LastShutdown == nil || p.MinOffTime <= 0 {
		return time.Time{}
	}
	return p.LastShutdown.Add(p.MinOffTime)
}

// Config is the opaque driver configuration. It doubles as an identity
// component of a worker, so it is compared with deep equality.
type Config map[string]interface{}

// String returns the value under key, or def if it is absent or not a string.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Int returns the value under key as an int. YAML and JSON decoders produce
// different numeric types, all of them are accepted.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case uint64:
		return int(v)
	default:
		return def
	}
}

// Duration returns the value under key parsed as a time.Duration.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	switch v := c[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// Strings returns the value under key as a string slice.
func (c Config) Strings(key string) []string {
	switch v := c[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Driver is the hardware backend of a single PDU. Any call may fail; the
// worker owning the driver turns failures into its error state.
type Driver interface {
	// Ports returns the current state of every port
	Ports(ctx context.Context) ([]Port, error)

	// SetPortState requests a power state change for one port
	SetPortState(ctx context.Context, portID string, state PortState) error
}

// Constructor builds a driver from its configuration. Validation failures
// should be returned eagerly.
type Constructor func(cfg Config) (Driver, error)
