// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"fmt"
	"time"

	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/pdu"
)

const (
	DefaultPollingInterval        = 10 * time.Second
	DefaultConstructionBackoff    = 15 * time.Second
	DefaultMaxConsecutiveFailures = 3
	DefaultTick                   = time.Second
)

// Options tunes the timing of every worker created by a registry
type Options struct {
	// PollingInterval is used when a Spec does not set its own
	PollingInterval time.Duration

	// ConstructionBackoff is the fixed delay between driver construction attempts
	ConstructionBackoff time.Duration

	// MaxConsecutiveFailures is the number of failed polls after which the
	// driver instance is discarded and rebuilt
	MaxConsecutiveFailures int

	// Tick bounds how long a worker sleeps before re-checking for stop
	Tick time.Duration
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		PollingInterval:        DefaultPollingInterval,
		ConstructionBackoff:    DefaultConstructionBackoff,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		Tick:                   DefaultTick,
	}
}

func (o Options) withDefaults() Options {
	if o.PollingInterval <= 0 {
		o.PollingInterval = DefaultPollingInterval
	}
	if o.ConstructionBackoff <= 0 {
		o.ConstructionBackoff = DefaultConstructionBackoff
	}
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	return o
}

// Spec is everything needed to create a worker. Model, Name, Config and
// ReservedPortIDs form the worker identity; PollingInterval does not.
type Spec struct {
	Model           string
	Name            string
	Config          pdu.Config
	ReservedPortIDs []string

	// PollingInterval of zero means "use the registry default"
	PollingInterval time.Duration
}

// Validate checks the parts of a spec that do not depend on the driver
func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.New(errors.PDUInvalidSpec, "PDU name cannot be empty")
	}
	if s.Model == "" {
		return errors.New(errors.PDUInvalidSpec, "PDU driver model cannot be empty").
			WithMetadata("pdu", s.Name)
	}
	if s.PollingInterval < 0 {
		return errors.New(errors.PDUInvalidSpec,
			fmt.Sprintf("negative polling interval %s", s.PollingInterval)).
			WithMetadata("pdu", s.Name)
	}
	return nil
}
