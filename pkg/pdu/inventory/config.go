// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"fmt"
	"time"

	"github.com/stratastor/pdud/config"
	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/pdu"
	"github.com/stratastor/pdud/pkg/pdu/daemon"
)

// SpecsFromConfig converts the pdus section of the configuration
func SpecsFromConfig(entries []config.PDU) ([]daemon.Spec, error) {
	specs := make([]daemon.Spec, 0, len(entries))
	for i, e := range entries {
		interval, err := parseDuration(e.PollingInterval, 0)
		if err != nil {
			return nil, errors.Wrap(err, errors.ConfigInvalid).
				WithMetadata("pdu", e.Name).
				WithMetadata("field", fmt.Sprintf("pdus[%d].pollingInterval", i))
		}

		specs = append(specs, daemon.Spec{
			Model:           e.Driver,
			Name:            e.Name,
			Config:          pdu.Config(e.Config),
			ReservedPortIDs: e.ReservedPortIDs,
			PollingInterval: interval,
		})
	}
	return specs, nil
}

// SpecsToConfig is the inverse of SpecsFromConfig
func SpecsToConfig(specs []daemon.Spec) []config.PDU {
	entries := make([]config.PDU, 0, len(specs))
	for _, s := range specs {
		e := config.PDU{
			Name:            s.Name,
			Driver:          s.Model,
			Config:          map[string]interface{}(s.Config),
			ReservedPortIDs: s.ReservedPortIDs,
		}
		if s.PollingInterval > 0 {
			e.PollingInterval = s.PollingInterval.String()
		}
		entries = append(entries, e)
	}
	return entries
}

// OptionsFromConfig reads the daemon section. It returns the worker options
// and the reconcile interval.
func OptionsFromConfig(cfg *config.Config) (daemon.Options, time.Duration, error) {
	opts := daemon.DefaultOptions()
	if cfg == nil {
		return opts, DefaultReconcileInterval, nil
	}

	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"daemon.pollingInterval", cfg.Daemon.PollingInterval, &opts.PollingInterval},
		{"daemon.constructionBackoff", cfg.Daemon.ConstructionBackoff, &opts.ConstructionBackoff},
		{"daemon.tick", cfg.Daemon.Tick, &opts.Tick},
	}
	for _, f := range fields {
		d, err := parseDuration(f.value, *f.dst)
		if err != nil {
			return opts, 0, errors.Wrap(err, errors.ConfigInvalid).WithMetadata("field", f.name)
		}
		*f.dst = d
	}

	if cfg.Daemon.MaxConsecutiveFailures > 0 {
		opts.MaxConsecutiveFailures = cfg.Daemon.MaxConsecutiveFailures
	}

	reconcile, err := parseDuration(cfg.Daemon.ReconcileInterval, DefaultReconcileInterval)
	if err != nil {
		return opts, 0, errors.Wrap(err, errors.ConfigInvalid).WithMetadata("field", "daemon.reconcileInterval")
	}

	return opts, reconcile, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
