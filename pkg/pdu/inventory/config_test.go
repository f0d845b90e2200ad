// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"testing"
	"time"

	"github.com/stratastor/pdud/config"
	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/pdu/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecsFromConfig(t *testing.T) {
	entries := []config.PDU{
		{
			Name:            "rack-a",
			Driver:          "vpdu",
			Config:          map[string]interface{}{"hostname": "10.0.0.5"},
			ReservedPortIDs: []string{"3"},
			PollingInterval: "30s",
		},
		{Name: "rack-b", Driver: "dummy"},
	}

	specs, err := SpecsFromConfig(entries)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "vpdu", specs[0].Model)
	assert.Equal(t, "10.0.0.5", specs[0].Config["hostname"])
	assert.Equal(t, 30*time.Second, specs[0].PollingInterval)
	assert.Equal(t, time.Duration(0), specs[1].PollingInterval)

	assert.Equal(t, entries, SpecsToConfig(specs))

	_, err = SpecsFromConfig([]config.PDU{{Name: "bad", Driver: "dummy", PollingInterval: "soon"}})
	assert.True(t, errors.HasCode(err, errors.ConfigInvalid), "got %v", err)
}

func TestOptionsFromConfig(t *testing.T) {
	opts, reconcile, err := OptionsFromConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, daemon.DefaultOptions(), opts)
	assert.Equal(t, DefaultReconcileInterval, reconcile)

	var cfg config.Config
	cfg.Daemon.PollingInterval = "5s"
	cfg.Daemon.ConstructionBackoff = "30s"
	cfg.Daemon.MaxConsecutiveFailures = 5
	cfg.Daemon.ReconcileInterval = "2m"

	opts, reconcile, err = OptionsFromConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, opts.PollingInterval)
	assert.Equal(t, 30*time.Second, opts.ConstructionBackoff)
	assert.Equal(t, 5, opts.MaxConsecutiveFailures)
	assert.Equal(t, daemon.DefaultTick, opts.Tick)
	assert.Equal(t, 2*time.Minute, reconcile)

	cfg.Daemon.Tick = "-1s"
	_, _, err = OptionsFromConfig(&cfg)
	assert.True(t, errors.HasCode(err, errors.ConfigInvalid), "got %v", err)
}
