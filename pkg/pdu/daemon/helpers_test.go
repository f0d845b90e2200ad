// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/pkg/pdu"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	pollFor = 5 * time.Millisecond
)

// testOptions keeps every timing short enough for unit tests
func testOptions() Options {
	return Options{
		PollingInterval:        20 * time.Millisecond,
		ConstructionBackoff:    20 * time.Millisecond,
		MaxConsecutiveFailures: 3,
		Tick:                   5 * time.Millisecond,
	}
}

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	l, err := logger.NewTag(logger.Config{LogLevel: "error"}, "pdu.daemon.test")
	require.NoError(t, err)
	return l
}

// fakeDriver is a scriptable driver. Nil funcs fall back to a static set of
// ports.
type fakeDriver struct {
	ports    func(ctx context.Context) ([]pdu.Port, error)
	setState func(ctx context.Context, portID string, state pdu.PortState) error
	closed   *atomic.Int32
}

func (d *fakeDriver) Ports(ctx context.Context) ([]pdu.Port, error) {
	if d.ports != nil {
		return d.ports(ctx)
	}
	return staticPorts(3), nil
}

func (d *fakeDriver) SetPortState(ctx context.Context, portID string, state pdu.PortState) error {
	if d.setState != nil {
		return d.setState(ctx, portID, state)
	}
	return nil
}

func (d *fakeDriver) Close() error {
	if d.closed != nil {
		d.closed.Add(1)
	}
	return nil
}

func staticPorts(n int) []pdu.Port {
	ports := make([]pdu.Port, n)
	for i := range ports {
		ports[i] = pdu.Port{ID: strconv.Itoa(i), Label: "port-" + strconv.Itoa(i), State: pdu.PortStateOff}
	}
	return ports
}

var fakeSeq atomic.Int64

// registerFake registers ctor under a fresh model name derived from the test
func registerFake(t *testing.T, ctor pdu.Constructor) string {
	t.Helper()
	model := fmt.Sprintf("fake-%s-%d", strings.ReplaceAll(t.Name(), "/", "-"), fakeSeq.Add(1))
	pdu.RegisterDriver(model, ctor)
	return model
}

// staticModel registers a driver that always reports three OFF ports
func staticModel(t *testing.T) string {
	t.Helper()
	return registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		return &fakeDriver{}, nil
	})
}

func newTestWorker(t *testing.T, spec Spec) *Worker {
	t.Helper()
	w, err := NewWorker(spec, testOptions(), testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop(true) })
	return w
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(testOptions(), testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { r.Stop(true) })
	return r
}

func requireState(t *testing.T, w *Worker, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return w.State() == want }, waitFor, pollFor,
		"worker %s never reached %s (state %s, error %q)", w.Name(), want, w.State(), w.Error())
}
