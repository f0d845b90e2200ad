// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	stderrors "errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/pdu"
	"github.com/stratastor/pdud/pkg/pdu/drivers/dummy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerValidation(t *testing.T) {
	model := staticModel(t)

	tests := []struct {
		name string
		spec Spec
		code errors.ErrorCode
	}{
		{"empty name", Spec{Model: model}, errors.PDUInvalidSpec},
		{"empty model", Spec{Name: "pdu"}, errors.PDUInvalidSpec},
		{"negative interval", Spec{Model: model, Name: "pdu", PollingInterval: -time.Second}, errors.PDUInvalidSpec},
		{"unknown model", Spec{Model: "no-such-model", Name: "pdu"}, errors.PDUDriverNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWorker(tt.spec, testOptions(), testLogger(t))
			require.Error(t, err)
			assert.Nil(t, w)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestWorkerDefaults(t *testing.T) {
	model := staticModel(t)

	w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
	assert.Equal(t, testOptions().PollingInterval, w.PollingInterval())
	assert.Empty(t, w.Ports())
	assert.Empty(t, w.Error())
	assert.Equal(t, model, w.Model())
	assert.Equal(t, "pdu", w.Name())

	w = newTestWorker(t, Spec{Model: model, Name: "pdu", PollingInterval: time.Minute})
	assert.Equal(t, time.Minute, w.PollingInterval())
}

func TestWorkerCreatedIgnoresPresetError(t *testing.T) {
	w := newTestWorker(t, Spec{Model: staticModel(t), Name: "pdu"})

	assert.Equal(t, StateCreated, w.State())

	w.recordError(stderrors.New("stray"))
	assert.Equal(t, "stray", w.Error())
	assert.Equal(t, StateCreated, w.State())
}

func TestWorkerStateMachine(t *testing.T) {
	release := make(chan struct{})
	var failing atomic.Bool

	model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		return &fakeDriver{ports: func(ctx context.Context) ([]pdu.Port, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if failing.Load() {
				return nil, stderrors.New("poll broke")
			}
			return staticPorts(3), nil
		}}, nil
	})

	w := newTestWorker(t, Spec{Model: model, Name: "pdu"})

	w.Start()
	assert.Equal(t, StateInitializing, w.State())
	assert.False(t, w.Started())

	close(release)
	requireState(t, w, StateOK)
	assert.Len(t, w.Ports(), 3)
	assert.Empty(t, w.Error())

	failing.Store(true)
	requireState(t, w, StateError)
	assert.Equal(t, "poll broke", w.Error())
	assert.Len(t, w.Ports(), 3, "failed polls keep the previous snapshot")

	failing.Store(false)
	requireState(t, w, StateOK)

	failing.Store(true)
	requireState(t, w, StateError)

	w.Stop(true)
	assert.Equal(t, StateStopped, w.State())
	assert.NotEmpty(t, w.Error(), "stop does not clear the error")
}

func TestWorkerStopBeforeStart(t *testing.T) {
	w := newTestWorker(t, Spec{Model: staticModel(t), Name: "pdu"})

	w.Stop(true)
	assert.Equal(t, StateStopped, w.State())

	w.Start()
	assert.Equal(t, StateStopped, w.State())

	select {
	case <-w.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	// Idempotent
	w.Stop(true)
	w.Stop(false)
}

func TestWorkerDoubleStart(t *testing.T) {
	var constructed atomic.Int32
	model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		constructed.Add(1)
		return &fakeDriver{}, nil
	})

	w := newTestWorker(t, Spec{Model: model, Name: "pdu", PollingInterval: time.Hour})
	w.Start()
	w.Start()
	requireState(t, w, StateOK)

	assert.Equal(t, int32(1), constructed.Load())
}

func TestWorkerStopInterruptsLongInterval(t *testing.T) {
	w := newTestWorker(t, Spec{Model: staticModel(t), Name: "pdu", PollingInterval: time.Hour})
	w.Start()
	requireState(t, w, StateOK)

	stopped := make(chan struct{})
	go func() {
		w.Stop(true)
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("stop did not interrupt the polling wait")
	}
	assert.Equal(t, StateStopped, w.State())
}

func TestWorkerKeepsLastErrorWhileInitializing(t *testing.T) {
	var calls atomic.Int32
	model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		return &fakeDriver{ports: func(context.Context) ([]pdu.Port, error) {
			if calls.Add(1) <= 3 {
				return nil, stderrors.New("poll")
			}
			return nil, stderrors.New("still failing")
		}}, nil
	})

	w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
	w.Start()

	require.Eventually(t, func() bool {
		assert.NotEqual(t, StateOK, w.State())
		return w.Error() == "still failing"
	}, waitFor, pollFor)

	assert.Equal(t, StateInitializing, w.State())
	assert.False(t, w.Started())
}

func TestWorkerGetPortByID(t *testing.T) {
	w := newTestWorker(t, Spec{
		Model:  dummy.Model,
		Name:   "pdu",
		Config: pdu.Config{"ports": []interface{}{"a", "b", "c"}},
	})
	w.Start()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	port, ok := w.GetPortByID(ctx, "1")
	require.True(t, ok)
	assert.Equal(t, "b", port.Label)
	assert.Equal(t, pdu.PortStateOff, port.State)
	assert.False(t, port.LastPolled.IsZero())

	_, ok = w.GetPortByID(ctx, "42")
	assert.False(t, ok)
}

func TestWorkerGetPortByIDTimeout(t *testing.T) {
	model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		return &fakeDriver{ports: func(context.Context) ([]pdu.Port, error) {
			return nil, stderrors.New("unreachable")
		}}, nil
	})

	w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
	w.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := w.GetPortByID(ctx, "0")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWorkerGetPortByIDReturnsOnStop(t *testing.T) {
	model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		return nil, stderrors.New("never constructs")
	})

	w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
	w.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	var found bool
	go func() {
		defer wg.Done()
		_, found = w.GetPortByID(context.Background(), "0")
	}()

	time.Sleep(20 * time.Millisecond)
	w.Stop(true)

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(waitFor):
		t.Fatal("GetPortByID kept blocking after stop")
	}
	assert.False(t, found)
}

func TestWorkerRebuildsDriverAfterConsecutiveFailures(t *testing.T) {
	var constructed, closed atomic.Int32
	model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		constructed.Add(1)
		return &fakeDriver{
			closed: &closed,
			ports: func(context.Context) ([]pdu.Port, error) {
				return nil, stderrors.New("connection reset")
			},
		}, nil
	})

	w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
	w.Start()

	require.Eventually(t, func() bool { return constructed.Load() >= 3 }, waitFor, pollFor)
	assert.GreaterOrEqual(t, closed.Load(), int32(2))
	assert.Equal(t, StateInitializing, w.State())
	assert.Equal(t, "connection reset", w.Error())
}

func TestWorkerRecoversAfterRebuild(t *testing.T) {
	var constructed atomic.Int32
	model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		// Only the second instance has a working connection
		healthy := constructed.Add(1) > 1
		return &fakeDriver{ports: func(context.Context) ([]pdu.Port, error) {
			if !healthy {
				return nil, stderrors.New("stale session")
			}
			return staticPorts(2), nil
		}}, nil
	})

	w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
	w.Start()

	requireState(t, w, StateOK)
	assert.Equal(t, int32(2), constructed.Load())
	assert.Len(t, w.Ports(), 2)
}

func TestWorkerRetriesConstruction(t *testing.T) {
	var attempts atomic.Int32
	model := registerFake(t, func(cfg pdu.Config) (pdu.Driver, error) {
		if attempts.Add(1) <= 2 {
			return nil, stderrors.New("invalid credentials")
		}
		return &fakeDriver{}, nil
	})

	w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
	w.Start()

	require.Eventually(t, func() bool { return w.Error() == "invalid credentials" }, waitFor, pollFor)
	assert.Equal(t, StateInitializing, w.State())

	requireState(t, w, StateOK)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Empty(t, w.Error())
}

func TestWorkerSurvivesDriverPanic(t *testing.T) {
	var calls atomic.Int32
	model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		return &fakeDriver{ports: func(context.Context) ([]pdu.Port, error) {
			if calls.Add(1) == 1 {
				panic("nil pointer in vendor library")
			}
			return staticPorts(1), nil
		}}, nil
	})

	w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
	w.Start()

	requireState(t, w, StateOK)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestWorkerHotPollingInterval(t *testing.T) {
	var polls atomic.Int32
	model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		return &fakeDriver{ports: func(context.Context) ([]pdu.Port, error) {
			polls.Add(1)
			return staticPorts(1), nil
		}}, nil
	})

	w := newTestWorker(t, Spec{Model: model, Name: "pdu", PollingInterval: time.Hour})
	w.Start()
	requireState(t, w, StateOK)
	assert.Equal(t, int32(1), polls.Load())

	w.SetPollingInterval(10 * time.Millisecond)
	require.Eventually(t, func() bool { return polls.Load() >= 3 }, waitFor, pollFor)

	w.SetPollingInterval(0)
	assert.Equal(t, 10*time.Millisecond, w.PollingInterval(), "non-positive intervals are ignored")
}

func TestWorkerSetPortState(t *testing.T) {
	w := newTestWorker(t, Spec{
		Model:           dummy.Model,
		Name:            "pdu",
		Config:          pdu.Config{"ports": []interface{}{"a", "b", "c"}},
		PollingInterval: time.Hour,
	})
	w.Start()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	require.NoError(t, w.SetPortState(ctx, "1", pdu.PortStateOn))

	// The control request triggers a poll well before the hour is up
	require.Eventually(t, func() bool {
		p, ok := w.GetPortByID(ctx, "1")
		return ok && p.State == pdu.PortStateOn
	}, waitFor, pollFor)

	for _, state := range []pdu.PortState{pdu.PortStateOff, pdu.PortStateOn, pdu.PortStateOff} {
		before := time.Now()
		port, err := w.SetPortStateAndWait(ctx, "1", state)
		require.NoError(t, err)
		assert.Equal(t, state, port.State)
		assert.False(t, port.LastPolled.Before(before), "port comes from a poll after the change")
	}

	err := w.SetPortState(ctx, "42", pdu.PortStateOn)
	assert.True(t, errors.HasCode(err, errors.PDUPortNotFound), "got %v", err)

	err = w.SetPortState(ctx, "0", pdu.PortStateUnknown)
	assert.True(t, errors.HasCode(err, errors.PDUPortStateInvalid), "got %v", err)
}

func TestWorkerSetPortStateErrors(t *testing.T) {
	t.Run("driver failure", func(t *testing.T) {
		model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
			return &fakeDriver{setState: func(context.Context, string, pdu.PortState) error {
				return stderrors.New("relay stuck")
			}}, nil
		})
		w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
		w.Start()

		err := w.SetPortState(context.Background(), "0", pdu.PortStateOff)
		assert.True(t, errors.HasCode(err, errors.PDUControlFailed), "got %v", err)
		assert.Contains(t, err.Error(), "relay stuck")
	})

	t.Run("not ready", func(t *testing.T) {
		model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
			return nil, stderrors.New("bad config")
		})
		w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
		w.Start()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := w.SetPortState(ctx, "0", pdu.PortStateOff)
		assert.True(t, errors.HasCode(err, errors.PDUNotReady), "got %v", err)
	})

	t.Run("stopped", func(t *testing.T) {
		w := newTestWorker(t, Spec{Model: staticModel(t), Name: "pdu"})
		w.Stop(true)

		err := w.SetPortState(context.Background(), "0", pdu.PortStateOff)
		assert.True(t, errors.HasCode(err, errors.PDUWorkerStopped), "got %v", err)
	})
}

func TestWorkerReservedPorts(t *testing.T) {
	w := newTestWorker(t, Spec{
		Model:           staticModel(t),
		Name:            "pdu",
		ReservedPortIDs: []string{"2", "0"},
	})
	assert.Equal(t, []string{"0", "2"}, w.ReservedPortIDs())

	w.Start()
	requireState(t, w, StateOK)

	for _, p := range w.Ports() {
		assert.Equal(t, p.ID == "0" || p.ID == "2", p.Reserved, "port %s", p.ID)
	}
}

func TestWorkerEqual(t *testing.T) {
	model := staticModel(t)
	other := registerFake(t, func(pdu.Config) (pdu.Driver, error) { return &fakeDriver{}, nil })

	base := Spec{
		Model:           model,
		Name:            "pdu",
		Config:          pdu.Config{"hostname": "10.0.0.2"},
		ReservedPortIDs: []string{"1", "2"},
		PollingInterval: time.Second,
	}

	tests := []struct {
		name   string
		mutate func(s *Spec)
		equal  bool
	}{
		{"identical", func(*Spec) {}, true},
		{"different polling interval", func(s *Spec) { s.PollingInterval = time.Hour }, true},
		{"reserved ports reordered", func(s *Spec) { s.ReservedPortIDs = []string{"2", "1"} }, true},
		{"different reserved ports", func(s *Spec) { s.ReservedPortIDs = []string{"1"} }, false},
		{"different config", func(s *Spec) { s.Config = pdu.Config{"hostname": "10.0.0.3"} }, false},
		{"different name", func(s *Spec) { s.Name = "pdu2" }, false},
		{"different model", func(s *Spec) { s.Model = other }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := base
			tt.mutate(&spec)

			a := newTestWorker(t, base)
			b := newTestWorker(t, spec)
			assert.Equal(t, tt.equal, a.Equal(b))
			assert.Equal(t, tt.equal, b.Equal(a))
		})
	}

	t.Run("nil and empty config", func(t *testing.T) {
		a := newTestWorker(t, Spec{Model: model, Name: "pdu"})
		b := newTestWorker(t, Spec{Model: model, Name: "pdu", Config: pdu.Config{}})
		assert.True(t, a.Equal(b))
	})
}

func TestWorkerConfigIsCopied(t *testing.T) {
	cfg := pdu.Config{"hostname": "10.0.0.2"}
	w := newTestWorker(t, Spec{Model: staticModel(t), Name: "pdu", Config: cfg})

	cfg["hostname"] = "changed"
	assert.Equal(t, "10.0.0.2", w.Config()["hostname"])

	got := w.Config()
	got["hostname"] = "changed again"
	assert.Equal(t, "10.0.0.2", w.Config()["hostname"])
}

func TestWorkerStatus(t *testing.T) {
	w := newTestWorker(t, Spec{
		Model:           staticModel(t),
		Name:            "rack-a",
		ReservedPortIDs: []string{"1"},
		PollingInterval: time.Hour,
	})

	st := w.Status()
	assert.Equal(t, StateCreated, st.State)
	assert.Nil(t, st.Error)
	assert.Empty(t, st.Ports)

	w.Start()
	requireState(t, w, StateOK)

	st = w.Status()
	assert.Equal(t, "rack-a", st.Name)
	assert.Equal(t, StateOK, st.State)
	assert.Equal(t, "1h0m0s", st.PollingInterval)
	assert.Equal(t, "0s", st.MinOffTime)
	assert.Equal(t, []string{"1"}, st.ReservedPortIDs)
	require.Len(t, st.Ports, 3)
	assert.True(t, st.Ports["1"].Reserved)
	assert.False(t, st.Ports["0"].Reserved)
}

// relayDriver keeps port states in memory so tests can flip them behind the
// worker's back
type relayDriver struct {
	mu        sync.Mutex
	states    map[string]pdu.PortState
	failPolls atomic.Bool
}

func newRelayDriver(states ...pdu.PortState) *relayDriver {
	d := &relayDriver{states: make(map[string]pdu.PortState)}
	for i, st := range states {
		d.states[strconv.Itoa(i)] = st
	}
	return d
}

func (d *relayDriver) Ports(context.Context) ([]pdu.Port, error) {
	if d.failPolls.Load() {
		return nil, stderrors.New("snmp timeout")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	ports := make([]pdu.Port, 0, len(d.states))
	for i := 0; i < len(d.states); i++ {
		id := strconv.Itoa(i)
		ports = append(ports, pdu.Port{ID: id, State: d.states[id]})
	}
	return ports, nil
}

func (d *relayDriver) SetPortState(_ context.Context, portID string, state pdu.PortState) error {
	d.set(portID, state)
	return nil
}

func (d *relayDriver) set(portID string, state pdu.PortState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if state == pdu.PortStateReboot {
		state = pdu.PortStateOn
	}
	d.states[portID] = state
}

func relayModel(t *testing.T, d *relayDriver) string {
	t.Helper()
	return registerFake(t, func(pdu.Config) (pdu.Driver, error) { return d, nil })
}

func TestWorkerSetPortStateAndWaitFallsBackOnTimeout(t *testing.T) {
	d := newRelayDriver(pdu.PortStateOff, pdu.PortStateOff)
	w := newTestWorker(t, Spec{Model: relayModel(t, d), Name: "pdu", PollingInterval: time.Hour})
	w.Start()
	requireState(t, w, StateOK)

	// No poll lands after the change
	d.failPolls.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	port, err := w.SetPortStateAndWait(ctx, "1", pdu.PortStateReboot)
	require.NoError(t, err)
	assert.Equal(t, "1", port.ID)
	assert.Equal(t, pdu.PortStateOn, port.State)

	p, _ := w.portByID("1")
	assert.Equal(t, pdu.PortStateOff, p.State, "the snapshot itself is untouched")
}

func TestWorkerLastShutdownFromPoll(t *testing.T) {
	d := newRelayDriver(pdu.PortStateOn, pdu.PortStateOff)
	w := newTestWorker(t, Spec{Model: relayModel(t, d), Name: "pdu"})
	w.Start()
	requireState(t, w, StateOK)

	for _, p := range w.Ports() {
		assert.Nil(t, p.LastShutdown, "port %s", p.ID)
	}

	before := time.Now()
	d.set("0", pdu.PortStateOff)

	require.Eventually(t, func() bool {
		p, ok := w.portByID("0")
		return ok && p.LastShutdown != nil
	}, waitFor, pollFor)

	p, _ := w.portByID("0")
	assert.False(t, p.LastShutdown.Before(before))

	// Off from the start was never seen going down
	p, _ = w.portByID("1")
	assert.Nil(t, p.LastShutdown)
}

func TestWorkerLastShutdownOnSetOff(t *testing.T) {
	d := newRelayDriver(pdu.PortStateOff, pdu.PortStateOff)
	w := newTestWorker(t, Spec{Model: relayModel(t, d), Name: "pdu", PollingInterval: time.Hour})
	w.Start()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	before := time.Now()
	port, err := w.SetPortStateAndWait(ctx, "1", pdu.PortStateOff)
	require.NoError(t, err)
	require.NotNil(t, port.LastShutdown)
	assert.False(t, port.LastShutdown.Before(before))

	port, err = w.SetPortStateAndWait(ctx, "0", pdu.PortStateOn)
	require.NoError(t, err)
	assert.Nil(t, port.LastShutdown)
}

func TestWorkerMinOffTime(t *testing.T) {
	d := newRelayDriver(pdu.PortStateOn)
	w := newTestWorker(t, Spec{
		Model:           relayModel(t, d),
		Name:            "pdu",
		Config:          pdu.Config{pdu.MinOffTimeKey: "300ms"},
		PollingInterval: time.Hour,
	})
	assert.Equal(t, 300*time.Millisecond, w.MinOffTime())
	w.Start()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	port, err := w.SetPortStateAndWait(ctx, "0", pdu.PortStateOff)
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, port.MinOffTime)
	require.NotNil(t, port.LastShutdown)
	offAt := *port.LastShutdown

	t.Run("caller gives up first", func(t *testing.T) {
		short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := w.SetPortState(short, "0", pdu.PortStateOn)
		assert.True(t, errors.HasCode(err, errors.PDUPortMinOffTime), "got %v", err)

		p, _ := w.portByID("0")
		assert.Equal(t, pdu.PortStateOff, p.State, "the driver was not asked to power on")
	})

	t.Run("waits out the remainder", func(t *testing.T) {
		port, err := w.SetPortStateAndWait(ctx, "0", pdu.PortStateOn)
		require.NoError(t, err)
		assert.Equal(t, pdu.PortStateOn, port.State)
		assert.GreaterOrEqual(t, time.Since(offAt), 300*time.Millisecond)
	})

	t.Run("off and reboot are not delayed", func(t *testing.T) {
		_, err := w.SetPortStateAndWait(ctx, "0", pdu.PortStateOff)
		require.NoError(t, err)

		short, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		require.NoError(t, w.SetPortState(short, "0", pdu.PortStateReboot))
	})
}

func TestWorkerStopAbortsControlCall(t *testing.T) {
	entered := make(chan struct{}, 1)
	model := registerFake(t, func(pdu.Config) (pdu.Driver, error) {
		return &fakeDriver{setState: func(ctx context.Context, _ string, _ pdu.PortState) error {
			entered <- struct{}{}
			<-ctx.Done()
			return ctx.Err()
		}}, nil
	})
	w := newTestWorker(t, Spec{Model: model, Name: "pdu"})
	w.Start()
	requireState(t, w, StateOK)

	errc := make(chan error, 1)
	go func() { errc <- w.SetPortState(context.Background(), "0", pdu.PortStateOff) }()
	<-entered

	w.Stop(false)

	select {
	case err := <-errc:
		assert.True(t, errors.HasCode(err, errors.PDUControlFailed), "got %v", err)
	case <-time.After(waitFor):
		t.Fatal("control call outlived the worker")
	}

	select {
	case <-w.Done():
	case <-time.After(waitFor):
		t.Fatal("worker did not exit")
	}
}
