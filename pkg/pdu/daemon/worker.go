// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"fmt"
	"io"
	"maps"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/pdu"
)

// State is the observable lifecycle state of a worker. It is derived on
// every read, never stored.
type State string

const (
	StateCreated      State = "CREATED"
	StateInitializing State = "INITIALIZING"
	StateOK           State = "OK"
	StateError        State = "ERROR"
	StateStopped      State = "STOPPED"
)

// Worker owns one driver instance and polls it from a dedicated goroutine.
//
// Lifecycle:
//
//	CREATED --Start--> INITIALIZING --first successful poll--> OK <--> ERROR
//	   |                    |                                   |        |
//	   +--------------------+----------------Stop---------------+--------+--> STOPPED
//
// A stopped worker is never restarted; the registry creates a new one.
//
// The ports snapshot and the last error are written only by the polling
// goroutine and published through atomic pointers, so readers never block
// and may observe a slightly stale snapshot.
type Worker struct {
	model    string
	name     string
	config   pdu.Config
	reserved map[string]struct{}
	ctor     pdu.Constructor
	opts     Options
	logger   logger.Logger

	pollingInterval atomic.Int64

	ports   atomic.Pointer[[]pdu.Port]
	lastErr atomic.Pointer[string]

	// started is closed after the first successful poll and never reopened
	started     chan struct{}
	startedOnce sync.Once

	lifecycleMu sync.Mutex
	launched    atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	doneOnce    sync.Once

	// after, when set, is the done channel of the worker this one replaces
	after <-chan struct{}

	// kick cuts the current polling wait short, e.g. after a port change
	kick chan struct{}

	// driverMu serializes polls and control requests against the driver.
	// A poll holds it until its snapshot is published.
	driverMu sync.Mutex
	driver   pdu.Driver
	backoff  backoff.BackOff

	// pollSeq counts published snapshots; polled is closed and replaced on
	// every increment
	pollMu  sync.Mutex
	pollSeq uint64
	polled  chan struct{}

	minOffTime time.Duration
	shutdownMu sync.Mutex
	shutdowns  map[string]time.Time
}

// NewWorker validates spec, resolves its driver constructor and returns a
// worker in the CREATED state. The driver itself is only built once the
// worker runs.
func NewWorker(spec Spec, opts Options, l logger.Logger) (*Worker, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ctor, err := pdu.LookupDriver(spec.Model)
	if err != nil {
		return nil, errors.Wrap(err, errors.PDUInvalidSpec).
			WithMetadata("pdu", spec.Name)
	}

	if l == nil {
		l, err = logger.NewTag(logger.Config{LogLevel: "info"}, "pdu.worker")
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	opts = opts.withDefaults()

	reserved := make(map[string]struct{}, len(spec.ReservedPortIDs))
	for _, id := range spec.ReservedPortIDs {
		reserved[id] = struct{}{}
	}

	var config pdu.Config
	if spec.Config != nil {
		config = maps.Clone(spec.Config)
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		model:    spec.Model,
		name:     spec.Name,
		config:   config,
		reserved: reserved,
		ctor:     ctor,
		opts:     opts,
		logger:   l,
		started:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		kick:     make(chan struct{}, 1),
		backoff:  backoff.NewConstantBackOff(opts.ConstructionBackoff),
		polled:   make(chan struct{}),

		minOffTime: config.Duration(pdu.MinOffTimeKey, 0),
		shutdowns:  make(map[string]time.Time),
	}

	interval := spec.PollingInterval
	if interval == 0 {
		interval = opts.PollingInterval
	}
	w.pollingInterval.Store(int64(interval))

	empty := []pdu.Port{}
	w.ports.Store(&empty)

	return w, nil
}

// Start launches the polling goroutine. Only the first call has an effect,
// and a worker stopped before it was started stays stopped.
func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.launched.Load() || w.ctx.Err() != nil {
		return
	}
	w.launched.Store(true)

	go w.run()
}

// startAfter is Start for a successor: the driver is not built before prev
// is closed. A nil prev starts right away.
func (w *Worker) startAfter(prev <-chan struct{}) {
	w.lifecycleMu.Lock()
	w.after = prev
	w.lifecycleMu.Unlock()

	w.Start()
}

// Stop cancels the worker. With wait it blocks until the polling goroutine
// has returned. Safe to call repeatedly and on a worker that never started.
func (w *Worker) Stop(wait bool) {
	w.lifecycleMu.Lock()
	w.cancel()
	if !w.launched.Load() {
		w.doneOnce.Do(func() { close(w.done) })
	}
	w.lifecycleMu.Unlock()

	if wait {
		<-w.done
	}
}

// Done is closed once the polling goroutine has exited
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// State derives the current state. Precedence: stop requested, then a
// recorded error after a successful start, then not yet started.
func (w *Worker) State() State {
	if w.ctx.Err() != nil {
		return StateStopped
	}

	started := w.Started()
	if started && w.Error() != "" {
		return StateError
	}

	if !started {
		if w.launched.Load() {
			return StateInitializing
		}
		return StateCreated
	}

	return StateOK
}

// Started reports whether at least one poll has succeeded
func (w *Worker) Started() bool {
	select {
	case <-w.started:
		return true
	default:
		return false
	}
}

// Error returns the message of the last recorded driver error, or "".
func (w *Worker) Error() string {
	if msg := w.lastErr.Load(); msg != nil {
		return *msg
	}
	return ""
}

// Ports returns a copy of the latest snapshot
func (w *Worker) Ports() []pdu.Port {
	snapshot := *w.ports.Load()
	ports := make([]pdu.Port, len(snapshot))
	copy(ports, snapshot)
	return ports
}

// WaitReady blocks until the first successful poll, ctx is done, or the
// worker stops.
func (w *Worker) WaitReady(ctx context.Context) error {
	select {
	case <-w.started:
		return nil
	default:
	}

	select {
	case <-w.started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return errors.New(errors.PDUWorkerStopped, w.name).WithMetadata("pdu", w.name)
	}
}

// GetPortByID waits for the worker to become ready (bounded by ctx) and
// looks portID up in the latest snapshot. It reports false when the port is
// absent or the worker did not become ready in time.
func (w *Worker) GetPortByID(ctx context.Context, portID string) (pdu.Port, bool) {
	if err := w.WaitReady(ctx); err != nil {
		return pdu.Port{}, false
	}
	return w.portByID(portID)
}

// SetPortState asks the driver to change a port. It does not touch the
// snapshot; the poll it triggers picks up the new state.
//
// Powering on a port that went off less than its minimum off time ago first
// waits out the remainder, bounded by ctx.
func (w *Worker) SetPortState(ctx context.Context, portID string, state pdu.PortState) error {
	_, err := w.setPortState(ctx, portID, state)
	return err
}

// SetPortStateAndWait is SetPortState followed by a wait for the first poll
// that read the driver after the change, whose view of the port it returns.
// If ctx ends before that poll lands, the last snapshot is returned with the
// requested state filled in.
func (w *Worker) SetPortStateAndWait(ctx context.Context, portID string, state pdu.PortState) (pdu.Port, error) {
	seq, err := w.setPortState(ctx, portID, state)
	if err != nil {
		return pdu.Port{}, err
	}

	if err := w.waitPolled(ctx, seq); err == nil {
		if port, ok := w.portByID(portID); ok {
			return port, nil
		}
	}

	port, _ := w.portByID(portID)
	port.State = state
	if state == pdu.PortStateReboot {
		port.State = pdu.PortStateOn
	}
	port.LastShutdown = w.lastShutdown(portID)
	return port, nil
}

func (w *Worker) setPortState(ctx context.Context, portID string, state pdu.PortState) (uint64, error) {
	if !state.Controllable() {
		return 0, errors.New(errors.PDUPortStateInvalid, string(state)).
			WithMetadata("pdu", w.name).
			WithMetadata("port_id", portID)
	}

	if err := w.WaitReady(ctx); err != nil {
		return 0, errors.Wrap(err, errors.PDUNotReady).
			WithMetadata("pdu", w.name)
	}

	port, ok := w.portByID(portID)
	if !ok {
		return 0, errors.New(errors.PDUPortNotFound, portID).
			WithMetadata("pdu", w.name).
			WithMetadata("port_id", portID)
	}

	if state == pdu.PortStateOn {
		// The snapshot may predate a shutdown issued through this worker
		port.MinOffTime = w.minOffTime
		port.LastShutdown = w.lastShutdown(portID)
		if err := w.waitMinOffTime(ctx, port); err != nil {
			return 0, err
		}
	}

	// Stop aborts a control call in flight as well as the caller
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(w.ctx, cancel)()

	w.driverMu.Lock()
	defer w.driverMu.Unlock()

	if w.driver == nil {
		return 0, errors.New(errors.PDUDriverUnavailable, w.Error()).
			WithMetadata("pdu", w.name)
	}

	if err := safeCall(func() error { return w.driver.SetPortState(ctx, portID, state) }); err != nil {
		return 0, errors.Wrap(err, errors.PDUControlFailed).
			WithMetadata("pdu", w.name).
			WithMetadata("port_id", portID).
			WithMetadata("state", string(state))
	}

	if state == pdu.PortStateOff {
		w.recordShutdown(portID, time.Now())
	}

	w.logger.Info("PDU port state changed",
		"pdu", w.name,
		"port_id", portID,
		"state", state)

	w.pollMu.Lock()
	seq := w.pollSeq
	w.pollMu.Unlock()

	select {
	case w.kick <- struct{}{}:
	default:
	}

	return seq, nil
}

// waitMinOffTime blocks until port may be powered on again
func (w *Worker) waitMinOffTime(ctx context.Context, port pdu.Port) error {
	remaining := time.Until(port.PowerOnAllowedAt())
	if remaining <= 0 {
		return nil
	}

	w.logger.Info("Enforcing PDU port minimum off time",
		"pdu", w.name,
		"port_id", port.ID,
		"min_off_time", port.MinOffTime.String(),
		"remaining", remaining.String())

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
	case <-w.ctx.Done():
	}

	return errors.New(errors.PDUPortMinOffTime, port.ID).
		WithMetadata("pdu", w.name).
		WithMetadata("port_id", port.ID).
		WithMetadata("min_off_time", port.MinOffTime.String()).
		WithMetadata("power_on_allowed_at", port.PowerOnAllowedAt().Format(time.RFC3339Nano))
}

// waitPolled blocks until a snapshot newer than seq has been published
func (w *Worker) waitPolled(ctx context.Context, seq uint64) error {
	for {
		w.pollMu.Lock()
		cur, polled := w.pollSeq, w.polled
		w.pollMu.Unlock()

		if cur > seq {
			return nil
		}

		select {
		case <-polled:
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return errors.New(errors.PDUWorkerStopped, w.name).WithMetadata("pdu", w.name)
		}
	}
}

func (w *Worker) portByID(portID string) (pdu.Port, bool) {
	for _, p := range *w.ports.Load() {
		if p.ID == portID {
			return p, true
		}
	}
	return pdu.Port{}, false
}

func (w *Worker) recordShutdown(portID string, at time.Time) {
	w.shutdownMu.Lock()
	defer w.shutdownMu.Unlock()
	w.shutdowns[portID] = at
}

func (w *Worker) lastShutdown(portID string) *time.Time {
	w.shutdownMu.Lock()
	defer w.shutdownMu.Unlock()

	at, ok := w.shutdowns[portID]
	if !ok {
		return nil
	}
	return &at
}

// inheritShutdowns carries shutdown times over from the worker being
// replaced. Must be called before Start.
func (w *Worker) inheritShutdowns(from *Worker) {
	from.shutdownMu.Lock()
	defer from.shutdownMu.Unlock()

	w.shutdownMu.Lock()
	defer w.shutdownMu.Unlock()
	for id, at := range from.shutdowns {
		if _, ok := w.shutdowns[id]; !ok {
			w.shutdowns[id] = at
		}
	}
}

// MinOffTime returns the minimum off time applied to every port
func (w *Worker) MinOffTime() time.Duration { return w.minOffTime }

// PollingInterval returns the current delay between polls
func (w *Worker) PollingInterval() time.Duration {
	return time.Duration(w.pollingInterval.Load())
}

// SetPollingInterval hot-updates the delay between polls. A wait already in
// progress picks the new value up within one tick.
func (w *Worker) SetPollingInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	w.pollingInterval.Store(int64(d))
}

func (w *Worker) Model() string { return w.model }
func (w *Worker) Name() string  { return w.name }

// Config returns a shallow copy of the driver configuration
func (w *Worker) Config() pdu.Config {
	if w.config == nil {
		return nil
	}
	return maps.Clone(w.config)
}

// ReservedPortIDs returns the reserved port ids in sorted order
func (w *Worker) ReservedPortIDs() []string {
	ids := make([]string, 0, len(w.reserved))
	for id := range w.reserved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsReserved reports whether portID is part of the reserved set
func (w *Worker) IsReserved(portID string) bool {
	_, ok := w.reserved[portID]
	return ok
}

// Equal compares worker identity: model, name, config and reserved ports.
// The polling interval is not part of it.
func (w *Worker) Equal(other *Worker) bool {
	if w == nil || other == nil {
		return w == other
	}

	if w.model != other.model || w.name != other.name {
		return false
	}

	if len(w.config) != 0 || len(other.config) != 0 {
		if !reflect.DeepEqual(w.config, other.config) {
			return false
		}
	}

	return maps.Equal(w.reserved, other.reserved)
}

// run is the polling loop. It only returns once the worker is stopped.
func (w *Worker) run() {
	defer w.doneOnce.Do(func() { close(w.done) })
	defer w.closeDriver()

	// Even if stopped meanwhile, so that the done channels of replaced
	// workers close in order
	if w.after != nil {
		<-w.after
	}

	w.logger.Info("PDU worker started",
		"pdu", w.name,
		"model", w.model,
		"polling_interval", w.PollingInterval().String())

	failures := 0
	lastState := w.State()

	for w.ctx.Err() == nil {
		if !w.ensureDriver() {
			delay := w.backoff.NextBackOff()
			w.wait(func() time.Duration { return delay }, false)
			lastState = w.logTransition(lastState)
			continue
		}

		if err := w.poll(); err != nil {
			failures++
			if failures >= w.opts.MaxConsecutiveFailures {
				w.logger.Warn("Discarding PDU driver after consecutive poll failures",
					"pdu", w.name,
					"failures", failures)
				w.closeDriver()
				driverRebuildsTotal.WithLabelValues(w.name).Inc()
				failures = 0
			}
		} else {
			failures = 0
		}

		lastState = w.logTransition(lastState)
		w.wait(w.PollingInterval, true)
	}

	w.logger.Info("PDU worker stopped", "pdu", w.name)
}

// ensureDriver builds the driver if there is none. Failures are recorded and
// reported as false; the caller backs off and retries.
func (w *Worker) ensureDriver() bool {
	w.driverMu.Lock()
	defer w.driverMu.Unlock()

	if w.driver != nil {
		return true
	}

	var drv pdu.Driver
	err := safeCall(func() error {
		var cerr error
		drv, cerr = w.ctor(w.config)
		return cerr
	})
	if err == nil && drv == nil {
		err = fmt.Errorf("driver %q returned no instance", w.model)
	}
	if err != nil {
		w.recordError(err)
		driverConstructionsTotal.WithLabelValues(w.name, "error").Inc()
		w.logger.Warn("Failed to construct PDU driver",
			"pdu", w.name,
			"model", w.model,
			"err", err,
			"retry_in", w.opts.ConstructionBackoff.String())
		return false
	}

	driverConstructionsTotal.WithLabelValues(w.name, "success").Inc()
	w.backoff.Reset()
	w.driver = drv
	w.logger.Debug("PDU driver constructed", "pdu", w.name, "model", w.model)
	return true
}

// poll runs one cycle against the driver. A failure keeps the previous
// snapshot and does not fire the start latch.
func (w *Worker) poll() error {
	w.driverMu.Lock()
	defer w.driverMu.Unlock()

	start := time.Now()
	var ports []pdu.Port
	err := safeCall(func() error {
		var perr error
		ports, perr = w.driver.Ports(w.ctx)
		return perr
	})

	pollDuration.WithLabelValues(w.name).Observe(time.Since(start).Seconds())

	if err != nil {
		// Cancelled by Stop, not a driver fault
		if w.ctx.Err() != nil {
			return nil
		}
		w.recordError(err)
		pollsTotal.WithLabelValues(w.name, "error").Inc()
		w.logger.Warn("Failed to poll PDU",
			"pdu", w.name,
			"err", errors.Wrap(err, errors.PDUPollFailed).Error())
		return err
	}

	now := time.Now()
	previous := make(map[string]pdu.PortState)
	for _, p := range *w.ports.Load() {
		previous[p.ID] = p.State
	}

	snapshot := make([]pdu.Port, len(ports))
	for i, p := range ports {
		p.Reserved = w.IsReserved(p.ID)
		if p.State == "" {
			p.State = pdu.PortStateUnknown
		}
		if p.LastPolled.IsZero() {
			p.LastPolled = now
		}
		if previous[p.ID] == pdu.PortStateOn && p.State == pdu.PortStateOff {
			w.recordShutdown(p.ID, now)
		}
		p.MinOffTime = w.minOffTime
		p.LastShutdown = w.lastShutdown(p.ID)
		snapshot[i] = p
	}

	w.ports.Store(&snapshot)
	w.lastErr.Store(nil)
	w.startedOnce.Do(func() { close(w.started) })
	pollsTotal.WithLabelValues(w.name, "success").Inc()

	w.pollMu.Lock()
	w.pollSeq++
	close(w.polled)
	w.polled = make(chan struct{})
	w.pollMu.Unlock()

	return nil
}

// wait sleeps for d(), re-evaluated every tick so interval updates apply to
// a sleep in progress. Stop wakes it immediately; so does a kick when
// kickable is set.
func (w *Worker) wait(d func() time.Duration, kickable bool) {
	begin := time.Now()
	for {
		remaining := d() - time.Since(begin)
		if remaining <= 0 {
			return
		}

		timer := time.NewTimer(min(remaining, w.opts.Tick))
		var kick <-chan struct{}
		if kickable {
			kick = w.kick
		}

		select {
		case <-w.ctx.Done():
			timer.Stop()
			return
		case <-kick:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *Worker) recordError(err error) {
	msg := err.Error()
	w.lastErr.Store(&msg)
}

func (w *Worker) closeDriver() {
	w.driverMu.Lock()
	defer w.driverMu.Unlock()

	if w.driver == nil {
		return
	}
	if c, ok := w.driver.(io.Closer); ok {
		if err := c.Close(); err != nil {
			w.logger.Debug("Failed to close PDU driver", "pdu", w.name, "err", err)
		}
	}
	w.driver = nil
}

func (w *Worker) logTransition(prev State) State {
	cur := w.State()
	if cur != prev {
		w.logger.Info("PDU state transition",
			"pdu", w.name,
			"old_state", prev,
			"new_state", cur,
			"error", w.Error())
	}
	return cur
}

// safeCall turns a panicking driver into an error so the polling goroutine
// survives it.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panic: %v", r)
		}
	}()
	return fn()
}
