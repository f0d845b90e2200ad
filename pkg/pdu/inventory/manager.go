// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/pdu"
	"github.com/stratastor/pdud/pkg/pdu/daemon"
)

const DefaultReconcileInterval = 60 * time.Second

// SaveFunc persists the complete inventory after a reservation change
type SaveFunc func(specs []daemon.Spec) error

// Config tunes a Manager
type Config struct {
	// ReconcileInterval is the period of the background Sync. Zero selects
	// the default, negative disables the job.
	ReconcileInterval time.Duration

	// Save is optional; without it reservations live in memory only
	Save SaveFunc
}

// Manager is the configured set of PDUs. It resolves names to workers
// through the registry, creating or replacing them as the inventory changes.
type Manager struct {
	logger   logger.Logger
	registry *daemon.Registry
	cfg      Config

	mu    sync.Mutex
	specs map[string]daemon.Spec

	scheduler gocron.Scheduler
	started   bool
}

// NewManager validates specs and returns a manager that has not started any
// worker yet.
func NewManager(l logger.Logger, registry *daemon.Registry, specs []daemon.Spec, cfg Config) (*Manager, error) {
	byName, err := index(specs)
	if err != nil {
		return nil, err
	}

	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = DefaultReconcileInterval
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create reconcile scheduler: %w", err)
	}

	return &Manager{
		logger:    l,
		registry:  registry,
		cfg:       cfg,
		specs:     byName,
		scheduler: scheduler,
	}, nil
}

// Validate applies the checks NewManager and Replace run: valid specs,
// unique names and registered drivers.
func Validate(specs []daemon.Spec) error {
	_, err := index(specs)
	return err
}

func index(specs []daemon.Spec) (map[string]daemon.Spec, error) {
	byName := make(map[string]daemon.Spec, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[s.Name]; dup {
			return nil, errors.New(errors.PDUInvalidSpec, "duplicate PDU name").
				WithMetadata("pdu", s.Name)
		}
		if _, err := pdu.LookupDriver(s.Model); err != nil {
			return nil, errors.Wrap(err, errors.PDUInvalidSpec).
				WithMetadata("pdu", s.Name)
		}
		byName[s.Name] = cloneSpec(s)
	}
	return byName, nil
}

func cloneSpec(s daemon.Spec) daemon.Spec {
	s.ReservedPortIDs = slices.Clone(s.ReservedPortIDs)
	return s
}

// Start runs an initial Sync and schedules the periodic one. Workers that
// fail to come up are reported through their own state, not here.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("Starting PDU inventory",
		"pdus", len(m.Names()),
		"reconcile_interval", m.cfg.ReconcileInterval.String())

	if err := m.Sync(); err != nil {
		m.logger.Warn("Initial PDU sync incomplete", "err", err)
	}

	if m.cfg.ReconcileInterval > 0 {
		_, err := m.scheduler.NewJob(
			gocron.DurationJob(m.cfg.ReconcileInterval),
			gocron.NewTask(func() {
				if err := m.Sync(); err != nil {
					m.logger.Warn("Periodic PDU sync incomplete", "err", err)
				}
			}),
			gocron.WithName("pdu_reconcile"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule PDU reconcile: %w", err)
		}
	}

	m.scheduler.Start()

	m.mu.Lock()
	m.started = true
	m.mu.Unlock()

	return nil
}

// Stop shuts the scheduler down and stops every worker
func (m *Manager) Stop() error {
	m.mu.Lock()
	started := m.started
	m.started = false
	m.mu.Unlock()

	var err error
	if started {
		err = m.scheduler.Shutdown()
	}
	m.registry.Stop(true)

	m.logger.Info("PDU inventory stopped")
	return err
}

// Names returns the configured PDU names in sorted order
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.specs))
	for name := range m.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns a copy of the inventory sorted by name
func (m *Manager) Specs() []daemon.Spec {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedSpecsLocked()
}

func (m *Manager) sortedSpecsLocked() []daemon.Spec {
	specs := make([]daemon.Spec, 0, len(m.specs))
	for _, s := range m.specs {
		specs = append(specs, cloneSpec(s))
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

func (m *Manager) spec(name string) (daemon.Spec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.specs[name]
	if !ok {
		return daemon.Spec{}, errors.New(errors.PDUNotFound, name).WithMetadata("pdu", name)
	}
	return cloneSpec(s), nil
}

// Get returns the worker of a configured PDU, updating it in place or
// replacing it if the inventory entry changed since it was created.
func (m *Manager) Get(name string) (*daemon.Worker, error) {
	s, err := m.spec(name)
	if err != nil {
		return nil, err
	}
	return m.registry.GetOrCreate(s, true)
}

// Statuses returns the status of every configured PDU keyed by name
func (m *Manager) Statuses() (map[string]daemon.Status, error) {
	out := make(map[string]daemon.Status)
	for _, name := range m.Names() {
		w, err := m.Get(name)
		if err != nil {
			return nil, err
		}
		out[name] = w.Status()
	}
	return out, nil
}

// GetPort waits for the PDU to become ready (bounded by ctx) and returns one
// port from its latest snapshot.
func (m *Manager) GetPort(ctx context.Context, name, portID string) (pdu.Port, error) {
	w, err := m.Get(name)
	if err != nil {
		return pdu.Port{}, err
	}

	port, ok := w.GetPortByID(ctx, portID)
	if !ok {
		if !w.Started() {
			return pdu.Port{}, errors.New(errors.PDUNotReady, w.Error()).
				WithMetadata("pdu", name).
				WithMetadata("state", string(w.State()))
		}
		return pdu.Port{}, errors.New(errors.PDUPortNotFound, portID).
			WithMetadata("pdu", name).
			WithMetadata("port_id", portID)
	}
	return port, nil
}

// SetPortState changes the power state of an unreserved port
func (m *Manager) SetPortState(ctx context.Context, name, portID string, state pdu.PortState) error {
	w, err := m.Get(name)
	if err != nil {
		return err
	}

	if w.IsReserved(portID) {
		return errors.New(errors.PDUPortReserved, portID).
			WithMetadata("pdu", name).
			WithMetadata("port_id", portID)
	}

	return w.SetPortState(ctx, portID, state)
}

// PortUpdate is a combined change to one port. Nil fields are left alone.
type PortUpdate struct {
	State    *pdu.PortState
	Reserved *bool
}

// UpdatePort applies a state change and a reservation change to one port and
// returns the port as seen after both. Everything that can be checked up
// front is checked before anything changes.
//
// A request that sets the reservation explicitly may change the state of a
// reserved port: its state change is applied first, as if the port was
// unreserved, and the reservation last.
func (m *Manager) UpdatePort(ctx context.Context, name, portID string, update PortUpdate) (pdu.Port, error) {
	if update.State == nil && update.Reserved == nil {
		return pdu.Port{}, errors.New(errors.ServerRequestValidation, "nothing to update").
			WithMetadata("pdu", name).
			WithMetadata("port_id", portID)
	}
	if update.State != nil && !update.State.Controllable() {
		return pdu.Port{}, errors.New(errors.PDUPortStateInvalid, string(*update.State)).
			WithMetadata("pdu", name).
			WithMetadata("port_id", portID)
	}

	w, err := m.Get(name)
	if err != nil {
		return pdu.Port{}, err
	}

	var port pdu.Port
	if update.State != nil {
		if update.Reserved == nil && w.IsReserved(portID) {
			return pdu.Port{}, errors.New(errors.PDUPortReserved, portID).
				WithMetadata("pdu", name).
				WithMetadata("port_id", portID)
		}
		if _, err := m.GetPort(ctx, name, portID); err != nil {
			return pdu.Port{}, err
		}

		port, err = w.SetPortStateAndWait(ctx, portID, *update.State)
		if err != nil {
			return pdu.Port{}, err
		}
	}

	if update.Reserved != nil {
		w, err = m.setReserved(ctx, name, portID, *update.Reserved)
		if err != nil {
			return pdu.Port{}, err
		}
		if update.State == nil {
			// Not ready yet is fine: the reservation is already saved
			port, _ = w.GetPortByID(ctx, portID)
			port.ID = portID
		}
		port.Reserved = *update.Reserved
	}

	return port, nil
}

// ReservePort marks a port as reserved and returns the worker now serving
// the PDU. The worker is replaced since the reserved set is part of its
// identity.
func (m *Manager) ReservePort(ctx context.Context, name, portID string) (*daemon.Worker, error) {
	return m.setReserved(ctx, name, portID, true)
}

// UnreservePort reverses ReservePort
func (m *Manager) UnreservePort(ctx context.Context, name, portID string) (*daemon.Worker, error) {
	return m.setReserved(ctx, name, portID, false)
}

func (m *Manager) setReserved(ctx context.Context, name, portID string, reserved bool) (*daemon.Worker, error) {
	// Unknown ports are only rejected once the PDU has reported its ports
	w, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	if w.Started() {
		if _, ok := w.GetPortByID(ctx, portID); !ok {
			return nil, errors.New(errors.PDUPortNotFound, portID).
				WithMetadata("pdu", name).
				WithMetadata("port_id", portID)
		}
	}

	m.mu.Lock()
	s, ok := m.specs[name]
	if !ok {
		m.mu.Unlock()
		return nil, errors.New(errors.PDUNotFound, name).WithMetadata("pdu", name)
	}

	ids := slices.DeleteFunc(slices.Clone(s.ReservedPortIDs), func(id string) bool { return id == portID })
	if reserved {
		ids = append(ids, portID)
	}
	slices.Sort(ids)

	if slices.Equal(ids, sortedCopy(s.ReservedPortIDs)) {
		m.mu.Unlock()
		return w, nil
	}

	s.ReservedPortIDs = ids
	m.specs[name] = s
	snapshot := m.sortedSpecsLocked()
	m.mu.Unlock()

	m.logger.Info("PDU port reservation changed",
		"pdu", name,
		"port_id", portID,
		"reserved", reserved)

	if m.cfg.Save != nil {
		if err := m.cfg.Save(snapshot); err != nil {
			m.logger.Error("Failed to persist PDU inventory", "err", err)
			return nil, errors.Wrap(err, errors.ConfigWriteFailed).WithMetadata("pdu", name)
		}
	}

	return m.Get(name)
}

func sortedCopy(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

// Sync brings the registry in line with the inventory: every configured PDU
// gets an up to date worker and workers of removed PDUs are unregistered.
func (m *Manager) Sync() error {
	specs := m.Specs()

	wanted := make(map[string]struct{}, len(specs))
	var errs []error
	for _, s := range specs {
		wanted[s.Name] = struct{}{}
		if _, err := m.registry.GetOrCreate(s, true); err != nil {
			errs = append(errs, err)
		}
	}

	for _, name := range m.registry.Names() {
		if _, ok := wanted[name]; !ok {
			m.logger.Info("PDU removed from inventory", "pdu", name)
			m.registry.Unregister(name)
		}
	}

	return stderrors.Join(errs...)
}

// Replace swaps the whole inventory, typically after a configuration
// reload, and syncs. The previous inventory is kept if specs is invalid.
func (m *Manager) Replace(specs []daemon.Spec) error {
	byName, err := index(specs)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.specs = byName
	m.mu.Unlock()

	m.logger.Info("PDU inventory replaced", "pdus", len(byName))
	return m.Sync()
}
