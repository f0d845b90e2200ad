// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"fmt"
	"sync"

	"github.com/stratastor/logger"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Registry maps PDU names to running workers. At most one worker polls a
// given PDU at a time; all methods are safe for concurrent use and none of
// them blocks on a worker while holding the registry lock.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*Worker
	opts    Options
	logger  logger.Logger

	// retiring holds the done channels of stopped workers that may still be
	// shutting down, so a successor for the same name starts after them
	retiring map[string]<-chan struct{}
}

// NewRegistry creates an empty registry. opts applies to every worker it
// creates.
func NewRegistry(opts Options, l logger.Logger) (*Registry, error) {
	if l == nil {
		var err error
		l, err = logger.NewTag(logger.Config{LogLevel: "info"}, "pdu.daemon")
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	return &Registry{
		workers:  make(map[string]*Worker),
		opts:     opts.withDefaults(),
		logger:   l,
		retiring: make(map[string]<-chan struct{}),
	}, nil
}

// GetOrCreate returns the worker registered under spec.Name, creating and
// starting it if there is none.
//
// For an existing worker a candidate is built from spec for comparison only.
// Without updateIfExisting the existing worker is returned untouched. With it,
// an identity-equal candidate only hot-updates the polling interval, while a
// different identity stops the old worker and starts a new one in its place.
// The replacement begins polling once the old worker has exited.
func (r *Registry) GetOrCreate(spec Spec, updateIfExisting bool) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidate, err := NewWorker(spec, r.opts, r.logger)
	if err != nil {
		return nil, err
	}

	existing, ok := r.workers[spec.Name]
	if ok && existing.State() == StateStopped {
		// Stopped behind our back; never reuse it
		r.retire(spec.Name, existing)
		ok = false
	}

	if !ok {
		candidate.startAfter(r.retiring[spec.Name])
		delete(r.retiring, spec.Name)
		r.workers[spec.Name] = candidate
		registryWorkers.Set(float64(len(r.workers)))
		r.logger.Info("PDU worker registered",
			"pdu", spec.Name,
			"model", spec.Model)
		return candidate, nil
	}

	if !updateIfExisting {
		candidate.Stop(false)
		return existing, nil
	}

	if existing.Equal(candidate) {
		candidate.Stop(false)
		if existing.PollingInterval() != candidate.PollingInterval() {
			r.logger.Info("PDU polling interval updated",
				"pdu", spec.Name,
				"old_interval", existing.PollingInterval().String(),
				"new_interval", candidate.PollingInterval().String())
			existing.SetPollingInterval(candidate.PollingInterval())
		}
		return existing, nil
	}

	r.logger.Info("PDU configuration changed, replacing worker",
		"pdu", spec.Name,
		"old_model", existing.Model(),
		"new_model", candidate.Model())

	existing.Stop(false)
	candidate.inheritShutdowns(existing)
	candidate.startAfter(existing.Done())
	r.workers[spec.Name] = candidate

	return candidate, nil
}

// retire signals w and remembers it until a successor is registered. Must be
// called with r.mu held.
func (r *Registry) retire(name string, w *Worker) {
	w.Stop(false)
	delete(r.workers, name)
	r.retiring[name] = w.Done()
	registryWorkers.Set(float64(len(r.workers)))
}

// Get returns the worker registered under name without creating one
func (r *Registry) Get(name string) (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[name]
	return w, ok
}

// Unregister stops and removes the named worker and waits for it to exit.
// Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	w, ok := r.workers[name]
	if ok {
		r.retire(name, w)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	<-w.Done()
	r.logger.Info("PDU worker unregistered", "pdu", name)
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := maps.Keys(r.workers)
	slices.Sort(names)
	return names
}

// Len returns the number of registered workers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.workers)
}

// Stop signals every worker and empties the registry. With wait it also
// blocks until all of them, including workers retired earlier, have
// exited. Calling it again is a no-op.
func (r *Registry) Stop(wait bool) {
	r.mu.Lock()
	signalled := len(r.workers)
	for name, w := range r.workers {
		r.retire(name, w)
	}
	pending := maps.Values(r.retiring)
	if wait {
		clear(r.retiring)
	}
	r.mu.Unlock()

	if wait {
		for _, done := range pending {
			<-done
		}
	}

	if signalled > 0 {
		r.logger.Info("All PDU workers stopped", "workers", signalled, "waited", wait)
	}
}
