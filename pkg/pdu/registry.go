// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package pdu

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stratastor/pdud/pkg/errors"
)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Constructor{}
)

// RegisterDriver makes a driver available under model. It panics if model is
// already taken; drivers register from init().
func RegisterDriver(model string, ctor Constructor) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if ctor == nil {
		panic(fmt.Sprintf("nil constructor for PDU driver %q", model))
	}
	if _, exists := drivers[model]; exists {
		panic(fmt.Sprintf("PDU driver already registered for model %q", model))
	}
	drivers[model] = ctor
}

// LookupDriver resolves the constructor registered for model.
func LookupDriver(model string) (Constructor, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()

	ctor, ok := drivers[model]
	if !ok {
		return nil, errors.New(errors.PDUDriverNotFound, model).
			WithMetadata("model", model)
	}
	return ctor, nil
}

// Drivers lists the registered models in sorted order.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	models := make([]string, 0, len(drivers))
	for m := range drivers {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}
