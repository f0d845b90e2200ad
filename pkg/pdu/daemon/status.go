// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package daemon

import "github.com/stratastor/pdud/pkg/pdu"

// Status is the serializable view of a worker
type Status struct {
	Name            string              `json:"name" yaml:"name"`
	Model           string              `json:"model" yaml:"model"`
	State           State               `json:"state" yaml:"state"`
	Error           *string             `json:"error" yaml:"error"`
	PollingInterval string              `json:"polling_interval" yaml:"polling_interval"`
	MinOffTime      string              `json:"min_off_time" yaml:"min_off_time"`
	ReservedPortIDs []string            `json:"reserved_port_ids" yaml:"reserved_port_ids"`
	Ports           map[string]pdu.Port `json:"ports" yaml:"ports"`
}

// Status snapshots the worker. Error is nil when no error is recorded.
func (w *Worker) Status() Status {
	ports := w.Ports()
	byID := make(map[string]pdu.Port, len(ports))
	for _, p := range ports {
		byID[p.ID] = p
	}

	var errMsg *string
	if msg := w.Error(); msg != "" {
		errMsg = &msg
	}

	return Status{
		Name:            w.name,
		Model:           w.model,
		State:           w.State(),
		Error:           errMsg,
		PollingInterval: w.PollingInterval().String(),
		MinOffTime:      w.MinOffTime().String(),
		ReservedPortIDs: w.ReservedPortIDs(),
		Ports:           byID,
	}
}
