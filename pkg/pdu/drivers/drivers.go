// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package drivers links every built-in PDU driver into the binary
package drivers

import (
	_ "github.com/stratastor/pdud/pkg/pdu/drivers/command"
	_ "github.com/stratastor/pdud/pkg/pdu/drivers/dummy"
	_ "github.com/stratastor/pdud/pkg/pdu/drivers/vpdu"
)
