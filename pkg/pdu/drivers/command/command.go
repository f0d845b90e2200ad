// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package command drives a PDU through operator-provided tools.
//
// Configuration:
//
//	list: "/usr/local/bin/pductl --host 10.0.0.7 status"
//	set: "/usr/local/bin/pductl --host 10.0.0.7 {state} {port}"
//	timeout: 10s
//
// The list command prints one port per line as "id state [label...]"; blank
// lines and lines starting with '#' are skipped. The set command is optional;
// without it the PDU is read-only. Command lines are split with POSIX quoting
// rules and run without a shell.
package command

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/internal/command"
	"github.com/stratastor/pdud/pkg/errors"
	"github.com/stratastor/pdud/pkg/pdu"
)

const (
	Model = "command"

	portPlaceholder  = "{port}"
	statePlaceholder = "{state}"
)

func init() {
	pdu.RegisterDriver(Model, New)
}

type Driver struct {
	list []string
	set  []string
	exec *command.Executor
}

// New parses and validates the command lines
func New(cfg pdu.Config) (pdu.Driver, error) {
	listLine := cfg.String("list", "")
	if listLine == "" {
		return nil, errors.New(errors.PDUDriverConstructFailed, "command driver requires a 'list' command").
			WithMetadata("model", Model)
	}

	list, err := splitLine(listLine)
	if err != nil {
		return nil, err
	}

	var set []string
	if setLine := cfg.String("set", ""); setLine != "" {
		set, err = splitLine(setLine)
		if err != nil {
			return nil, err
		}
		if !strings.Contains(setLine, portPlaceholder) || !strings.Contains(setLine, statePlaceholder) {
			return nil, errors.New(errors.PDUDriverConstructFailed,
				"'set' command must contain "+portPlaceholder+" and "+statePlaceholder).
				WithMetadata("model", Model)
		}
	}

	l, err := logger.NewTag(logger.Config{LogLevel: cfg.String("log_level", "info")}, "pdu.command")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &Driver{
		list: list,
		set:  set,
		exec: command.NewExecutor(l, cfg.Duration("timeout", 10*time.Second)),
	}, nil
}

func splitLine(line string) ([]string, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, errors.Wrap(err, errors.PDUDriverConstructFailed).
			WithMetadata("model", Model).
			WithMetadata("command", line)
	}
	if len(words) == 0 {
		return nil, errors.New(errors.PDUDriverConstructFailed, "empty command line").
			WithMetadata("model", Model)
	}
	return words, nil
}

func (d *Driver) Ports(ctx context.Context) ([]pdu.Port, error) {
	out, err := d.exec.Run(ctx, d.list[0], d.list[1:]...)
	if err != nil {
		return nil, err
	}
	return parsePorts(out)
}

func parsePorts(out []byte) ([]pdu.Port, error) {
	now := time.Now()
	var ports []pdu.Port

	scanner := bufio.NewScanner(bytes.NewReader(out))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, errors.New(errors.CommandOutputParse,
				fmt.Sprintf("line %d: expected 'id state [label]', got %q", lineNo, line))
		}

		state, err := pdu.ParsePortState(fields[1])
		if err != nil {
			return nil, errors.Wrap(err, errors.CommandOutputParse).
				WithMetadata("line", fmt.Sprintf("%d", lineNo))
		}

		ports = append(ports, pdu.Port{
			ID:         fields[0],
			Label:      strings.Join(fields[2:], " "),
			State:      state,
			LastPolled: now,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CommandOutputParse)
	}

	return ports, nil
}

func (d *Driver) SetPortState(ctx context.Context, portID string, state pdu.PortState) error {
	if d.set == nil {
		return errors.New(errors.PDUControlFailed, "PDU is read-only, no 'set' command configured").
			WithMetadata("model", Model)
	}

	args := make([]string, len(d.set))
	for i, word := range d.set {
		word = strings.ReplaceAll(word, portPlaceholder, portID)
		args[i] = strings.ReplaceAll(word, statePlaceholder, strings.ToLower(string(state)))
	}

	_, err := d.exec.Run(ctx, args[0], args[1:]...)
	return err
}
