// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/stratastor/logger"
	pduerrors "github.com/stratastor/pdud/pkg/errors"
)

// Dangerous characters that could enable command injection
var dangerousChars = "&|><$`\\[];{}"

// Command execution timeout
const defaultCommandTimeout = 30 * time.Second

// Executor runs operator-configured tools without a shell
type Executor struct {
	logger  logger.Logger
	timeout time.Duration
}

// NewExecutor returns an executor applying timeout to calls whose context has
// no deadline. A non-positive timeout selects the default.
func NewExecutor(l logger.Logger, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &Executor{logger: l, timeout: timeout}
}

// RunLine splits line with POSIX shell quoting rules and runs the result.
// No shell is involved, so quoting only groups words.
func (e *Executor) RunLine(ctx context.Context, line string) ([]byte, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, pduerrors.Wrap(err, pduerrors.CommandInvalidInput).
			WithMetadata("command", line)
	}
	if len(words) == 0 {
		return nil, pduerrors.New(pduerrors.CommandInvalidInput, "empty command")
	}
	return e.Run(ctx, words[0], words[1:]...)
}

// Run executes a system command with proper security checks
func (e *Executor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// Validate command and arguments
	if err := validateCommand(name, args); err != nil {
		return nil, err
	}

	// Apply timeout if not already set
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmdString := shellquote.Join(append([]string{name}, args...)...)
	e.logger.Debug("Executing command", "cmd", cmdString)

	cmd := exec.CommandContext(ctx, name, args...)

	// Prevent environment leakage into operator tools
	cmd.Env = []string{}

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return output, pduerrors.Wrap(err, pduerrors.CommandTimeout).
				WithMetadata("command", cmdString).
				WithMetadata("timeout", e.timeout.String())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.logger.Debug("Command execution failed with exit code",
				"cmd", cmdString,
				"exit_code", exitErr.ExitCode(),
				"output", string(output))

			return output, pduerrors.Wrap(err, pduerrors.CommandExecution).
				WithMetadata("command", cmdString).
				WithMetadata("exit_code", fmt.Sprintf("%d", exitErr.ExitCode())).
				WithMetadata("output", strings.TrimSpace(string(output)))
		}

		return output, pduerrors.Wrap(err, pduerrors.CommandNotFound).
			WithMetadata("command", cmdString)
	}

	return output, nil
}

// validateCommand performs security checks on the command and arguments
func validateCommand(name string, args []string) error {
	if name == "" {
		return pduerrors.New(pduerrors.CommandInvalidInput, "empty command")
	}

	// Check for absolute path or valid command name
	if !strings.HasPrefix(name, "/") && strings.ContainsAny(name, "/\\") {
		return pduerrors.New(
			pduerrors.CommandInvalidInput,
			"relative paths are not allowed for commands",
		)
	}

	if strings.ContainsAny(name, dangerousChars) {
		return pduerrors.New(pduerrors.CommandInvalidInput, "command contains invalid characters")
	}

	for _, arg := range args {
		if strings.ContainsAny(arg, dangerousChars) {
			return pduerrors.New(
				pduerrors.CommandInvalidInput,
				"argument contains invalid characters",
			).WithMetadata("argument", arg)
		}

		if strings.Contains(arg, "..") {
			return pduerrors.New(pduerrors.CommandInvalidInput, "path traversal not allowed")
		}
	}

	if len(args) > 64 {
		return pduerrors.New(pduerrors.CommandInvalidInput, "too many arguments")
	}

	return nil
}
