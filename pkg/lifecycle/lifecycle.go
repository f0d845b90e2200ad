// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/pkg/errors"
)

var (
	mu            sync.Mutex
	shutdownHooks []func()
	reloadHooks   []func() error
	cancel        context.CancelFunc
	log           logger.Logger
)

func init() {
	var err error
	log, err = logger.NewTag(logger.Config{LogLevel: "info"}, "lifecycle")
	if err != nil {
		panic("failed to initialize lifecycle logger: " + err.Error())
	}
}

// SetLogger replaces the package logger, typically with one built from the
// loaded configuration.
func SetLogger(l logger.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	log = l
	mu.Unlock()
}

func RegisterShutdownHook(hook func()) {
	mu.Lock()
	defer mu.Unlock()
	shutdownHooks = append(shutdownHooks, hook)
}

// RegisterReloadHook adds a hook run on SIGHUP. Hooks run in registration
// order; a failing hook does not prevent the others from running.
func RegisterReloadHook(hook func() error) {
	mu.Lock()
	defer mu.Unlock()
	reloadHooks = append(reloadHooks, hook)
}

func RegisterContextCanceller(c context.CancelFunc) {
	mu.Lock()
	defer mu.Unlock()
	cancel = c
}

func HandleSignals(ctx context.Context) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(stop)

	for {
		select {
		case sig := <-stop:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				currentLogger().Info("Received termination signal", "signal", sig.String())
				RunShutdownHooks()
				os.Exit(0)
			case syscall.SIGHUP:
				if err := RunReloadHooks(); err != nil {
					currentLogger().Error("Reload finished with errors", "err", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunShutdownHooks cancels the registered context and runs every shutdown
// hook in reverse registration order.
func RunShutdownHooks() {
	mu.Lock()
	c := cancel
	hooks := make([]func(), len(shutdownHooks))
	copy(hooks, shutdownHooks)
	mu.Unlock()

	if c != nil {
		c()
	}
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// RunReloadHooks runs every reload hook and returns the first failure.
func RunReloadHooks() error {
	mu.Lock()
	hooks := make([]func() error, len(reloadHooks))
	copy(hooks, reloadHooks)
	mu.Unlock()

	currentLogger().Info("Reloading configuration", "hooks", len(hooks))

	var first error
	for _, hook := range hooks {
		if err := hook(); err != nil {
			currentLogger().Warn("Reload hook failed", "err", err)
			if first == nil {
				first = errors.Wrap(err, errors.LifecycleReload)
			}
		}
	}
	return first
}

func currentLogger() logger.Logger {
	mu.Lock()
	defer mu.Unlock()
	return log
}

func EnsureSingleInstance(pidPath string) error {
	if pidPath == "" {
		return errors.New(errors.LifecyclePID, "invalid PID file path")
	}

	// Check if PID file exists
	if _, err := os.Stat(pidPath); err == nil {
		pidBytes, err := os.ReadFile(pidPath)
		if err != nil {
			return errors.Wrap(err, errors.LifecyclePID).WithMetadata("path", pidPath)
		}

		content := strings.TrimSpace(string(pidBytes))
		if content == "" {
			// Remove stale empty PID file
			os.Remove(pidPath)
		} else {
			pid, err := strconv.Atoi(content)
			if err != nil {
				return errors.New(errors.LifecyclePID, fmt.Sprintf("invalid PID format: %q", content)).
					WithMetadata("path", pidPath)
			}

			// Check if process exists
			if pid != os.Getpid() {
				process, err := os.FindProcess(pid)
				if err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return errors.New(errors.LifecyclePID,
							fmt.Sprintf("another instance is already running (PID: %d)", pid)).
							WithMetadata("path", pidPath)
					}
				}
			}
			// Process not running, remove stale PID file
			os.Remove(pidPath)
		}
	}

	currentPid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(currentPid)), 0644); err != nil {
		return errors.Wrap(err, errors.LifecyclePID).WithMetadata("path", pidPath)
	}

	RegisterShutdownHook(func() {
		os.Remove(pidPath)
	})

	return nil
}

// ReadPID returns the pid recorded in pidPath
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
