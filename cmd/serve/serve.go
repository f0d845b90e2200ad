// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package serve

import (
	"context"
	"fmt"
	"os"

	godaemon "github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/config"
	"github.com/stratastor/pdud/pkg/lifecycle"
	"github.com/stratastor/pdud/pkg/pdu/daemon"
	_ "github.com/stratastor/pdud/pkg/pdu/drivers"
	"github.com/stratastor/pdud/pkg/pdu/inventory"
	"github.com/stratastor/pdud/pkg/server"
)

var detached bool

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the PDU daemon",
		Run:   runServe,
	}

	cmd.Flags().BoolVarP(&detached, "detach", "d", false, "Run as a daemon")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) {
	rc := config.GetConfig()
	log, err := logger.NewTag(config.NewLoggerConfig(rc), "serve")
	if err != nil {
		panic(err)
	}
	lifecycle.SetLogger(log)

	// Registered first so it runs last; serve returns once every hook ran
	hooksDone := make(chan struct{})
	lifecycle.RegisterShutdownHook(func() { close(hooksDone) })

	pidFile := config.GetPIDFilePath()

	// The reborn child's pid file is owned by go-daemon
	if !godaemon.WasReborn() {
		if err := lifecycle.EnsureSingleInstance(pidFile); err != nil {
			log.Error("Failed to start", "err", err)
			os.Exit(1)
		}
	}

	if detached || rc.Server.Daemonize {
		dctx := &godaemon.Context{
			PidFileName: pidFile,
			PidFilePerm: 0644,
			LogFileName: config.GetLogFilePath(),
			LogFilePerm: 0640,
			WorkDir:     "/",
			Umask:       027,
			Args:        daemonArgs(),
		}

		d, err := dctx.Reborn()
		if err != nil {
			log.Error("Failed to start daemon", "err", err)
			os.Exit(1)
		}

		if d != nil {
			log.Info("PDU daemon is running in the background", "pid", d.Pid)
			return
		}
		lifecycle.RegisterShutdownHook(func() {
			_ = dctx.Release()
		})
	}

	if err := startServer(log); err != nil {
		log.Error("PDU daemon exited", "err", err)
		os.Exit(1)
	}
	<-hooksDone
}

// daemonArgs re-runs the current command line in the child, keeping an
// explicit --config.
func daemonArgs() []string {
	args := []string{os.Args[0], "serve"}
	if path := config.GetLoadedConfigPath(); path != "" {
		args = append(args, "--config", path)
	}
	return args
}

func startServer(log logger.Logger) error {
	cfg := config.GetConfig()
	lcfg := config.NewLoggerConfig(cfg)

	opts, reconcile, err := inventory.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	specs, err := inventory.SpecsFromConfig(cfg.PDUs)
	if err != nil {
		return err
	}

	daemonLog, err := logger.NewTag(lcfg, "pdu.daemon")
	if err != nil {
		return err
	}
	registry, err := daemon.NewRegistry(opts, daemonLog)
	if err != nil {
		return err
	}

	inventoryLog, err := logger.NewTag(lcfg, "pdu.inventory")
	if err != nil {
		return err
	}
	manager, err := inventory.NewManager(inventoryLog, registry, specs, inventory.Config{
		ReconcileInterval: reconcile,
		Save: func(specs []daemon.Spec) error {
			return config.UpdatePDUs(inventory.SpecsToConfig(specs))
		},
	})
	if err != nil {
		return fmt.Errorf("invalid PDU inventory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lifecycle.RegisterContextCanceller(cancel)

	// Hooks run in reverse: the server stops accepting requests before the
	// workers go away.
	lifecycle.RegisterShutdownHook(func() {
		log.Info("Stopping PDU workers...")
		if err := manager.Stop(); err != nil {
			log.Error("Error during PDU inventory shutdown", "err", err)
		}
	})
	lifecycle.RegisterShutdownHook(func() {
		log.Info("Shutting down server...")
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error("Error during server shutdown", "err", err)
		}
	})

	lifecycle.RegisterReloadHook(func() error {
		reloaded, err := config.Reload()
		if err != nil {
			return err
		}
		specs, err := inventory.SpecsFromConfig(reloaded.PDUs)
		if err != nil {
			return err
		}
		log.Info("Configuration reloaded", "path", config.GetLoadedConfigPath(), "pdus", len(specs))
		return manager.Replace(specs)
	})

	go lifecycle.HandleSignals(ctx)

	if err := manager.Start(ctx); err != nil {
		return err
	}

	log.Info("Starting PDU daemon",
		"port", cfg.Server.Port,
		"pdus", len(specs),
		"polling_interval", opts.PollingInterval.String())
	return server.Start(ctx, manager)
}
