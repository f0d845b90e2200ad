// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package pdu

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratastor/pdud/config"
	"github.com/stratastor/pdud/pkg/pdu/api"
	"github.com/stratastor/pdud/pkg/pdu/daemon"
	"gopkg.in/yaml.v2"
)

var (
	serverURL string
	timeout   time.Duration
)

// NewPDUCmd is the command line client of a running daemon
func NewPDUCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdu",
		Short: "Inspect and control PDUs through the running daemon",
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Daemon base URL (default http://localhost:<server.port>)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newPortCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newReserveCmd(true))
	cmd.AddCommand(newReserveCmd(false))
	cmd.AddCommand(newSyncCmd())
	return cmd
}

func newClient() (*Client, error) {
	base := serverURL
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", config.GetConfig().Server.Port)
	}
	return NewClient(base, timeout)
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List PDUs and their worker state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			pdus, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			printStatuses(pdus)
			return nil
		},
	}
}

func printStatuses(pdus map[string]daemon.Status) {
	names := make([]string, 0, len(pdus))
	for name := range pdus {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODEL\tSTATE\tPORTS\tINTERVAL\tERROR")
	for _, name := range names {
		s := pdus[name]
		errMsg := "-"
		if s.Error != nil {
			errMsg = *s.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			name, s.Model, s.State, len(s.Ports), s.PollingInterval, errMsg)
	}
	tw.Flush()
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <pdu>",
		Short: "Show a PDU with its latest port snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			status, err := c.Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printYAML(status)
		},
	}
}

func newPortCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "port <pdu> <port-id>",
		Short: "Show one port, waiting for the first poll if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			port, err := c.Port(cmd.Context(), args[0], args[1], wait)
			if err != nil {
				return err
			}
			return printYAML(port)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long the daemon waits for the PDU to become ready")
	return cmd
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <pdu> <port-id> <on|off|reboot>",
		Short: "Change the power state of a port",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			state := args[2]
			port, err := c.UpdatePort(cmd.Context(), args[0], args[1], api.PortUpdateRequest{State: &state})
			if err != nil {
				return err
			}
			fmt.Printf("%s port %s: state change to %s requested (last polled %s)\n",
				args[0], port.ID, state, port.State)
			return nil
		},
	}
}

func newReserveCmd(reserve bool) *cobra.Command {
	use, short := "reserve", "Reserve a port so it cannot be switched"
	if !reserve {
		use, short = "unreserve", "Release a reserved port"
	}

	return &cobra.Command{
		Use:   use + " <pdu> <port-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			port, err := c.UpdatePort(cmd.Context(), args[0], args[1], api.PortUpdateRequest{Reserved: &reserve})
			if err != nil {
				return err
			}
			fmt.Printf("%s port %s: reserved=%t\n", args[0], port.ID, port.Reserved)
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the daemon's workers with its inventory now",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			names, err := c.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Synced %d PDUs\n", len(names))
			return nil
		},
	}
}

func printYAML(v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal to YAML: %v", err)
	}
	fmt.Print(string(out))
	return nil
}
