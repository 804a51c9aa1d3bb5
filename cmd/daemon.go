package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/cowork/cli"
	"github.com/grovetools/cowork/internal/daemon/pidfile"
	"github.com/grovetools/cowork/logging"
	"github.com/grovetools/cowork/pkg/paths"
)

// NewStopCmd returns the command that stops a running daemon.
func NewStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())

			stopped, err := pidfile.Stop(paths.PidFilePath(), timeout)
			if err != nil {
				return err
			}
			if !stopped {
				pretty.Info("Daemon is not running")
				return nil
			}
			pretty.Success("Daemon stopped")
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 10*time.Second, "How long to wait for the daemon to exit")
	return cmd
}

// StatusOutput is the JSON form of `cowork status`.
type StatusOutput struct {
	Running bool                   `json:"running"`
	PID     int                    `json:"pid,omitempty"`
	Address string                 `json:"address"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// NewStatusCmd returns the command that reports whether the daemon is up.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		Long: `Reports whether the daemon answers on its configured address and, if so,
the configuration it is running with. Exits non-zero when it is stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			out := StatusOutput{Address: dialAddress(cfg.Server.Listen)}
			if _, pid, err := pidfile.IsRunning(paths.PidFilePath()); err == nil {
				out.PID = pid
			}
			out.Running = client.IsRunning(ctx)
			if out.Running {
				out.Config, _ = client.RunningConfig(ctx)
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				printStatus(cmd, out)
			}

			if !out.Running {
				return ErrStopped
			}
			return nil
		},
	}
	addListenFlag(cmd)
	return cmd
}

func printStatus(cmd *cobra.Command, out StatusOutput) {
	pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
	if !out.Running {
		pretty.Warn("Stopped")
		pretty.Field("Address", out.Address)
		return
	}

	pretty.Success("Running")
	pretty.Field("Address", out.Address)
	if out.PID > 0 {
		pretty.Field("PID", out.PID)
	}
	for _, key := range []string{"version", "tool", "timeout", "requests_per_window", "window", "config_file", "started_at"} {
		if v, ok := out.Config[key]; ok && v != "" {
			pretty.Field(key, v)
		}
	}
}
