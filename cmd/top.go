package cmd

import (
	"context"
	"errors"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/grovetools/cowork/logging"
	"github.com/grovetools/cowork/tui/dashboard"
)

// NewTopCmd returns the command that opens the live dashboard.
func NewTopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live view of running executions and daemon activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			// Log lines would tear the alternate screen.
			logging.SetGlobalOutput(io.Discard)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			updates, err := client.StreamActivity(ctx)
			if err != nil {
				updates = nil
			}

			interval, _ := cmd.Flags().GetDuration("interval")
			p := tea.NewProgram(dashboard.New(client, updates, interval), tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = p.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Duration("interval", 2*time.Second, "How often to poll the daemon")
	addListenFlag(cmd)
	return cmd
}
