package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/cowork/cli"
	"github.com/grovetools/cowork/internal/executor"
	"github.com/grovetools/cowork/logging"
)

// NewSessionsCmd returns the command that lists running executions.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List running tool executions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			sessions, err := client.Sessions(cmd.Context())
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(sessions, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			if len(sessions) == 0 {
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Info("No running executions")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.NewTable(cli.TerminalWidth(0), sessionHeaders, sessionRows(sessions)))
			return nil
		},
	}
	addListenFlag(cmd)
	return cmd
}

var sessionHeaders = []string{"SESSION", "USER", "DIRECTORY", "RUNNING"}

func sessionRows(sessions []executor.SessionInfo) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.SessionID,
			s.UserID,
			s.Directory,
			s.Duration.Round(time.Second).String(),
		})
	}
	return rows
}

// NewKillCmd returns the command that stops one of the caller's executions.
func NewKillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill <session-id>",
		Short: "Stop one of your running executions",
		Long: `Terminates the tool process of a running execution. Only the user who
started an execution may kill it; set COWORK_USER to act as another user name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.KillSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success(fmt.Sprintf("Killed session %s", args[0]))
			return nil
		},
	}
	addListenFlag(cmd)
	return cmd
}
