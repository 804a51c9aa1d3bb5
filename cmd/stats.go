package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/grovetools/cowork/cli"
	"github.com/grovetools/cowork/internal/daemon/store"
	"github.com/grovetools/cowork/internal/rooms"
	"github.com/grovetools/cowork/logging"
	"github.com/grovetools/cowork/pkg/daemon"
)

// NewStatsCmd returns the command that prints daemon statistics.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show connection, room and activity statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newDaemonClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printStats(cmd, stats)
			return nil
		},
	}
	addListenFlag(cmd)
	return cmd
}

func printStats(cmd *cobra.Command, stats *daemon.Stats) {
	out := cmd.OutOrStdout()
	pretty := logging.NewPrettyLogger().WithWriter(out)

	pretty.Field("Uptime", stats.Uptime)
	pretty.Field("Connections", stats.TotalConnections)
	pretty.Field("Active rooms", stats.ActiveRooms)
	pretty.Field("Running executions", stats.ActiveExecutions)

	if len(stats.Activity) > 0 {
		keys := make([]string, 0, len(stats.Activity))
		for k := range stats.Activity {
			keys = append(keys, string(k))
		}
		sort.Strings(keys)
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, []string{k, strconv.Itoa(stats.Activity[store.UpdateType(k)])})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, cli.NewTable(cli.TerminalWidth(0), []string{"ACTIVITY", "COUNT"}, rows))
	}

	if len(stats.Rooms) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, cli.NewTable(cli.TerminalWidth(0), []string{"DIRECTORY", "USERS"}, roomRows(stats.Rooms)))
	}
}

func roomRows(list []rooms.RoomStatus) [][]string {
	rows := make([][]string, 0, len(list))
	for _, r := range list {
		rows = append(rows, []string{r.Directory, strconv.Itoa(r.ActiveUsers)})
	}
	return rows
}
