package main

import (
	"errors"
	"os"

	"github.com/grovetools/cowork/cli"
	"github.com/grovetools/cowork/cmd"
	"github.com/grovetools/cowork/pkg/profiling"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"cowork",
		"Shared code-generation daemon for teams working in the same directories",
	)
	cli.SetVersionTemplate(rootCmd)
	profiling.NewCobraProfiler().AddFlags(rootCmd)

	rootCmd.AddCommand(cmd.NewServeCmd())
	rootCmd.AddCommand(cmd.NewStopCmd())
	rootCmd.AddCommand(cmd.NewStatusCmd())
	rootCmd.AddCommand(cmd.NewSessionsCmd())
	rootCmd.AddCommand(cmd.NewKillCmd())
	rootCmd.AddCommand(cmd.NewStatsCmd())
	rootCmd.AddCommand(cmd.NewTopCmd())
	rootCmd.AddCommand(cmd.NewLogsCmd())
	rootCmd.AddCommand(cmd.NewConfigCmd())
	rootCmd.AddCommand(cmd.NewPathsCmd())
	rootCmd.AddCommand(cli.NewVersionCommand("cowork"))

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrStopped) {
			cli.NewErrorHandler(cli.GetOptions(rootCmd).Verbose).Handle(err)
		}
		os.Exit(1)
	}
}
