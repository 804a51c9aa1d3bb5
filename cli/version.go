package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/cowork/version"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(componentName string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: fmt.Sprintf("Print the version of %s", componentName),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetInfo()
			if GetOptions(cmd).JSONOutput {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n%s\n", componentName, info.Version, info)
			return nil
		},
	}
}

// SetVersionTemplate makes --version print the short version line.
func SetVersionTemplate(cmd *cobra.Command) {
	info := version.GetInfo()
	cmd.Version = info.Version
	cmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} {{.Version}} (%s, %s)\n", info.Commit, info.Platform))
}
