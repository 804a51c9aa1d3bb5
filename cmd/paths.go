package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/cowork/config"
	"github.com/grovetools/cowork/logging"
	"github.com/grovetools/cowork/pkg/paths"
)

// PathsOutput lists the files and directories cowork uses.
type PathsOutput struct {
	ConfigDir     string `json:"config_dir"`
	GlobalConfig  string `json:"global_config,omitempty"`
	DataDir       string `json:"data_dir"`
	TranscriptDir string `json:"transcript_dir"`
	StateDir      string `json:"state_dir"`
	LogFile       string `json:"log_file"`
	PidFile       string `json:"pid_file"`
}

// NewPathsCmd returns the command that prints cowork's paths as JSON.
func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the paths used by cowork",
		Long: `Prints the paths in JSON format. COWORK_HOME relocates all of them;
otherwise the XDG base directories apply:
- config_dir: global cowork.yml
- data_dir: chat transcripts
- state_dir: logs and the daemon pid file`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := PathsOutput{
				ConfigDir:     paths.ConfigDir(),
				GlobalConfig:  config.GlobalConfigFile(),
				DataDir:       paths.DataDir(),
				TranscriptDir: paths.TranscriptDir(),
				StateDir:      paths.StateDir(),
				LogFile:       logging.FilePath(logging.LoadConfig(), time.Now()),
				PidFile:       paths.PidFilePath(),
			}

			jsonData, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal paths to JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
			return nil
		},
	}
}
