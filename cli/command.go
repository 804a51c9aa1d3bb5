package cli

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/cowork/config"
	"github.com/grovetools/cowork/logging"
)

// CommandOptions holds the options shared by every cowork command.
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a command with the standard persistent flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP(config.FlagConfig, "c", "", "Path to a cowork.yml or cowork.toml file")

	SetStyledHelp(cmd)
	return cmd
}

// GetLogger returns the CLI logger, at debug level when --verbose is set.
func GetLogger(cmd *cobra.Command) *logrus.Entry {
	entry := logging.NewLogger("cowork-cli")
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	return entry
}

// GetOptions extracts the standard options from a command.
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString(config.FlagConfig)
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// ConfigFiles returns the files a command's configuration is loaded from:
// the --config file alone when given, otherwise the global file followed
// by the nearest project file.
func ConfigFiles(cmd *cobra.Command) ([]string, error) {
	if file := GetOptions(cmd).ConfigFile; file != "" {
		return []string{file}, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Resolve(cwd), nil
}

// LoadConfig loads and validates the command's configuration and applies
// any override flags registered on it.
func LoadConfig(cmd *cobra.Command) (*config.Config, []string, error) {
	files, err := ConfigFiles(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadFiles(files...)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, nil, err
	}
	return cfg, files, nil
}
