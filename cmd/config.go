package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/cowork/cli"
	"github.com/grovetools/cowork/config"
	"github.com/grovetools/cowork/logging"
)

// NewConfigCmd creates the `config` command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate cowork configuration",
		Long: `Configuration is built by merging layers over the built-in defaults:
1. Global config (cowork.yml in the cowork config directory)
2. Project config (cowork.yml, cowork.toml or a dot variant, found from the
   current directory upwards)
--config replaces both layers with a single file.`,
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration and the files it came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, files, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}

			data, err := cfg.Marshal()
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				// Round-trip through YAML so keys and durations match the file format.
				var doc map[string]interface{}
				if err := yaml.Unmarshal(data, &doc); err != nil {
					return err
				}
				out, err := json.MarshalIndent(map[string]interface{}{
					"files":  files,
					"config": doc,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "# Source: built-in defaults")
			}
			for _, f := range files {
				fmt.Fprintf(out, "# Source: %s\n", f)
			}
			fmt.Fprint(out, string(data))
			return nil
		},
	}
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema for cowork.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check configuration files against the schema and limits",
		Long: `Validates the given files, or the layers that apply to the current
directory when none are given. Exits non-zero on the first invalid file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args
			if len(files) == 0 {
				var err error
				if files, err = cli.ConfigFiles(cmd); err != nil {
					return err
				}
			}

			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if len(files) == 0 {
				pretty.Info("No configuration files found; defaults apply")
				return nil
			}
			for _, f := range files {
				if _, err := config.Load(f); err != nil {
					pretty.Error(f, err)
					return err
				}
				pretty.Success(f)
			}
			if len(files) > 1 {
				if _, err := config.LoadFiles(files...); err != nil {
					return err
				}
				pretty.Success("merged configuration is valid")
			}
			return nil
		},
	}
}

