package config

import (
	"github.com/spf13/pflag"
)

// Flag names shared by the commands that load configuration.
const (
	FlagConfig  = "config"
	FlagListen  = "listen"
	FlagTool    = "tool"
	FlagTimeout = "timeout"
)

// RegisterFlags adds the configuration override flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "Path to a cowork.yml or cowork.toml file")
	fs.String(FlagListen, "", "Address to listen on (overrides server.listen)")
	fs.String(FlagTool, "", "Code-generation tool to run (overrides tool.command)")
	fs.Duration(FlagTimeout, 0, "Per-request timeout (overrides tool.timeout)")
}

// ApplyFlags copies every explicitly set override flag onto c and
// re-validates the result.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	if fs.Changed(FlagListen) {
		v, err := fs.GetString(FlagListen)
		if err != nil {
			return err
		}
		c.Server.Listen = v
	}
	if fs.Changed(FlagTool) {
		v, err := fs.GetString(FlagTool)
		if err != nil {
			return err
		}
		c.Tool.Command = v
	}
	if fs.Changed(FlagTimeout) {
		v, err := fs.GetDuration(FlagTimeout)
		if err != nil {
			return err
		}
		c.Tool.Timeout = v
	}
	return c.Validate()
}

// ConfigFlag returns the --config value, or "" when unset or unregistered.
func ConfigFlag(fs *pflag.FlagSet) string {
	if fs.Lookup(FlagConfig) == nil {
		return ""
	}
	v, _ := fs.GetString(FlagConfig)
	return v
}
