package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/grovetools/cowork/command"
	"github.com/grovetools/cowork/errors"
)

// Validate checks the semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("server.listen must be host:port: %v", err)).
			WithDetail("listen", c.Server.Listen)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.ConfigInvalid("server.shutdown_timeout must be positive")
	}
	for _, dir := range c.Server.AllowedDirectories {
		if err := validateRoot("server.allowed_directories", dir); err != nil {
			return err
		}
	}

	if strings.TrimSpace(c.Tool.Command) == "" {
		return errors.ConfigInvalid("tool.command cannot be empty")
	}
	if c.Tool.Timeout <= 0 {
		return errors.ConfigInvalid("tool.timeout must be positive")
	}
	if c.Tool.Timeout > command.MaxTimeout {
		return errors.ConfigInvalid(fmt.Sprintf("tool.timeout cannot exceed %s", command.MaxTimeout)).
			WithDetail("timeout", c.Tool.Timeout.String())
	}
	if c.Tool.KillGrace <= 0 {
		return errors.ConfigInvalid("tool.kill_grace must be positive")
	}

	if c.Limits.RequestsPerWindow < 1 {
		return errors.ConfigInvalid("limits.requests_per_window must be at least 1")
	}
	if c.Limits.Window <= 0 {
		return errors.ConfigInvalid("limits.window must be positive")
	}

	if name := c.Context.FileName; name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return errors.ConfigInvalid("context.file_name must be a plain file name").
			WithDetail("file_name", name)
	}
	// One line is taken by the truncation warning.
	if c.Context.MaxLines < 2 {
		return errors.ConfigInvalid("context.max_lines must be at least 2")
	}

	if c.Sandbox.MaxPromptLength < 1 {
		return errors.ConfigInvalid("sandbox.max_prompt_length must be at least 1")
	}

	return nil
}

// validateRoot requires an absolute, clean directory path.
func validateRoot(field, dir string) error {
	if !filepath.IsAbs(dir) {
		return errors.ConfigInvalid(fmt.Sprintf("%s entries must be absolute paths", field)).
			WithDetail("path", dir)
	}
	return nil
}
