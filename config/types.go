package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/grovetools/cowork/command"
	"github.com/grovetools/cowork/internal/contextfile"
	"github.com/grovetools/cowork/internal/executor"
	"github.com/grovetools/cowork/sandbox"
)

// DefaultListen is the address the daemon binds when none is configured.
const DefaultListen = "127.0.0.1:7420"

// DefaultShutdownTimeout bounds graceful shutdown of the HTTP server.
const DefaultShutdownTimeout = 5 * time.Second

// Config represents the cowork.yml configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" jsonschema:"description=HTTP and websocket listener settings"`
	Tool    ToolConfig    `yaml:"tool" jsonschema:"description=The code-generation tool spawned for each request"`
	Limits  LimitsConfig  `yaml:"limits" jsonschema:"description=Per-user request quota"`
	Context ContextConfig `yaml:"context" jsonschema:"description=Per-directory context file"`
	Sandbox SandboxConfig `yaml:"sandbox" jsonschema:"description=Prompt and working directory restrictions"`

	// Logging is decoded by the logging package; see UnmarshalLogging.
	Logging map[string]interface{} `yaml:"logging,omitempty" jsonschema:"description=Logging configuration (level, report_caller, file, format)"`
}

// ServerConfig configures the daemon listener.
type ServerConfig struct {
	Listen             string        `yaml:"listen" jsonschema:"description=TCP address to listen on,default=127.0.0.1:7420"`
	AllowedOrigins     []string      `yaml:"allowed_origins,omitempty" jsonschema:"description=Origins allowed to open websockets; empty allows any"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" jsonschema:"description=Grace period for in-flight requests on shutdown,default=5s"`
	AllowedDirectories []string      `yaml:"allowed_directories,omitempty" jsonschema:"description=Absolute directory roots clients may work in (~ and $VAR expand); empty allows any"`
}

// ToolConfig configures the spawned code-generation tool.
type ToolConfig struct {
	Command   string        `yaml:"command" jsonschema:"description=Executable name or path,default=claude"`
	Args      []string      `yaml:"args" jsonschema:"description=Arguments passed before the prompt is written to stdin"`
	Timeout   time.Duration `yaml:"timeout" jsonschema:"description=Maximum run time of one invocation (capped at 10m),default=3m"`
	KillGrace time.Duration `yaml:"kill_grace" jsonschema:"description=Time between SIGTERM and SIGKILL,default=5s"`
}

// LimitsConfig configures the rate limiter.
type LimitsConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window" jsonschema:"description=Requests allowed per user per window,minimum=1,default=50"`
	Window            time.Duration `yaml:"window" jsonschema:"description=Length of the rate limit window,default=1h"`
}

// ContextConfig configures the context file kept in each working directory.
type ContextConfig struct {
	FileName string `yaml:"file_name" jsonschema:"description=Context file name,default=SESSION_CONTEXT.md"`
	MaxLines int    `yaml:"max_lines" jsonschema:"description=Line cap enforced after each write,minimum=2,default=1000"`
	Enabled  bool   `yaml:"enabled" jsonschema:"description=Whether context files are created and referenced,default=true"`
}

// SandboxConfig configures prompt sanitization.
type SandboxConfig struct {
	MaxPromptLength int `yaml:"max_prompt_length" jsonschema:"description=Longest accepted prompt in characters,minimum=1,default=2000"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          DefaultListen,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Tool: ToolConfig{
			Command:   executor.DefaultTool,
			Args:      append([]string(nil), executor.DefaultArgs...),
			Timeout:   command.DefaultTimeout,
			KillGrace: executor.DefaultKillGrace,
		},
		Limits: LimitsConfig{
			RequestsPerWindow: executor.DefaultRequestsPerWindow,
			Window:            executor.DefaultWindow,
		},
		Context: ContextConfig{
			FileName: contextfile.DefaultFileName,
			MaxLines: contextfile.DefaultMaxLines,
			Enabled:  true,
		},
		Sandbox: SandboxConfig{
			MaxPromptLength: sandbox.DefaultMaxPromptLength,
		},
	}
}

// ExecutorOptions converts the tool, limits and sandbox sections into
// executor options.
func (c *Config) ExecutorOptions() executor.Options {
	return executor.Options{
		Tool:              c.Tool.Command,
		Args:              append([]string(nil), c.Tool.Args...),
		Timeout:           c.Tool.Timeout,
		KillGrace:         c.Tool.KillGrace,
		RequestsPerWindow: c.Limits.RequestsPerWindow,
		Window:            c.Limits.Window,
		MaxPromptLength:   c.Sandbox.MaxPromptLength,
	}
}

// UnmarshalLogging decodes the logging section into target.
func (c *Config) UnmarshalLogging(target interface{}) error {
	if c.Logging == nil {
		return nil
	}
	return decodeInto(c.Logging, target, false)
}

// decodeInto decodes a generic document into target using yaml tags.
// Durations may be written as Go duration strings.
func decodeInto(input interface{}, target interface{}, zeroFields bool) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ZeroFields:       zeroFields,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           target,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	return decoder.Decode(input)
}
