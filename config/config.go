package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/cowork/errors"
	"github.com/grovetools/cowork/pkg/paths"
	"github.com/grovetools/cowork/util/pathutil"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Format identifies a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// configNames are the project file names searched for, in order.
var configNames = []string{
	"cowork.yml",
	"cowork.yaml",
	"cowork.toml",
	".cowork.yml",
	".cowork.yaml",
	".cowork.toml",
}

// FormatFor picks the syntax of a config file from its extension.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads, validates and parses a single configuration file on top of
// the defaults.
func Load(path string) (*Config, error) {
	return LoadFiles(path)
}

// LoadFiles merges the given files in order over the defaults. Later files
// override earlier ones key by key; lists are replaced, not appended.
func LoadFiles(files ...string) (*Config, error) {
	merged := map[string]interface{}{}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.ConfigNotFound(path)
			}
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
				WithDetail("path", path)
		}

		doc, err := parseDocument(data, FormatFor(path))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config file").
				WithDetail("path", path)
		}
		mergeMaps(merged, doc)
	}
	return fromDocument(merged)
}

// LoadFromBytes parses configuration data in the given format on top of
// the defaults.
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	doc, err := parseDocument(data, format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config")
	}
	return fromDocument(doc)
}

// LoadDefault loads the configuration layers visible from the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFiles(Resolve(cwd)...)
}

// Resolve returns the configuration layers for startDir, lowest precedence first:
// 1. Global config (~/.config/cowork/cowork.yml)
// 2. Project config (cowork.yml in startDir or the nearest parent)
// Either may be absent; with neither the defaults apply.
func Resolve(startDir string) []string {
	var files []string
	global := GlobalConfigFile()
	if global != "" {
		files = append(files, global)
	}
	if project, err := FindConfigFile(startDir); err == nil && project != global {
		files = append(files, project)
	}
	return files
}

// FindConfigFile searches from startDir up to the filesystem root for a
// cowork configuration file.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		if path := firstFile(dir, configNames); path != "" {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// GlobalConfigFile returns the user-level configuration file, or "" if
// there is none.
func GlobalConfigFile() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	return firstFile(dir, []string{"cowork.yml", "cowork.yaml", "cowork.toml"})
}

func firstFile(dir string, names []string) string {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// parseDocument expands environment variables and decodes data into a
// generic document.
func parseDocument(data []byte, format Format) (map[string]interface{}, error) {
	expanded := []byte(expandEnvVars(string(data)))

	doc := map[string]interface{}{}
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(expanded, &doc); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(expanded, &doc); err != nil {
			return nil, err
		}
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return doc, nil
}

// fromDocument validates a merged document against the schema, decodes it
// over the defaults and checks the result.
func fromDocument(doc map[string]interface{}) (*Config, error) {
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := decodeInto(doc, cfg, true); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode config")
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandPaths resolves ~ and $VAR in directory roots.
func (c *Config) expandPaths() error {
	for i, dir := range c.Server.AllowedDirectories {
		expanded, err := pathutil.Expand(dir)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to expand server.allowed_directories")
		}
		c.Server.AllowedDirectories[i] = expanded
	}
	return nil
}

// mergeMaps deep-merges src into dst. Nested maps merge; everything else
// in src replaces the value in dst.
func mergeMaps(dst, src map[string]interface{}) {
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]interface{})
		dstMap, dstIsMap := dst[key].(map[string]interface{})
		if srcIsMap && dstIsMap {
			mergeMaps(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
