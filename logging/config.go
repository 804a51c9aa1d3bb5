package logging

// Config is the logging section of cowork.yml. COWORK_LOG_LEVEL and
// COWORK_LOG_CALLER override Level and ReportCaller.
type Config struct {
	Level        string         `yaml:"level"`
	ReportCaller bool           `yaml:"report_caller"`
	File         FileSinkConfig `yaml:"file"`
	Format       FormatConfig   `yaml:"format"`
}

// FileSinkConfig selects where the daemon log is written. Without an
// explicit path logs go to one cowork-<date>.log per day in the log
// directory, and files older than RetentionDays are removed at startup.
type FileSinkConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// FormatConfig controls how entries are rendered.
type FormatConfig struct {
	// Preset is "default", "simple" or "json".
	Preset           string `yaml:"preset"`
	DisableTimestamp bool   `yaml:"disable_timestamp"`
	DisableComponent bool   `yaml:"disable_component"`
	// StructuredToStderr is "auto", "always" or "never".
	StructuredToStderr string `yaml:"structured_to_stderr"`
}

// DefaultRetentionDays applies when retention_days is unset.
const DefaultRetentionDays = 14
