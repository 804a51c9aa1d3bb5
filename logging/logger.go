package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/cowork/config"
	"github.com/grovetools/cowork/pkg/paths"
	"github.com/grovetools/cowork/util/pathutil"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	files     = make(map[string]*os.File)
	active    *config.Config
	loggersMu sync.Mutex
)

// Init makes later NewLogger calls use cfg instead of discovering
// cowork.yml from the working directory. Loggers already handed out keep
// their settings.
func Init(cfg *config.Config) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	active = cfg
	loggers = make(map[string]*logrus.Entry)
}

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()
	logCfg := loadConfig()

	// Configure Level
	levelStr := "info"
	if env := os.Getenv("COWORK_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("COWORK_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	logger.SetFormatter(formatterFor(logCfg.Format))

	var writers []io.Writer
	if path := FilePath(logCfg, time.Now()); path != "" {
		file, err := openLogFile(path)
		if err == nil {
			writers = append(writers, file)
		} else if logCfg.File.Enabled {
			// Only warn if explicitly configured
			logger.Warnf("Failed to open log file %s: %v", path, err)
		}
	}

	if shouldLogToStderr(logCfg.Format.StructuredToStderr, logger.GetLevel()) {
		writers = append(writers, GetGlobalOutput())
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// LoadConfig returns the logging section of the active configuration.
func LoadConfig() Config {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	return loadConfig()
}

func loadConfig() Config {
	cfg := active
	if cfg == nil {
		loaded, err := config.LoadDefault()
		if err != nil {
			return Config{}
		}
		cfg = loaded
	}

	var logCfg Config
	if err := cfg.UnmarshalLogging(&logCfg); err != nil {
		logrus.Warnf("Failed to parse 'logging' config: %v", err)
	}
	return logCfg
}

// FilePath returns the file the logs of day now are written to: the
// configured path, or cowork-<date>.log in the log directory.
func FilePath(logCfg Config, now time.Time) string {
	if logCfg.File.Enabled && logCfg.File.Path != "" {
		return expandPath(logCfg.File.Path)
	}
	dir := paths.LogDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("cowork-%s.log", now.Format("2006-01-02")))
}

// openLogFile opens path for appending, sharing one handle between components.
func openLogFile(path string) (*os.File, error) {
	if f, ok := files[path]; ok {
		return f, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	files[path] = f
	return f, nil
}

func formatterFor(format FormatConfig) logrus.Formatter {
	switch format.Preset {
	case "json":
		return &logrus.JSONFormatter{}
	case "simple":
		return &TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}}
	default:
		return &TextFormatter{Config: format}
	}
}

// shouldLogToStderr applies the structured_to_stderr mode. In "auto" mode
// logs reach stderr when debugging or when stderr is not a terminal.
func shouldLogToStderr(mode string, level logrus.Level) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		isDebug := os.Getenv("COWORK_DEBUG") == "1" || level >= logrus.DebugLevel
		fd := os.Stderr.Fd()
		isInteractive := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		return isDebug || !isInteractive
	}
}

// PruneFiles removes daily log files older than the retention period
// and returns how many were removed. A configured path disables pruning.
func PruneFiles(logCfg Config, now time.Time) (int, error) {
	if logCfg.File.Enabled && logCfg.File.Path != "" {
		return 0, nil
	}
	days := logCfg.File.RetentionDays
	if days == 0 {
		days = DefaultRetentionDays
	}
	if days < 0 {
		return 0, nil
	}
	dir := paths.LogDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := now.AddDate(0, 0, -days)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "cowork-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", strings.TrimSuffix(strings.TrimPrefix(name, "cowork-"), ".log"), now.Location())
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func expandPath(path string) string {
	if expanded, err := pathutil.Expand(path); err == nil {
		return expanded
	}
	return path
}
