// Package paths provides XDG-compliant path resolution for cowork.
//
// Resolution order:
// 1. COWORK_HOME (portable root) → $COWORK_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/cowork
// 3. Platform defaults → ~/.config/cowork, ~/.local/share/cowork, ~/.local/state/cowork
package paths

import (
	"os"
	"path/filepath"
)

const appName = "cowork"

// baseDir resolves one XDG base directory. sub is the COWORK_HOME
// subdirectory, xdgVar the XDG override and fallback the path below $HOME.
func baseDir(sub, xdgVar string, fallback ...string) string {
	if home := os.Getenv("COWORK_HOME"); home != "" {
		return filepath.Join(home, sub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append(append([]string{homeDir}, fallback...), appName)...)
}

// ConfigDir returns the configuration directory.
// Used for the user-level cowork.yml.
func ConfigDir() string {
	return baseDir("config", "XDG_CONFIG_HOME", ".config")
}

// DataDir returns the data directory.
// Used for chat transcripts.
func DataDir() string {
	return baseDir("data", "XDG_DATA_HOME", ".local", "share")
}

// StateDir returns the state directory.
// Used for the PID file and logs.
func StateDir() string {
	return baseDir("state", "XDG_STATE_HOME", ".local", "state")
}

// LogDir returns the directory the daemon writes log files to.
func LogDir() string {
	state := StateDir()
	if state == "" {
		return ""
	}
	return filepath.Join(state, "logs")
}

// TranscriptDir returns the directory holding per-room chat transcripts.
func TranscriptDir() string {
	data := DataDir()
	if data == "" {
		return ""
	}
	return filepath.Join(data, "transcripts")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "cowork.pid")
}

// EnsureDirs creates all cowork directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		DataDir(),
		StateDir(),
		LogDir(),
		TranscriptDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
