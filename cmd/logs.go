package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/grovetools/cowork/cli"
	"github.com/grovetools/cowork/logging"
)

var (
	logErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	logWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	logInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	logMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// NewLogsCmd creates the `logs` command.
func NewLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long: `Prints the daemon's log file: logging.file.path when configured, otherwise
today's file under the cowork log directory.

Examples:
  # Follow the log
  cowork logs -f

  # Last 100 lines as JSON Lines
  cowork logs --tail 100 --json
`,
		Args: cobra.NoArgs,
		RunE: runLogsE,
	}
	cmd.Flags().BoolP("follow", "f", false, "Follow log output")
	cmd.Flags().Int("tail", -1, "Number of lines to show from the end of the log (default: all)")
	return cmd
}

func runLogsE(cmd *cobra.Command, args []string) error {
	cfg, _, err := cli.LoadConfig(cmd)
	if err != nil {
		return err
	}
	var logCfg logging.Config
	if err := cfg.UnmarshalLogging(&logCfg); err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}

	path := logging.FilePath(logCfg, time.Now())
	follow, _ := cmd.Flags().GetBool("follow")
	lines, _ := cmd.Flags().GetInt("tail")
	jsonOutput := cli.GetOptions(cmd).JSONOutput

	if !follow {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Path("No log file yet", path)
			return nil
		}
	}

	var offset int64
	if lines >= 0 {
		if offset, err = lastLinesOffset(path, lines); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: !follow,
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	defer t.Cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()

	out := cmd.OutOrStdout()
	for line := range t.Lines {
		if line.Err != nil {
			continue
		}
		text := strings.TrimRight(line.Text, "\r")
		if text == "" {
			continue
		}
		if jsonOutput {
			printLogJSON(out, text)
		} else {
			printLogText(out, text)
		}
	}
	return nil
}

// lastLinesOffset returns the byte offset where the last n lines of path
// begin. n == 0 means the end of the file.
func lastLinesOffset(path string, n int) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return int64(len(data)), nil
	}
	end := len(data)
	if end > 0 && data[end-1] == '\n' {
		end--
	}
	for i := 0; i < n; i++ {
		idx := bytes.LastIndexByte(data[:end], '\n')
		if idx < 0 {
			return 0, nil
		}
		end = idx
	}
	return int64(end + 1), nil
}

// printLogJSON prints a log line as JSON, wrapping non-JSON lines.
func printLogJSON(w io.Writer, line string) {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		entry = map[string]interface{}{"raw_line": line}
	}
	data, _ := json.Marshal(entry)
	fmt.Fprintln(w, string(data))
}

// printLogText pretty-prints JSON log lines and passes others through.
func printLogText(w io.Writer, line string) {
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		fmt.Fprintln(w, line)
		return
	}

	ts, _ := entry["time"].(string)
	level, _ := entry["level"].(string)
	msg, _ := entry["msg"].(string)
	component, _ := entry["component"].(string)

	timeStr := ts
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		timeStr = parsed.Local().Format("15:04:05")
	}

	var levelStyle lipgloss.Style
	switch strings.ToLower(level) {
	case "error", "fatal", "panic":
		levelStyle = logErrorStyle
	case "warning", "warn":
		levelStyle = logWarnStyle
	case "info":
		levelStyle = logInfoStyle
	default:
		levelStyle = logMutedStyle
	}

	var keys []string
	for k := range entry {
		switch k {
		case "time", "level", "msg", "component":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", logMutedStyle.Render(k), entry[k]))
	}

	fmt.Fprintf(w, "%s %s [%s] %s %s\n",
		timeStr,
		levelStyle.Render(strings.ToUpper(level)),
		logMutedStyle.Render(component),
		msg,
		strings.Join(fields, " "),
	)
}
