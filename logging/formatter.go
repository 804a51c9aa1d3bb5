package logging

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

var (
	componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	levelStyles    = map[logrus.Level]lipgloss.Style{
		logrus.PanicLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		logrus.FatalLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		logrus.ErrorLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		logrus.WarnLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		logrus.InfoLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		logrus.DebugLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		logrus.TraceLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

// TextFormatter renders entries as
// "<time> [LEVEL] [component] [file:line func] message key=value...".
type TextFormatter struct {
	Config FormatConfig
}

// Format implements logrus.Formatter.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	if !f.Config.DisableTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05 "))
	}
	b.WriteString(levelStyles[entry.Level].Render("[" + levelLabel(entry.Level) + "]"))

	if component, ok := entry.Data["component"]; ok && !f.Config.DisableComponent {
		fmt.Fprintf(&b, " [%s]", componentStyle.Render(fmt.Sprint(component)))
	}
	if entry.HasCaller() {
		fmt.Fprintf(&b, " [%s:%d %s]",
			filepath.Base(entry.Caller.File), entry.Caller.Line, filepath.Base(entry.Caller.Function))
	}

	b.WriteByte(' ')
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		if key != "component" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, fieldValue(entry.Data[key]))
	}

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func levelLabel(level logrus.Level) string {
	if level == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(level.String())
}

// fieldValue quotes values that would otherwise be ambiguous to split on
// spaces.
func fieldValue(v interface{}) string {
	s := fmt.Sprint(v)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
