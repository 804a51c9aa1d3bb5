package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/grovetools/cowork/cli"
	"github.com/grovetools/cowork/internal/daemon/store"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11"))
)

// View renders the dashboard.
func (m *Model) View() string {
	var b strings.Builder

	live := "polling"
	if m.live {
		live = "live"
	}
	b.WriteString(titleStyle.Render("COWORK") + "  " + labelStyle.Render(live) + "\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("daemon unreachable: "+m.err.Error()) + "\n\n")
	}

	if m.stats != nil {
		b.WriteString(strings.Join([]string{
			field("uptime", m.stats.Uptime),
			field("connections", m.stats.TotalConnections),
			field("rooms", m.stats.ActiveRooms),
			field("running", m.stats.ActiveExecutions),
		}, "   "))
		b.WriteString("\n\n")
	}

	b.WriteString(m.sessionsView())
	b.WriteString("\n")
	b.WriteString(m.eventsView())

	if m.status != "" {
		b.WriteString("\n" + statusStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func field(label string, value interface{}) string {
	return labelStyle.Render(label+" ") + valueStyle.Render(fmt.Sprint(value))
}

func (m *Model) sessionsView() string {
	if len(m.sessions) == 0 {
		return labelStyle.Render("no running executions") + "\n"
	}
	rows := make([][]string, 0, len(m.sessions))
	for i, s := range m.sessions {
		marker := " "
		if i == m.cursor {
			marker = ">"
		}
		rows = append(rows, []string{marker, s.SessionID, s.UserID, s.Directory, s.Duration.Round(time.Second).String()})
	}
	return cli.NewTable(m.width, []string{"", "SESSION", "USER", "DIRECTORY", "RUNNING"}, rows).String() + "\n"
}

func (m *Model) eventsView() string {
	if len(m.events) == 0 {
		return ""
	}
	limit := 10
	if m.height > 0 {
		limit = m.height / 3
	}
	events := m.events
	if len(events) > limit {
		events = events[len(events)-limit:]
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("ACTIVITY") + "\n")
	for i := len(events) - 1; i >= 0; i-- {
		b.WriteString(formatEvent(events[i]) + "\n")
	}
	return b.String()
}

func formatEvent(u store.Update) string {
	parts := []string{labelStyle.Render(u.Timestamp.Local().Format("15:04:05")), string(u.Type)}
	if u.UserID != "" {
		parts = append(parts, u.UserID)
	}
	if u.Directory != "" {
		parts = append(parts, u.Directory)
	}
	if u.Detail != "" {
		parts = append(parts, labelStyle.Render(u.Detail))
	}
	return strings.Join(parts, " ")
}
