package cli

import (
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
)

var (
	tableBorder = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	tableHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableCell   = lipgloss.NewStyle().Padding(0, 1)
)

// NewTable builds a rounded-border table sized to at most width columns.
// A width of zero leaves the table at its natural size.
func NewTable(width int, headers []string, rows [][]string) *ltable.Table {
	t := ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorder).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return tableHeader
			}
			return tableCell
		})
	if width > 0 && lipgloss.Width(t.String()) > width {
		t = t.Width(width)
	}
	return t
}
