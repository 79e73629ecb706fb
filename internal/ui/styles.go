package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Cyan
	ColorSecondary = lipgloss.Color("212") // Pink
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("245") // Gray
	ColorHighlight = lipgloss.Color("226") // Yellow
)

// Styles for various UI elements
var (
	// Text styles
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(ColorMuted)
	Highlight = lipgloss.NewStyle().Foreground(ColorHighlight)
	Header    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	// Status styles
	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError)

	DocName = lipgloss.NewStyle().Foreground(ColorPrimary)

	// Passage styles
	ResultScore = lipgloss.NewStyle().
			Foreground(ColorSuccess)
	ResultContent = lipgloss.NewStyle().
			Foreground(ColorMuted).
			PaddingLeft(4)

	// Section styles
	SectionTitle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true).
			MarginTop(1)
	Divider = lipgloss.NewStyle().
		Foreground(ColorMuted)

	// Citation styles
	Citation = lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Bold(true)
	SourceRef = lipgloss.NewStyle().
			Foreground(ColorMuted)

	tableHeader = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Padding(0, 1)
	tableCell   = lipgloss.NewStyle().Padding(0, 1)
)

// HorizontalRule returns a styled horizontal divider.
func HorizontalRule(width int) string {
	return Divider.Render(strings.Repeat("─", width))
}

// FormatScore formats a similarity score as a percentage.
func FormatScore(score float64) string {
	return ResultScore.Render(fmt.Sprintf("(%.1f%% match)", score*100))
}

// Table renders rows under headers with rounded borders.
func Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(Divider).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeader
			}
			return tableCell
		}).
		String()
}
