package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/governor/internal/logger"
	"github.com/wolfeidau/governor/internal/models"
)

var (
	colorGreen  = lipgloss.Color("#8ec07c")
	colorYellow = lipgloss.Color("#fabd2f")
	colorRed    = lipgloss.Color("#fb4934")
	colorDim    = lipgloss.Color("#928374")
	colorHeader = lipgloss.Color("#fe8019")

	styleGreen  = lipgloss.NewStyle().Foreground(colorGreen)
	styleYellow = lipgloss.NewStyle().Foreground(colorYellow)
	styleRed    = lipgloss.NewStyle().Foreground(colorRed)
	styleDim    = lipgloss.NewStyle().Foreground(colorDim)
	styleHeader = lipgloss.NewStyle().Foreground(colorHeader).Bold(true)
)

// OutputFlags selects how results are printed.
type OutputFlags struct {
	Output string `help:"output format (table or json)" default:"table" enum:"table,json" short:"o"`
}

func (o OutputFlags) isJSON() bool { return o.Output == "json" }

func setupLogger(globals *Globals) zerolog.Logger {
	l := logger.Setup(globals.Debug)
	zlog.Logger = l
	return l
}

// isInteractive reports whether stdin is a terminal a prompt can be shown on.
func isInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// confirm asks a yes/no question. Non-interactive sessions need --yes.
func confirm(title, description string) (bool, error) {
	if !isInteractive() {
		return false, fmt.Errorf("refusing to %s without a terminal; pass --yes", strings.ToLower(title))
	}

	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithShowHelp(false).Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// promptReason asks for an optional rejection reason.
func promptReason() (string, error) {
	var reason string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Reason (optional)").
				Value(&reason),
		),
	).WithShowHelp(false).Run()
	return strings.TrimSpace(reason), err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable renders an aligned table with a header separator line.
// Widths are measured on visible characters so styled cells line up.
func renderTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	const colGap = 2
	cols := len(headers)

	widths := make([]int, cols)
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < cols && i < len(row); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style func(string) string) {
		for i := range cols {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			pad := max(widths[i]-lipgloss.Width(cell), 0)
			b.WriteString(style(cell))
			if i < cols-1 {
				b.WriteString(strings.Repeat(" ", pad+colGap))
			}
		}
		b.WriteString("\n")
	}

	writeRow(headers, func(s string) string { return styleHeader.Render(s) })

	for i, w := range widths {
		b.WriteString(styleDim.Render(strings.Repeat("─", w)))
		if i < cols-1 {
			b.WriteString(strings.Repeat(" ", colGap))
		}
	}
	b.WriteString("\n")

	for _, row := range rows {
		writeRow(row, func(s string) string { return s })
	}

	return b.String()
}

func statusStyle(s models.ActionStatus) lipgloss.Style {
	switch s {
	case models.ActionStatusApproved, models.ActionStatusExecuted:
		return styleGreen
	case models.ActionStatusPending:
		return styleYellow
	case models.ActionStatusRejected:
		return styleRed
	default:
		return styleDim
	}
}

func allowedText(allowed bool) string {
	if allowed {
		return styleGreen.Render("allowed")
	}
	return styleRed.Render("denied")
}

func limitText(n int64) string {
	if n == models.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}
