package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// styled renders s with style only when w is an interactive terminal.
func styled(w io.Writer, style lipgloss.Style, s string) string {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return s
	}
	return style.Render(s)
}

// table prints rows as aligned columns, the first row being the header.
func table(w io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			pad := ""
			if i < len(row)-1 {
				pad = strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			}
			cells[i] = cell + pad
		}
		line := strings.Join(cells, "  ")
		if r == 0 {
			line = styled(w, headerStyle, line)
		}
		fmt.Fprintln(w, line)
	}
}

func yesNo(w io.Writer, ok bool) string {
	if ok {
		return styled(w, successStyle, "yes")
	}
	return styled(w, errorStyle, "no")
}
