package commands

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var termIsTerminal = term.IsTerminal

// styles renders interactive output. Styling is dropped when the output is
// not a terminal so piped transcripts stay plain.
type styles struct {
	prompt lipgloss.Style
	label  lipgloss.Style
	hint   lipgloss.Style
}

func newStyles(out io.Writer) styles {
	if !isTerminal(out) {
		plain := lipgloss.NewStyle()
		return styles{prompt: plain, label: plain, hint: plain}
	}
	return styles{
		prompt: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111")),
		label:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("78")),
		hint:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && termIsTerminal(int(f.Fd()))
}
