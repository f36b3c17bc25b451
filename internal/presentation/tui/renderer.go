package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewRenderer returns a function that renders markdown using glamour.
// When styled is false, or glamour cannot be set up, markdown passes through unchanged.
func NewRenderer(styled bool) func(string) (string, error) {
	plain := func(markdown string) (string, error) { return markdown, nil }
	if !styled {
		return plain
	}

	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w - 4
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Detect light/dark background
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return plain
	}
	return r.Render
}
