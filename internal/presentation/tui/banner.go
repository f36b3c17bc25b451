package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the sagaflow banner with the version underneath.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{`                         __ _`, "#818cf8"},
		{`  ___  __ _  __ _  __ _ / _| | _____      __`, "#a78bfa"},
		{` / __|/ _' |/ _' |/ _' | |_| |/ _ \ \ /\ / /`, "#c084fc"},
		{` \__ \ (_| | (_| | (_| |  _| | (_) \ V  V /`, "#e879f9"},
		{` |___/\__,_|\__, |\__,_|_| |_|\___/ \_/\_/`, "#f472b6"},
		{`            |___/`, "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintf(w, "  %s\n\n", termenv.String("v"+version).Faint())
}
