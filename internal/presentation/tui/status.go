package tui

import (
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/muesli/termenv"
)

var statusColors = map[domain.Status]string{
	domain.StatusPending:      "#94a3b8",
	domain.StatusRunning:      "#38bdf8",
	domain.StatusCompleted:    "#4ade80",
	domain.StatusCompensating: "#fbbf24",
	domain.StatusCompensated:  "#fb923c",
	domain.StatusFailed:       "#f87171",
}

// Painter colors saga states for a given terminal profile.
type Painter struct {
	profile termenv.Profile
}

// NewPainter detects the color profile of stdout.
func NewPainter() Painter {
	return Painter{profile: termenv.ColorProfile()}
}

// NewPlainPainter never emits escape sequences.
func NewPlainPainter() Painter {
	return Painter{profile: termenv.Ascii}
}

// Status renders the state name in its status color.
func (p Painter) Status(state domain.SagaState) string {
	s := p.profile.String(state.Name())
	if color, ok := statusColors[state.Status]; ok {
		s = s.Foreground(p.profile.Color(color))
	}
	if state.IsTerminal() {
		s = s.Bold()
	}
	return s.String()
}

// Faint dims secondary text.
func (p Painter) Faint(text string) string {
	return p.profile.String(text).Faint().String()
}
