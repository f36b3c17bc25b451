package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// Overlay marks step progress of a live saga on the diagram.
type Overlay struct {
	Completed   []string
	Compensated []string
	Current     string
	Failed      string
}

// OverlayFor derives the overlay from a saga state.
func OverlayFor(state domain.SagaState) *Overlay {
	return &Overlay{
		Completed:   state.CompletedSteps,
		Compensated: state.CompensatedSteps,
		Current:     state.CurrentStep,
		Failed:      state.FailedStep,
	}
}

// GenerateMermaid produces a Mermaid flowchart of the saga's steps.
// Dependencies are solid arrows; compensations hang off their step as dotted
// arrows to a subroutine node. The overlay, when given, styles step progress.
func GenerateMermaid(saga *domain.Saga, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString("    start((\"start\"))\n")

	for _, step := range saga.Steps {
		safeID := sanitizeMermaidID(step.ID)
		label := fmt.Sprintf("%s<br/>%s/%s", step.ID, step.Domain, step.CommandType)
		if step.TimeoutMs > 0 {
			label += fmt.Sprintf("<br/>⏱️ %s", step.Timeout())
		}
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", safeID, escape(label)))

		if len(step.DependsOn) == 0 {
			sb.WriteString(fmt.Sprintf("    start --> %s\n", safeID))
		}
		for _, dep := range step.DependsOn {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeMermaidID(dep), safeID))
		}

		if comp, ok := saga.Compensations[step.ID]; ok {
			compID := "undo_" + safeID
			sb.WriteString(fmt.Sprintf("    %s[[\"%s/%s\"]]\n", compID, escape(comp.Domain), escape(comp.CommandType)))
			sb.WriteString(fmt.Sprintf("    %s -. compensate .-> %s\n", safeID, compID))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast on both light and dark themes
		sb.WriteString("    classDef completed fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffebee,stroke:#c62828,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef compensated fill:#eceff1,stroke:#546e7a,stroke-dasharray:4,color:#000;\n")

		styled := make(map[string]bool)
		apply := func(class string, ids ...string) {
			for _, id := range ids {
				safeID := sanitizeMermaidID(id)
				if safeID == "" || styled[safeID] {
					continue
				}
				styled[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s %s;\n", safeID, class))
			}
		}
		// First match wins; compensated steps also appear as completed.
		apply("failed", overlay.Failed)
		apply("compensated", overlay.Compensated...)
		apply("current", overlay.Current)
		apply("completed", overlay.Completed...)
	}

	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
