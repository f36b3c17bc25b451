package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/sagaflow/pkg/definition"
)

// Describe renders a template as a Markdown document.
func Describe(t *definition.Template) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", t.Name)
	if t.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", t.Description)
	}
	if t.CorrelationKey != "" {
		fmt.Fprintf(&sb, "Correlated by `%s`.\n\n", t.CorrelationKey)
	}

	sb.WriteString("## Steps\n\n")
	sb.WriteString("| # | Step | Command | Depends on | Timeout | Retries | Compensation |\n")
	sb.WriteString("|---|------|---------|------------|---------|---------|--------------|\n")
	for i, step := range t.Steps {
		comp := "-"
		if action, ok := t.Compensations[step.ID]; ok {
			comp = fmt.Sprintf("`%s/%s`", action.Domain, action.CommandType)
		}
		deps := "-"
		if len(step.DependsOn) > 0 {
			deps = strings.Join(step.DependsOn, ", ")
		}
		timeout := "none"
		if step.TimeoutMs > 0 {
			timeout = step.Timeout().String()
		}
		fmt.Fprintf(&sb, "| %d | %s | `%s/%s` | %s | %s | %d | %s |\n",
			i+1, step.ID, step.Domain, step.CommandType, deps, timeout, step.RetryPolicy.MaxRetries, comp)
	}

	if len(t.Parameters) > 0 {
		sb.WriteString("\n## Parameters\n\n")
		for _, k := range t.Parameters.Keys() {
			fmt.Fprintf(&sb, "- `%s`: %s\n", k, t.Parameters[k].Name())
		}
	}

	if len(t.Defaults) > 0 {
		sb.WriteString("\n## Defaults\n\n")
		keys := make([]string, 0, len(t.Defaults))
		for k := range t.Defaults {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- `%s`: %v\n", k, t.Defaults[k])
		}
	}

	if len(t.Events) > 0 {
		sb.WriteString("\n## Events\n\n")
		for _, rule := range t.Events {
			source := rule.Event
			if rule.Domain != "" {
				source = rule.Domain + "/" + rule.Event
			}
			fmt.Fprintf(&sb, "- `%s` → %s `%s`\n", source, rule.Input, rule.Step)
		}
	}

	if len(t.StartOn) > 0 {
		sb.WriteString("\n## Started by\n\n")
		for _, rule := range t.StartOn {
			params := "whole payload"
			if len(rule.Params) > 0 {
				params = strings.Join(rule.Params, ", ")
			}
			fmt.Fprintf(&sb, "- `%s` (params: %s)\n", rule.Event, params)
		}
	}
	return sb.String()
}
