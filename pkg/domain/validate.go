package domain

import (
	"fmt"
	"strings"
)

// Validate checks the structural rules of a saga definition:
// unique non-empty step ids, known dependencies, an acyclic graph with at
// least one root, and compensations keyed by declared steps.
func Validate(saga *Saga) error {
	var problems []string
	if saga.Name == "" {
		problems = append(problems, "name is required")
	}
	if len(saga.Steps) == 0 {
		problems = append(problems, "at least one step is required")
	}

	seen := make(map[string]bool, len(saga.Steps))
	for i, step := range saga.Steps {
		switch {
		case step.ID == "":
			problems = append(problems, fmt.Sprintf("step %d has no id", i))
		case seen[step.ID]:
			problems = append(problems, fmt.Sprintf("duplicate step id %q", step.ID))
		}
		seen[step.ID] = true
		if step.RetryPolicy.Multiplier < 0 {
			problems = append(problems, fmt.Sprintf("step %q has a negative backoff multiplier", step.ID))
		}
	}

	for _, step := range saga.Steps {
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				problems = append(problems, fmt.Sprintf("step %q depends on unknown step %q", step.ID, dep))
			}
			if dep == step.ID {
				problems = append(problems, fmt.Sprintf("step %q depends on itself", step.ID))
			}
		}
	}

	for id := range saga.Compensations {
		if !seen[id] {
			problems = append(problems, fmt.Sprintf("compensation %q does not match a step", id))
		}
	}

	if len(problems) == 0 {
		if cycle := findCycle(saga); cycle != "" {
			problems = append(problems, "dependency cycle involving "+cycle)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSaga, strings.Join(problems, "; "))
	}
	return nil
}

// findCycle runs Kahn's algorithm and returns the ids left unsorted, if any.
func findCycle(saga *Saga) string {
	indegree := make(map[string]int, len(saga.Steps))
	dependents := make(map[string][]string, len(saga.Steps))
	for _, step := range saga.Steps {
		for _, dep := range step.DependsOn {
			indegree[step.ID]++
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	var queue []string
	for _, step := range saga.Steps {
		if indegree[step.ID] == 0 {
			queue = append(queue, step.ID)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited == len(saga.Steps) {
		return ""
	}

	var stuck []string
	for _, step := range saga.Steps {
		if indegree[step.ID] > 0 {
			stuck = append(stuck, step.ID)
		}
	}
	return strings.Join(stuck, ", ")
}
