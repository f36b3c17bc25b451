package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/internal/presentation/tui"
	"github.com/aretw0/sagaflow/pkg/adapters/memory"
	"github.com/aretw0/sagaflow/pkg/definition"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"github.com/google/uuid"
)

// RunOptions configures a local dry run of a saga template.
type RunOptions struct {
	Template          *definition.Template
	Params            map[string]any
	FailSteps         []string
	FailCompensations []string
	JSON              bool
	Painter           tui.Painter
	Logger            *slog.Logger
}

// RunReport is the JSON form of a dry run.
type RunReport struct {
	Saga     *domain.Saga            `json:"saga"`
	History  []domain.SagaTransition `json:"history"`
	Commands []domain.CommandMessage `json:"commands"`
}

// Run executes the template against an in-memory bus where every command succeeds
// unless listed in FailSteps or FailCompensations, then prints the outcome to w.
func Run(ctx context.Context, w io.Writer, opts RunOptions) (*RunReport, error) {
	bus := memory.NewBus()
	for _, id := range opts.FailSteps {
		bus.FailStep(id, errors.New("simulated failure"))
	}
	for _, id := range opts.FailCompensations {
		bus.FailCompensation(id, errors.New("simulated failure"))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eng := sagaflow.New(
		sagaflow.WithCommandBus(bus),
		sagaflow.WithLogger(logger),
		sagaflow.WithLifecycleHooks(debugHooks(logger)),
	)
	if err := eng.RegisterTemplate(opts.Template); err != nil {
		return nil, err
	}

	params := maps.Clone(opts.Params)
	if params == nil {
		params = make(map[string]any)
	}
	if key := opts.Template.CorrelationKey; key != "" {
		if _, ok := params[key]; !ok {
			params[key] = "run-" + uuid.NewString()[:8]
		}
	}

	saga, err := eng.StartSaga(ctx, ports.StartRequest{SagaType: opts.Template.Name, Params: params})
	if err != nil {
		return nil, err
	}
	history, err := eng.History(ctx, saga.ID)
	if err != nil {
		return nil, err
	}
	report := &RunReport{Saga: saga, History: history, Commands: bus.Sent()}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return report, enc.Encode(report)
	}
	printReport(w, report, opts.Painter)
	return report, nil
}

func printReport(w io.Writer, r *RunReport, p tui.Painter) {
	fmt.Fprintf(w, "Saga %s %s → %s\n\n", r.Saga.Name, p.Faint("("+r.Saga.ID+")"), p.Status(r.Saga.State))

	fmt.Fprintln(w, "Transitions:")
	for i, t := range r.History {
		input := ""
		if t.Input != nil {
			input = t.Input.String()
		}
		fmt.Fprintf(w, "  %2d. %-12s → %-12s %s\n", i+1, t.From.Name(), t.To.Name(), p.Faint(input))
	}

	fmt.Fprintln(w, "\nCommands:")
	for _, cmd := range r.Commands {
		fmt.Fprintf(w, "  %-20s %s/%s %s\n", cmd.Kind, cmd.Domain, cmd.CommandType, p.Faint("["+cmd.StepID+"]"))
	}
	if r.Saga.State.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", r.Saga.State.Error)
	}
}
