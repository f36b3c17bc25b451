package definition_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/aretw0/sagaflow/pkg/definition"
	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadOrder(t *testing.T) *definition.Template {
	t.Helper()
	tpl, err := definition.LoadFile(filepath.Join("testdata", "order.yaml"))
	require.NoError(t, err)
	return tpl
}

func TestParse_Order(t *testing.T) {
	tpl := loadOrder(t)

	assert.Equal(t, "order-fulfillment", tpl.SagaType())
	assert.Equal(t, "order_id", tpl.CorrelationKey)
	require.Len(t, tpl.Steps, 3)

	reserve := tpl.Steps[0]
	assert.Equal(t, domain.DefaultRetryPolicy(), reserve.RetryPolicy)
	assert.Equal(t, uint64(30000), reserve.TimeoutMs)

	charge := tpl.Steps[1]
	assert.Equal(t, []string{"reserve"}, charge.DependsOn)
	assert.Equal(t, uint64(5000), charge.TimeoutMs)
	assert.Equal(t, uint32(5), charge.RetryPolicy.MaxRetries)
	assert.Equal(t, uint64(100), charge.RetryPolicy.InitialBackoffMs, "unset fields keep defaults")

	assert.Equal(t, domain.NoRetry(), tpl.Steps[2].RetryPolicy)

	assert.Equal(t, domain.CompensationAction{Domain: "inventory", CommandType: "ReleaseStock"}, tpl.Compensations["reserve"])
	assert.Equal(t, "RefundCard", tpl.Compensations["charge"].CommandType)
	assert.Equal(t, true, tpl.Compensations["charge"].Parameters["full"])
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad yaml": "name: [",
		"unknown field": `
name: x
stepz: []`,
		"no steps": `name: x`,
		"step not a map": `
name: x
steps: [reserve]`,
		"bad retry shorthand": `
name: x
steps:
  - {id: a, domain: d, command_type: C, retry_policy: sometimes}`,
		"bad compensation shorthand": `
name: x
steps:
  - {id: a, domain: d, command_type: C}
compensations:
  a: justacommand`,
		"orphan compensation": `
name: x
steps:
  - {id: a, domain: d, command_type: C}
compensations:
  b: d/Undo`,
		"cycle": `
name: x
steps:
  - {id: a, domain: d, command_type: C, depends_on: [b]}
  - {id: b, domain: d, command_type: C, depends_on: [a]}`,
		"rule on unknown step": `
name: x
steps:
  - {id: a, domain: d, command_type: C}
events:
  - {event: Done, input: step_completed, step: zzz}`,
		"rule with unknown input": `
name: x
steps:
  - {id: a, domain: d, command_type: C}
events:
  - {event: Done, input: finished, step: a}`,
		"rule on missing compensation": `
name: x
steps:
  - {id: a, domain: d, command_type: C}
events:
  - {event: Undone, input: compensation_completed, step: a}`,
		"unknown parameter type": `
name: x
parameters: {id: uuid}
steps:
  - {id: a, domain: d, command_type: C}`,
		"optional correlation parameter": `
name: x
correlation_key: id
parameters: {id: string?}
steps:
  - {id: a, domain: d, command_type: C}`,
		"start rule without event": `
name: x
steps:
  - {id: a, domain: d, command_type: C}
start_on:
  - params: [id]`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := definition.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_ValidationErrorsAreTyped(t *testing.T) {
	_, err := definition.Parse([]byte(`
name: x
steps:
  - {id: a, domain: d, command_type: C}
events:
  - {event: Done, input: step_completed, step: zzz}`))
	assert.ErrorIs(t, err, domain.ErrInvalidSaga)
}

func TestTemplate_CreateSaga(t *testing.T) {
	tpl := loadOrder(t)

	saga, err := tpl.CreateSaga(context.Background(), map[string]any{"order_id": 42, "amount": 9.5})
	require.NoError(t, err)

	assert.Equal(t, "order-fulfillment", saga.Name)
	assert.Equal(t, "42", saga.CorrelationID)
	assert.Equal(t, domain.StatusPending, saga.State.Status)
	assert.Equal(t, "EUR", saga.Context["currency"])
	assert.Equal(t, 9.5, saga.Context["amount"])
	assert.Equal(t, "order-fulfillment", saga.Metadata["template"])
	require.NoError(t, domain.Validate(saga))

	// Sagas do not share state with the template or each other.
	saga.Steps[1].DependsOn[0] = "mutated"
	saga.Compensations["charge"].Parameters["full"] = false
	other, err := tpl.CreateSaga(context.Background(), map[string]any{"order_id": 43})
	require.NoError(t, err)
	assert.Equal(t, []string{"reserve"}, other.Steps[1].DependsOn)
	assert.Equal(t, true, other.Compensations["charge"].Parameters["full"])
	assert.NotContains(t, other.Context, "amount")

	_, err = tpl.CreateSaga(context.Background(), map[string]any{"amount": 1})
	assert.ErrorContains(t, err, "order_id")
}

func TestTemplate_EventToInput(t *testing.T) {
	tpl := loadOrder(t)
	saga, err := tpl.CreateSaga(context.Background(), map[string]any{"order_id": "o-1"})
	require.NoError(t, err)

	payload := json.RawMessage(`{"sku":"A1"}`)
	in, ok := tpl.EventToInput(saga, domain.DomainEvent{Type: "StockReserved", CorrelationID: "o-1", Payload: payload})
	require.True(t, ok)
	assert.Equal(t, domain.StepCompletedInput("reserve", payload), in)

	in, ok = tpl.EventToInput(saga, domain.DomainEvent{Type: "PaymentDeclined", Payload: json.RawMessage(`{"reason":"insufficient funds"}`)})
	require.True(t, ok)
	assert.Equal(t, domain.StepFailedInput("charge", "insufficient funds"), in)

	in, ok = tpl.EventToInput(saga, domain.DomainEvent{Type: "PaymentDeclined"})
	require.True(t, ok)
	assert.Equal(t, "PaymentDeclined", in.Error, "falls back to the event type")

	in, ok = tpl.EventToInput(saga, domain.DomainEvent{Type: "StockReleased"})
	require.True(t, ok)
	assert.Equal(t, domain.CompensationCompletedInput("reserve"), in)

	_, ok = tpl.EventToInput(saga, domain.DomainEvent{Type: "CustomerEmailed"})
	assert.False(t, ok)
}

func TestTemplate_EventRuleDomainFilter(t *testing.T) {
	tpl, err := definition.Parse([]byte(`
name: x
steps:
  - {id: a, domain: d, command_type: C}
compensations:
  a: d/Undo
events:
  - {event: Done, domain: billing, input: step_completed, step: a}
  - {event: UndoFailed, input: compensation_failed, step: a}`))
	require.NoError(t, err)

	_, ok := tpl.EventToInput(nil, domain.DomainEvent{Type: "Done", Domain: "shipping"})
	assert.False(t, ok)
	_, ok = tpl.EventToInput(nil, domain.DomainEvent{Type: "Done", Domain: "billing"})
	assert.True(t, ok)

	in, ok := tpl.EventToInput(nil, domain.DomainEvent{Type: "UndoFailed", Payload: json.RawMessage(`{"error":"locked"}`)})
	require.True(t, ok)
	assert.Equal(t, domain.CompensationFailedInput("a", "locked"), in)
}

func TestTemplate_Callbacks(t *testing.T) {
	tpl := loadOrder(t)
	ctx := context.Background()

	assert.NoError(t, tpl.OnCompleted(ctx, &domain.Saga{}))
	assert.NoError(t, tpl.OnFailed(ctx, &domain.Saga{}, "boom"))

	var completed, reason string
	errNotify := errors.New("notify failed")
	tpl.WithCallbacks(definition.Callbacks{
		Completed: func(_ context.Context, s *domain.Saga) error {
			completed = s.ID
			return nil
		},
		Failed: func(_ context.Context, _ *domain.Saga, r string) error {
			reason = r
			return errNotify
		},
	})

	require.NoError(t, tpl.OnCompleted(ctx, &domain.Saga{ID: "s-1"}))
	assert.Equal(t, "s-1", completed)
	assert.ErrorIs(t, tpl.OnFailed(ctx, &domain.Saga{}, "step charge failed"), errNotify)
	assert.Equal(t, "step charge failed", reason)
}

func TestTemplate_Policies(t *testing.T) {
	tpl := loadOrder(t)
	policies := tpl.Policies()
	require.Len(t, policies, 1)
	p := policies[0]
	assert.Equal(t, "order-fulfillment/OrderPlaced", p.Name())

	ctx := context.Background()
	ev := domain.DomainEvent{
		Type:          "OrderPlaced",
		Domain:        "orders",
		CorrelationID: "o-7",
		Payload:       json.RawMessage(`{"order_id":"o-7","amount":12,"note":"leave at door"}`),
	}

	req, ok := p.ShouldStart(ctx, ev)
	require.True(t, ok)
	assert.Equal(t, "order-fulfillment", req.SagaType)
	assert.Equal(t, "o-7", req.CorrelationID)
	assert.Equal(t, map[string]any{"order_id": "o-7", "amount": float64(12)}, req.Params)

	_, ok = p.ShouldStart(ctx, domain.DomainEvent{Type: "OrderPlaced", Domain: "web"})
	assert.False(t, ok)
	_, ok = p.ShouldStart(ctx, domain.DomainEvent{Type: "OrderCancelled", Domain: "orders"})
	assert.False(t, ok)
	_, ok = p.ShouldStart(ctx, domain.DomainEvent{Type: "OrderPlaced", Domain: "orders", Payload: json.RawMessage(`[1]`)})
	assert.False(t, ok)
}

func TestTemplate_PolicyWithoutParamsCopiesPayload(t *testing.T) {
	tpl, err := definition.Parse([]byte(`
name: x
steps:
  - {id: a, domain: d, command_type: C}
start_on:
  - event: Go`))
	require.NoError(t, err)

	req, ok := tpl.Policies()[0].ShouldStart(context.Background(), domain.DomainEvent{
		Type:    "Go",
		Payload: json.RawMessage(`{"k":"v"}`),
	})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"k": "v"}, req.Params)
}

func TestLoad(t *testing.T) {
	templates, err := definition.Load("testdata")
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "order-fulfillment", templates[0].Name)
	assert.Equal(t, "refund", templates[1].Name)

	single, err := definition.Load(filepath.Join("testdata", "refund.json"))
	require.NoError(t, err)
	require.Len(t, single, 1)

	_, err = definition.Load(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadDir_RejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	doc := []byte("name: dup\nsteps:\n  - {id: a, domain: d, command_type: C}\n")
	require.NoError(t, writeFile(filepath.Join(dir, "a.yaml"), doc))
	require.NoError(t, writeFile(filepath.Join(dir, "b.yml"), doc))

	_, err := definition.LoadDir(dir)
	assert.ErrorContains(t, err, `saga "dup" defined in both`)
}

func TestCreateSaga_ValidatesParameters(t *testing.T) {
	tpl, err := definition.Parse([]byte(`
name: typed
correlation_key: id
parameters:
  id: string
  qty: int
  note: string?
defaults:
  qty: 1
steps:
  - {id: a, domain: d, command_type: C}
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "string", "qty": "int", "note": "string?"}, tpl.Parameters.Types())

	saga, err := tpl.CreateSaga(context.Background(), map[string]any{"id": "x-1"})
	require.NoError(t, err, "defaults satisfy qty")
	assert.Equal(t, "x-1", saga.CorrelationID)

	_, err = tpl.CreateSaga(context.Background(), map[string]any{"id": "x-2", "qty": "many"})
	require.ErrorIs(t, err, domain.ErrInvalidSaga)
	assert.Contains(t, err.Error(), `parameter "qty"`)

	_, err = tpl.CreateSaga(context.Background(), map[string]any{"id": 7})
	assert.ErrorIs(t, err, domain.ErrInvalidSaga)
}

func TestCreateSaga_CorrelationFromDefaults(t *testing.T) {
	tpl, err := definition.Parse([]byte(`
name: nightly
correlation_key: batch
defaults:
  batch: nightly-run
steps:
  - {id: a, domain: d, command_type: C}
`))
	require.NoError(t, err)

	saga, err := tpl.CreateSaga(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "nightly-run", saga.CorrelationID)

	saga, err = tpl.CreateSaga(context.Background(), map[string]any{"batch": "manual-7"})
	require.NoError(t, err)
	assert.Equal(t, "manual-7", saga.CorrelationID)
}

func TestCreateSaga_MissingCorrelationIsInvalid(t *testing.T) {
	tpl := loadOrder(t)

	_, err := tpl.CreateSaga(context.Background(), map[string]any{"amount": 1})
	require.ErrorIs(t, err, domain.ErrInvalidSaga)
	assert.ErrorContains(t, err, `missing correlation parameter "order_id"`)

	_, err = tpl.CreateSaga(context.Background(), map[string]any{"order_id": nil})
	assert.ErrorIs(t, err, domain.ErrInvalidSaga)
}
