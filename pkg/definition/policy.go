package definition

import (
	"context"
	"encoding/json"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

type startPolicy struct {
	sagaType string
	rule     StartRule
}

// Policies returns one process policy per StartOn rule.
func (t *Template) Policies() []ports.ProcessPolicy {
	policies := make([]ports.ProcessPolicy, 0, len(t.StartOn))
	for _, rule := range t.StartOn {
		policies = append(policies, startPolicy{sagaType: t.Name, rule: rule})
	}
	return policies
}

func (p startPolicy) Name() string {
	return p.sagaType + "/" + p.rule.Event
}

// ShouldStart copies the listed payload fields into the start parameters.
// With no fields listed the whole payload object is used.
func (p startPolicy) ShouldStart(_ context.Context, event domain.DomainEvent) (ports.StartRequest, bool) {
	if event.Type != p.rule.Event {
		return ports.StartRequest{}, false
	}
	if p.rule.Domain != "" && p.rule.Domain != event.Domain {
		return ports.StartRequest{}, false
	}

	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return ports.StartRequest{}, false
		}
	}

	params := payload
	if len(p.rule.Params) > 0 {
		params = make(map[string]any, len(p.rule.Params))
		for _, key := range p.rule.Params {
			if v, ok := payload[key]; ok {
				params[key] = v
			}
		}
	}

	return ports.StartRequest{
		SagaType:      p.sagaType,
		CorrelationID: event.CorrelationID,
		Params:        params,
	}, true
}
