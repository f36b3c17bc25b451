package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type redactionMiddleware struct {
	next     ports.SnapshotStore
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware masks context and compensation parameter values whose keys
// match any of the patterns before they reach the store. The live saga is untouched.
func NewRedactionMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.SnapshotStore) ports.SnapshotStore {
		return &redactionMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *redactionMiddleware) Save(ctx context.Context, saga *domain.Saga) error {
	masked := saga.Clone()
	masked.Context = m.mask(saga.Context)
	for id, action := range masked.Compensations {
		action.Parameters = m.mask(action.Parameters)
		masked.Compensations[id] = action
	}
	return m.next.Save(ctx, masked)
}

func (m *redactionMiddleware) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	return m.next.Load(ctx, sagaID)
}

func (m *redactionMiddleware) Delete(ctx context.Context, sagaID string) error {
	return m.next.Delete(ctx, sagaID)
}

func (m *redactionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// mask returns a deep copy of in with matching keys masked at any depth.
func (m *redactionMiddleware) mask(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if m.matches(k) {
			out[k] = Mask
			continue
		}
		out[k] = m.maskValue(v)
	}
	return out
}

func (m *redactionMiddleware) maskValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return m.mask(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = m.maskValue(item)
		}
		return out
	}
	return v
}

func (m *redactionMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
