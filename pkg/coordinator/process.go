package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// ProcessManager starts sagas from policies and forwards events to the Coordinator.
type ProcessManager struct {
	coordinator *Coordinator
	logger      *slog.Logger

	mu       sync.RWMutex
	policies []ports.ProcessPolicy
}

// NewProcessManager creates a ProcessManager in front of c.
func NewProcessManager(c *Coordinator, opts ...Option) *ProcessManager {
	o := newOptions(opts)
	return &ProcessManager{coordinator: c, logger: o.logger}
}

// RegisterPolicy adds a policy. ShouldStart is called concurrently with the other
// policies, so a policy must be safe for concurrent use. The sagas they ask for
// start in registration order.
func (pm *ProcessManager) RegisterPolicy(p ports.ProcessPolicy) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.policies = append(pm.policies, p)
}

// Policies returns the names of registered policies.
func (pm *ProcessManager) Policies() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	names := make([]string, len(pm.policies))
	for i, p := range pm.policies {
		names[i] = p.Name()
	}
	return names
}

// HandleEvent evaluates every policy against event, starts the sagas they ask for,
// then routes the event to the coordinator. Returns the IDs of the sagas started.
//
// A started saga inherits the event's correlation id unless the policy sets one.
// If ctx is done before every policy has been evaluated, nothing starts.
func (pm *ProcessManager) HandleEvent(ctx context.Context, event domain.DomainEvent) ([]string, error) {
	pm.mu.RLock()
	policies := make([]ports.ProcessPolicy, len(pm.policies))
	copy(policies, pm.policies)
	pm.mu.RUnlock()

	requests := make([]*ports.StartRequest, len(policies))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range policies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if req, ok := p.ShouldStart(gctx, event); ok {
				requests[i] = &req
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate policies: %w", err)
	}

	var (
		started []string
		errs    []error
	)
	for i, req := range requests {
		if req == nil {
			continue
		}
		if req.CorrelationID == "" {
			req.CorrelationID = event.CorrelationID
		}
		pm.logger.InfoContext(ctx, "starting saga from process policy",
			"policy", policies[i].Name(),
			"saga_type", req.SagaType,
			"event_type", event.Type,
		)
		id, err := pm.coordinator.StartSaga(ctx, *req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		started = append(started, id)
	}

	if err := pm.coordinator.HandleEvent(ctx, event); err != nil {
		errs = append(errs, err)
	}
	return started, errors.Join(errs...)
}
