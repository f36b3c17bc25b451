package runtime

import (
	"context"
	"fmt"
)

// withLease runs fn holding the saga's local write lock and, when configured,
// its distributed lock.
func (o *Orchestrator) withLease(ctx context.Context, inst *instance, fn func(context.Context) error) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if o.locker != nil {
		unlock, err := o.locker.Lock(ctx, "saga:"+inst.saga.ID, o.leaseTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				o.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"saga_id", inst.saga.ID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
