// Package middleware decorates snapshot stores.
//
// Middlewares wrap a ports.SnapshotStore and are applied with Chain, outermost first:
//
//	store := middleware.Chain(redisStore,
//		middleware.NewRedactionMiddleware([]string{"(?i)card"}),
//		middleware.NewEncryptionMiddleware(cfg),
//	)
package middleware

import "github.com/aretw0/sagaflow/pkg/ports"

// Middleware wraps a SnapshotStore to add behavior.
type Middleware func(ports.SnapshotStore) ports.SnapshotStore

// Chain applies mws so the first one sees calls first.
func Chain(store ports.SnapshotStore, mws ...Middleware) ports.SnapshotStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
