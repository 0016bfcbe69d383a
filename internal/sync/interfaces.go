// Package sync implements the offline-first push/reconcile engine for
// plannersync. Local mutations leave records Pending; a sync pass pushes
// them to the server domain by domain and writes the server's verdict back.
//
// The package contains three main components:
//
//   - [Adapter] runs one domain's push/reconcile cycle and its first-run
//     hydration.
//   - [Orchestrator] runs every adapter in dependency order.
//   - [Scheduler] registers the orchestrator as background jobs.
package sync

import (
	"context"

	"github.com/njoerd114/plannersync/internal/model"
	"github.com/njoerd114/plannersync/internal/remote"
)

// LocalStore is one domain's local record store, keyed by local id.
// Implemented by the per-domain stores in [store.Store].
type LocalStore[T any] interface {
	GetPending(ctx context.Context, ownerID int64) ([]*T, error)
	GetByLocalID(ctx context.Context, localID, ownerID int64) (*T, error)
	ApplyAcknowledged(ctx context.Context, rec *T) (bool, error)
	Upsert(ctx context.Context, rec *T) error
	Delete(ctx context.Context, rec *T) error
	LocalID(ctx context.Context, serverID int64) (*int64, error)
}

// IDResolver translates between local and server ids of a referenced domain.
// Implemented by the per-domain stores in [store.Store].
type IDResolver interface {
	ServerID(ctx context.Context, localID int64) (*int64, error)
	LocalID(ctx context.Context, serverID int64) (*int64, error)
}

// Transport is one domain's remote endpoint set used by the engine.
// Implemented by [remote.Client].
type Transport[W remote.Record] interface {
	PushBatch(ctx context.Context, ownerID int64, changes []W) (remote.BatchResult[W], error)
	GetAll(ctx context.Context, ownerID int64) ([]W, error)
}

// recordPtr lets generic code hold a *T while reaching its sync metadata.
type recordPtr[T any] interface {
	*T
	model.Record
}
