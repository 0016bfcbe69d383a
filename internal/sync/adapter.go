package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/njoerd114/plannersync/internal/model"
	"github.com/njoerd114/plannersync/internal/remote"
	"github.com/njoerd114/plannersync/internal/session"
)

// Stats counts what one push/reconcile cycle did.
type Stats struct {
	Pushed       int // records sent in the batch
	Acknowledged int
	Rejected     int
	Deferred     int // held back because a reference has no server id yet
	Purged       int // acknowledged tombstones removed
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Pushed += o.Pushed
	s.Acknowledged += o.Acknowledged
	s.Rejected += o.Rejected
	s.Deferred += o.Deferred
	s.Purged += o.Purged
}

// sentRecord is the state of a pending record at the moment it was put in a
// batch. Acknowledgments are judged against it, not against whatever the
// server echoes back.
type sentRecord struct {
	lastModified int64
	tombstone    bool
}

// mapping is a domain's translation pair between local records and wire
// records.
type mapping[T any, W remote.Record] struct {
	// toWire builds the wire record for rec. It reports false when a
	// reference cannot be resolved to a server id yet.
	toWire func(ctx context.Context, rec *T) (W, bool, error)

	// fromWire rebuilds a local record from w. When local is non-nil it is
	// the existing row and supplies local-only fields; otherwise references
	// are translated from server ids.
	fromWire func(ctx context.Context, w W, local *T) (*T, error)
}

// Adapter runs one domain's push/reconcile cycle. Create one with the
// domain constructors ([NewCategoryAdapter] and friends).
type Adapter[T any, PT recordPtr[T], W remote.Record] struct {
	domain    string
	store     LocalStore[T]
	transport Transport[W]
	mapping   mapping[T, W]
	log       *slog.Logger
}

// Domain returns the domain name, e.g. "category".
func (a *Adapter[T, PT, W]) Domain() string { return a.domain }

// Sync pushes the owner's pending records and applies the server's verdict.
//
// Records whose references have no server id yet are left Pending for a
// later pass. On a transport failure nothing is written locally. A received
// response is applied record by record.
func (a *Adapter[T, PT, W]) Sync(ctx context.Context, sess session.Session) (Stats, error) {
	var stats Stats
	owner := sess.OwnerID

	pending, err := a.store.GetPending(ctx, owner)
	if err != nil {
		return stats, fmt.Errorf("fetching pending %s records: %w", a.domain, err)
	}

	batch := make([]W, 0, len(pending))
	sent := make(map[int64]sentRecord, len(pending))
	for _, rec := range pending {
		meta := PT(rec).Meta()
		w, ok, err := a.mapping.toWire(ctx, rec)
		if err != nil {
			return stats, fmt.Errorf("mapping %s %d: %w", a.domain, meta.LocalID, err)
		}
		if !ok {
			stats.Deferred++
			a.log.Debug("deferring record with unresolved reference",
				"domain", a.domain, "local_id", meta.LocalID)
			continue
		}
		batch = append(batch, w)
		sent[meta.LocalID] = sentRecord{lastModified: meta.LastModified, tombstone: meta.IsDeleted}
	}

	if len(batch) == 0 {
		return stats, nil
	}

	stats.Pushed = len(batch)
	res, err := a.transport.PushBatch(ctx, owner, batch)
	if err != nil {
		return stats, fmt.Errorf("pushing %s batch: %w", a.domain, err)
	}

	for _, w := range res.Acknowledged {
		if err := a.acknowledge(ctx, owner, w, sent, &stats); err != nil {
			return stats, err
		}
	}
	for _, w := range res.Rejected {
		if err := a.reject(ctx, owner, w, sent, &stats); err != nil {
			return stats, err
		}
	}

	a.log.Debug("domain synced",
		"domain", a.domain,
		"pushed", stats.Pushed,
		"acknowledged", stats.Acknowledged,
		"rejected", stats.Rejected,
		"deferred", stats.Deferred,
		"purged", stats.Purged,
	)
	return stats, nil
}

func (a *Adapter[T, PT, W]) acknowledge(ctx context.Context, owner int64, w W, sent map[int64]sentRecord, stats *Stats) error {
	wm := w.WireMeta()
	snap, ok := sent[wm.RecordID]
	if !ok {
		a.log.Warn("ignoring acknowledgment for a record that was not sent",
			"domain", a.domain, "local_id", wm.RecordID)
		return nil
	}
	if wm.ServerID == 0 {
		a.log.Warn("acknowledgment carries no server id; record stays pending",
			"domain", a.domain, "local_id", wm.RecordID)
		return nil
	}

	local, err := a.store.GetByLocalID(ctx, wm.RecordID, owner)
	if err != nil {
		return fmt.Errorf("loading acknowledged %s %d: %w", a.domain, wm.RecordID, err)
	}
	if local == nil {
		// Already applied, or purged since. Either way nothing to do.
		return nil
	}
	stats.Acknowledged++

	if snap.tombstone {
		if err := a.store.Delete(ctx, local); err != nil {
			return fmt.Errorf("purging acknowledged %s %d: %w", a.domain, wm.RecordID, err)
		}
		stats.Purged++
		return nil
	}

	rec, err := a.mapping.fromWire(ctx, w, local)
	if err != nil {
		return fmt.Errorf("mapping acknowledged %s %d: %w", a.domain, wm.RecordID, err)
	}
	meta := PT(rec).Meta()
	meta.LocalID = wm.RecordID
	meta.OwnerID = owner
	meta.LastModified = snap.lastModified
	meta.IsDeleted = false
	meta.MarkSynced(wm.ServerID)

	synced, err := a.store.ApplyAcknowledged(ctx, rec)
	if err != nil {
		return fmt.Errorf("applying acknowledged %s %d: %w", a.domain, wm.RecordID, err)
	}
	if !synced {
		a.log.Debug("kept newer local edit over acknowledgment",
			"domain", a.domain, "local_id", wm.RecordID, "server_id", wm.ServerID)
	}
	return nil
}

func (a *Adapter[T, PT, W]) reject(ctx context.Context, owner int64, w W, sent map[int64]sentRecord, stats *Stats) error {
	wm := w.WireMeta()
	snap, ok := sent[wm.RecordID]
	if !ok {
		a.log.Warn("ignoring rejection for a record that was not sent",
			"domain", a.domain, "local_id", wm.RecordID)
		return nil
	}

	local, err := a.store.GetByLocalID(ctx, wm.RecordID, owner)
	if err != nil {
		return fmt.Errorf("loading rejected %s %d: %w", a.domain, wm.RecordID, err)
	}
	if local == nil {
		return nil
	}
	if lm := PT(local).Meta().LastModified; lm > snap.lastModified {
		a.log.Debug("rejected record was edited after it was sent; discarding the edit",
			"domain", a.domain, "local_id", wm.RecordID,
			"sent_modified", snap.lastModified, "local_modified", lm)
	}
	if err := a.store.Delete(ctx, local); err != nil {
		return fmt.Errorf("deleting rejected %s %d: %w", a.domain, wm.RecordID, err)
	}
	stats.Rejected++
	a.log.Warn("server rejected record; deleted locally",
		"domain", a.domain, "local_id", wm.RecordID)
	return nil
}

// Hydrate pulls every server record of the owner that is not yet known
// locally and stores it as Synced. It returns the number of records added.
func (a *Adapter[T, PT, W]) Hydrate(ctx context.Context, sess session.Session) (int, error) {
	records, err := a.transport.GetAll(ctx, sess.OwnerID)
	if err != nil {
		return 0, fmt.Errorf("fetching %s records: %w", a.domain, err)
	}

	added := 0
	for _, w := range records {
		wm := w.WireMeta()
		if wm.ServerID == 0 || wm.IsDeleted {
			continue
		}
		known, err := a.store.LocalID(ctx, wm.ServerID)
		if err != nil {
			return added, fmt.Errorf("looking up %s server id %d: %w", a.domain, wm.ServerID, err)
		}
		if known != nil {
			continue
		}

		rec, err := a.mapping.fromWire(ctx, w, nil)
		if err != nil {
			return added, fmt.Errorf("mapping %s server id %d: %w", a.domain, wm.ServerID, err)
		}
		meta := PT(rec).Meta()
		*meta = model.SyncMeta{
			OwnerID:      sess.OwnerID,
			LastModified: wm.LastModified,
		}
		meta.MarkSynced(wm.ServerID)

		if err := a.store.Upsert(ctx, rec); err != nil {
			return added, fmt.Errorf("storing %s server id %d: %w", a.domain, wm.ServerID, err)
		}
		added++
	}

	if added > 0 {
		a.log.Info("hydrated records from server", "domain", a.domain, "count", added)
	}
	return added, nil
}
