package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/njoerd114/plannersync/internal/model"
)

const (
	tableEvents  = "events"
	eventColumns = `local_id, owner_id, server_id, title, description, date, start_time,
		end_time, priority, location, category_id, reminder_id,
		last_modified, sync_state, is_deleted`
)

// EventStore holds events and their sync metadata. CategoryID and ReminderID
// are stored as local ids.
type EventStore struct {
	db    *sql.DB
	clock *Clock
}

// Insert stores e as a new pending record and sets e.LocalID.
func (s *EventStore) Insert(ctx context.Context, e *model.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return insertEvent(ctx, s.db, s.clock, e)
}

// Upsert writes e keyed by its LocalID. A zero LocalID inserts a new row.
func (s *EventStore) Upsert(ctx context.Context, e *model.Event) error {
	return upsertEvent(ctx, s.db, e)
}

// ApplyAcknowledged writes an acknowledged snapshot unless the row changed
// locally after it was taken. It reports whether the row is now synced.
func (s *EventStore) ApplyAcknowledged(ctx context.Context, e *model.Event) (bool, error) {
	return applyAck(ctx, s.db, tableEvents, &e.SyncMeta, func(tx dbtx) error {
		return upsertEvent(ctx, tx, e)
	})
}

// Update replaces the editable fields of a live event and marks it pending.
func (s *EventStore) Update(ctx context.Context, f model.EventFields, localID, ownerID int64) error {
	if err := f.Validate(); err != nil {
		return err
	}
	const q = `
		UPDATE events SET title = ?, description = ?, date = ?, start_time = ?,
		       end_time = ?, priority = ?, location = ?, category_id = ?, reminder_id = ?,
		       sync_state = 0, last_modified = MAX(last_modified + 1, ?)
		WHERE local_id = ? AND owner_id = ? AND is_deleted = 0`
	res, err := s.db.ExecContext(ctx, q,
		f.Title, f.Description, f.Date, f.StartTime, f.EndTime, int(f.Priority), f.Location,
		nullID(f.CategoryID), nullID(f.ReminderID),
		s.clock.Next(), localID, ownerID)
	if err != nil {
		return fmt.Errorf("updating event %d: %w", localID, err)
	}
	return expectOneRow(res, tableEvents, localID)
}

// SoftDelete tombstones the event.
func (s *EventStore) SoftDelete(ctx context.Context, localID, ownerID int64) error {
	return softDeleteRow(ctx, s.db, tableEvents, s.clock.Next(), localID, ownerID)
}

// Delete physically removes the row.
func (s *EventStore) Delete(ctx context.Context, e *model.Event) error {
	return deleteRow(ctx, s.db, tableEvents, e.LocalID, e.OwnerID)
}

// GetByLocalID returns the event, tombstones included, or (nil, nil).
func (s *EventStore) GetByLocalID(ctx context.Context, localID, ownerID int64) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE local_id = ? AND owner_id = ?`,
		localID, ownerID)
	return scanEvent(row)
}

// GetPending returns every pending event of the owner, oldest first.
func (s *EventStore) GetPending(ctx context.Context, ownerID int64) ([]*model.Event, error) {
	return listEvents(ctx, s.db, `WHERE owner_id = ? AND sync_state = 0 ORDER BY local_id`, ownerID)
}

// GetAll returns the owner's live events ordered by date and start time.
func (s *EventStore) GetAll(ctx context.Context, ownerID int64) ([]*model.Event, error) {
	return listEvents(ctx, s.db,
		`WHERE owner_id = ? AND is_deleted = 0 ORDER BY date, start_time, local_id`, ownerID)
}

// GetByDate returns the owner's live events on date (YYYY-MM-DD).
func (s *EventStore) GetByDate(ctx context.Context, ownerID int64, date string) ([]*model.Event, error) {
	return listEvents(ctx, s.db,
		`WHERE owner_id = ? AND date = ? AND is_deleted = 0 ORDER BY start_time, local_id`, ownerID, date)
}

// CountPending returns the number of pending events of the owner.
func (s *EventStore) CountPending(ctx context.Context, ownerID int64) (int, error) {
	return countPending(ctx, s.db, tableEvents, ownerID)
}

// ServerID maps a local id to its server id, or nil.
func (s *EventStore) ServerID(ctx context.Context, localID int64) (*int64, error) {
	return serverIDOf(ctx, s.db, tableEvents, localID)
}

// LocalID maps a server id back to the local id, or nil.
func (s *EventStore) LocalID(ctx context.Context, serverID int64) (*int64, error) {
	return localIDOf(ctx, s.db, tableEvents, serverID)
}

func insertEvent(ctx context.Context, q dbtx, clock *Clock, e *model.Event) error {
	e.LocalID = 0
	e.ServerID = nil
	e.SyncState = model.SyncPending
	e.IsDeleted = false
	e.LastModified = clock.Next()
	return upsertEvent(ctx, q, e)
}

func upsertEvent(ctx context.Context, q dbtx, e *model.Event) error {
	const stmt = `
		INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
		    owner_id      = excluded.owner_id,
		    server_id     = COALESCE(events.server_id, excluded.server_id),
		    title         = excluded.title,
		    description   = excluded.description,
		    date          = excluded.date,
		    start_time    = excluded.start_time,
		    end_time      = excluded.end_time,
		    priority      = excluded.priority,
		    location      = excluded.location,
		    category_id   = excluded.category_id,
		    reminder_id   = excluded.reminder_id,
		    last_modified = excluded.last_modified,
		    sync_state    = excluded.sync_state,
		    is_deleted    = excluded.is_deleted`

	res, err := q.ExecContext(ctx, stmt,
		localIDArg(e.LocalID),
		e.OwnerID,
		nullID(e.ServerID),
		e.Title,
		e.Description,
		e.Date,
		e.StartTime,
		e.EndTime,
		int(e.Priority),
		e.Location,
		nullID(e.CategoryID),
		nullID(e.ReminderID),
		e.LastModified,
		int(e.SyncState),
		boolInt(e.IsDeleted),
	)
	if err != nil {
		return fmt.Errorf("upserting event %q: %w", e.Title, err)
	}
	return assignLocalID(res, &e.SyncMeta)
}

func listEvents(ctx context.Context, q dbtx, where string, args ...any) ([]*model.Event, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+eventColumns+` FROM events `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(s scanner) (*model.Event, error) {
	var e model.Event
	var serverID, categoryID, reminderID sql.NullInt64
	var priority, state, deleted int

	err := s.Scan(
		&e.LocalID,
		&e.OwnerID,
		&serverID,
		&e.Title,
		&e.Description,
		&e.Date,
		&e.StartTime,
		&e.EndTime,
		&priority,
		&e.Location,
		&categoryID,
		&reminderID,
		&e.LastModified,
		&state,
		&deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning event row: %w", err)
	}

	e.Priority = model.Priority(priority)
	e.CategoryID = idPtr(categoryID)
	e.ReminderID = idPtr(reminderID)
	e.ServerID = idPtr(serverID)
	e.SyncState = model.SyncState(state)
	e.IsDeleted = deleted == 1
	return &e, nil
}
