package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/njoerd114/plannersync/internal/model"
)

const (
	tableReminders  = "reminders"
	reminderColumns = `local_id, owner_id, server_id, time, frequency, status, message,
		last_modified, sync_state, is_deleted`
)

// ReminderStore holds reminders and their sync metadata.
type ReminderStore struct {
	db    *sql.DB
	clock *Clock
}

// Insert stores r as a new pending record and sets r.LocalID.
func (s *ReminderStore) Insert(ctx context.Context, r *model.Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return insertReminder(ctx, s.db, s.clock, r)
}

// Upsert writes r keyed by its LocalID. A zero LocalID inserts a new row.
func (s *ReminderStore) Upsert(ctx context.Context, r *model.Reminder) error {
	return upsertReminder(ctx, s.db, r)
}

// ApplyAcknowledged writes an acknowledged snapshot unless the row changed
// locally after it was taken. It reports whether the row is now synced.
func (s *ReminderStore) ApplyAcknowledged(ctx context.Context, r *model.Reminder) (bool, error) {
	return applyAck(ctx, s.db, tableReminders, &r.SyncMeta, func(tx dbtx) error {
		return upsertReminder(ctx, tx, r)
	})
}

// Update replaces the editable fields of a live reminder and marks it
// pending.
func (s *ReminderStore) Update(ctx context.Context, f model.ReminderFields, localID, ownerID int64) error {
	if err := f.Validate(); err != nil {
		return err
	}
	f = withReminderDefaults(f)
	const q = `
		UPDATE reminders SET time = ?, frequency = ?, status = ?, message = ?,
		       sync_state = 0, last_modified = MAX(last_modified + 1, ?)
		WHERE local_id = ? AND owner_id = ? AND is_deleted = 0`
	res, err := s.db.ExecContext(ctx, q,
		formatTime(f.Time), string(f.Frequency), string(f.Status), f.Message,
		s.clock.Next(), localID, ownerID)
	if err != nil {
		return fmt.Errorf("updating reminder %d: %w", localID, err)
	}
	return expectOneRow(res, tableReminders, localID)
}

// SoftDelete tombstones the reminder. Events keep their reference until the
// row is purged, at which point it is cleared.
func (s *ReminderStore) SoftDelete(ctx context.Context, localID, ownerID int64) error {
	return softDeleteRow(ctx, s.db, tableReminders, s.clock.Next(), localID, ownerID)
}

// Delete physically removes the row.
func (s *ReminderStore) Delete(ctx context.Context, r *model.Reminder) error {
	return deleteRow(ctx, s.db, tableReminders, r.LocalID, r.OwnerID)
}

// GetByLocalID returns the reminder, tombstones included, or (nil, nil).
func (s *ReminderStore) GetByLocalID(ctx context.Context, localID, ownerID int64) (*model.Reminder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE local_id = ? AND owner_id = ?`,
		localID, ownerID)
	return scanReminder(row)
}

// GetPending returns every pending reminder of the owner, oldest first.
func (s *ReminderStore) GetPending(ctx context.Context, ownerID int64) ([]*model.Reminder, error) {
	return listReminders(ctx, s.db, `WHERE owner_id = ? AND sync_state = 0 ORDER BY local_id`, ownerID)
}

// GetAll returns the owner's live reminders.
func (s *ReminderStore) GetAll(ctx context.Context, ownerID int64) ([]*model.Reminder, error) {
	return listReminders(ctx, s.db, `WHERE owner_id = ? AND is_deleted = 0 ORDER BY local_id`, ownerID)
}

// CountPending returns the number of pending reminders of the owner.
func (s *ReminderStore) CountPending(ctx context.Context, ownerID int64) (int, error) {
	return countPending(ctx, s.db, tableReminders, ownerID)
}

// ServerID maps a local id to its server id, or nil.
func (s *ReminderStore) ServerID(ctx context.Context, localID int64) (*int64, error) {
	return serverIDOf(ctx, s.db, tableReminders, localID)
}

// LocalID maps a server id back to the local id, or nil.
func (s *ReminderStore) LocalID(ctx context.Context, serverID int64) (*int64, error) {
	return localIDOf(ctx, s.db, tableReminders, serverID)
}

func insertReminder(ctx context.Context, q dbtx, clock *Clock, r *model.Reminder) error {
	r.LocalID = 0
	r.ServerID = nil
	r.SyncState = model.SyncPending
	r.IsDeleted = false
	r.LastModified = clock.Next()
	return upsertReminder(ctx, q, r)
}

func upsertReminder(ctx context.Context, q dbtx, r *model.Reminder) error {
	const stmt = `
		INSERT INTO reminders (` + reminderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
		    owner_id      = excluded.owner_id,
		    server_id     = COALESCE(reminders.server_id, excluded.server_id),
		    time          = excluded.time,
		    frequency     = excluded.frequency,
		    status        = excluded.status,
		    message       = excluded.message,
		    last_modified = excluded.last_modified,
		    sync_state    = excluded.sync_state,
		    is_deleted    = excluded.is_deleted`

	r.ReminderFields = withReminderDefaults(r.ReminderFields)
	res, err := q.ExecContext(ctx, stmt,
		localIDArg(r.LocalID),
		r.OwnerID,
		nullID(r.ServerID),
		formatTime(r.Time),
		string(r.Frequency),
		string(r.Status),
		r.Message,
		r.LastModified,
		int(r.SyncState),
		boolInt(r.IsDeleted),
	)
	if err != nil {
		return fmt.Errorf("upserting reminder %q: %w", r.Message, err)
	}
	return assignLocalID(res, &r.SyncMeta)
}

func listReminders(ctx context.Context, q dbtx, where string, args ...any) ([]*model.Reminder, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+reminderColumns+` FROM reminders `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reminders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReminder(s scanner) (*model.Reminder, error) {
	var r model.Reminder
	var serverID sql.NullInt64
	var at, frequency, status string
	var state, deleted int

	err := s.Scan(
		&r.LocalID,
		&r.OwnerID,
		&serverID,
		&at,
		&frequency,
		&status,
		&r.Message,
		&r.LastModified,
		&state,
		&deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning reminder row: %w", err)
	}

	r.Time, _ = parseTime(at)
	r.Frequency = model.Frequency(frequency)
	r.Status = model.ReminderStatus(status)
	r.ServerID = idPtr(serverID)
	r.SyncState = model.SyncState(state)
	r.IsDeleted = deleted == 1
	return &r, nil
}

func withReminderDefaults(f model.ReminderFields) model.ReminderFields {
	if f.Frequency == "" {
		f.Frequency = model.FrequencyOnce
	}
	if f.Status == "" {
		f.Status = model.ReminderActive
	}
	return f
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
