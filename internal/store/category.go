package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/njoerd114/plannersync/internal/model"
)

const (
	tableCategories = "categories"
	categoryColumns = `local_id, owner_id, server_id, name, description, color, icon,
		last_modified, sync_state, is_deleted`
)

// CategoryStore holds categories and their sync metadata.
type CategoryStore struct {
	db    *sql.DB
	clock *Clock
}

// Insert stores c as a new pending record and sets c.LocalID.
func (s *CategoryStore) Insert(ctx context.Context, c *model.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.LocalID = 0
	c.ServerID = nil
	c.SyncState = model.SyncPending
	c.IsDeleted = false
	c.LastModified = s.clock.Next()
	return upsertCategory(ctx, s.db, c)
}

// Upsert writes c keyed by its LocalID. A zero LocalID inserts a new row.
// An already-assigned server id is never replaced.
func (s *CategoryStore) Upsert(ctx context.Context, c *model.Category) error {
	return upsertCategory(ctx, s.db, c)
}

// ApplyAcknowledged writes an acknowledged snapshot unless the row changed
// locally after it was taken. It reports whether the row is now synced.
func (s *CategoryStore) ApplyAcknowledged(ctx context.Context, c *model.Category) (bool, error) {
	return applyAck(ctx, s.db, tableCategories, &c.SyncMeta, func(tx dbtx) error {
		return upsertCategory(ctx, tx, c)
	})
}

// Update replaces the editable fields of a live category and marks it
// pending.
func (s *CategoryStore) Update(ctx context.Context, f model.CategoryFields, localID, ownerID int64) error {
	if err := f.Validate(); err != nil {
		return err
	}
	const q = `
		UPDATE categories SET name = ?, description = ?, color = ?, icon = ?,
		       sync_state = 0, last_modified = MAX(last_modified + 1, ?)
		WHERE local_id = ? AND owner_id = ? AND is_deleted = 0`
	res, err := s.db.ExecContext(ctx, q, f.Name, f.Description, f.Color, f.Icon, s.clock.Next(), localID, ownerID)
	if err != nil {
		return fmt.Errorf("updating category %d: %w", localID, err)
	}
	return expectOneRow(res, tableCategories, localID)
}

// SoftDelete tombstones the category and every live event filed under it,
// so both deletions are pushed.
func (s *CategoryStore) SoftDelete(ctx context.Context, localID, ownerID int64) error {
	return withTx(ctx, s.db, func(tx dbtx) error {
		ts := s.clock.Next()
		if err := softDeleteRow(ctx, tx, tableCategories, ts, localID, ownerID); err != nil {
			return err
		}
		const q = `
			UPDATE events SET is_deleted = 1, sync_state = 0, last_modified = MAX(last_modified + 1, ?)
			WHERE category_id = ? AND owner_id = ? AND is_deleted = 0`
		if _, err := tx.ExecContext(ctx, q, ts, localID, ownerID); err != nil {
			return fmt.Errorf("tombstoning events of category %d: %w", localID, err)
		}
		return nil
	})
}

// Delete physically removes the row. Events filed under it keep existing
// with no category, so their own tombstones are still pushed.
func (s *CategoryStore) Delete(ctx context.Context, c *model.Category) error {
	return deleteRow(ctx, s.db, tableCategories, c.LocalID, c.OwnerID)
}

// GetByLocalID returns the category, tombstones included, or (nil, nil)
// if no such row exists for the owner.
func (s *CategoryStore) GetByLocalID(ctx context.Context, localID, ownerID int64) (*model.Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE local_id = ? AND owner_id = ?`,
		localID, ownerID)
	return scanCategory(row)
}

// GetPending returns every pending category of the owner, tombstones
// included, oldest first.
func (s *CategoryStore) GetPending(ctx context.Context, ownerID int64) ([]*model.Category, error) {
	return listCategories(ctx, s.db, `WHERE owner_id = ? AND sync_state = 0 ORDER BY local_id`, ownerID)
}

// GetAll returns the owner's live categories.
func (s *CategoryStore) GetAll(ctx context.Context, ownerID int64) ([]*model.Category, error) {
	return listCategories(ctx, s.db, `WHERE owner_id = ? AND is_deleted = 0 ORDER BY local_id`, ownerID)
}

// CountPending returns the number of pending categories of the owner.
func (s *CategoryStore) CountPending(ctx context.Context, ownerID int64) (int, error) {
	return countPending(ctx, s.db, tableCategories, ownerID)
}

// ServerID maps a local id to its server id. Nil means not yet acknowledged
// or no such row.
func (s *CategoryStore) ServerID(ctx context.Context, localID int64) (*int64, error) {
	return serverIDOf(ctx, s.db, tableCategories, localID)
}

// LocalID maps a server id back to the local id, or nil if unknown.
func (s *CategoryStore) LocalID(ctx context.Context, serverID int64) (*int64, error) {
	return localIDOf(ctx, s.db, tableCategories, serverID)
}

func upsertCategory(ctx context.Context, q dbtx, c *model.Category) error {
	const stmt = `
		INSERT INTO categories (` + categoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
		    owner_id      = excluded.owner_id,
		    server_id     = COALESCE(categories.server_id, excluded.server_id),
		    name          = excluded.name,
		    description   = excluded.description,
		    color         = excluded.color,
		    icon          = excluded.icon,
		    last_modified = excluded.last_modified,
		    sync_state    = excluded.sync_state,
		    is_deleted    = excluded.is_deleted`

	res, err := q.ExecContext(ctx, stmt,
		localIDArg(c.LocalID),
		c.OwnerID,
		nullID(c.ServerID),
		c.Name,
		c.Description,
		c.Color,
		c.Icon,
		c.LastModified,
		int(c.SyncState),
		boolInt(c.IsDeleted),
	)
	if err != nil {
		return fmt.Errorf("upserting category %q: %w", c.Name, err)
	}
	return assignLocalID(res, &c.SyncMeta)
}

func listCategories(ctx context.Context, q dbtx, where string, args ...any) ([]*model.Category, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCategory(s scanner) (*model.Category, error) {
	var c model.Category
	var serverID sql.NullInt64
	var state, deleted int

	err := s.Scan(
		&c.LocalID,
		&c.OwnerID,
		&serverID,
		&c.Name,
		&c.Description,
		&c.Color,
		&c.Icon,
		&c.LastModified,
		&state,
		&deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning category row: %w", err)
	}

	c.ServerID = idPtr(serverID)
	c.SyncState = model.SyncState(state)
	c.IsDeleted = deleted == 1
	return &c, nil
}
