package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/njoerd114/plannersync/internal/model"
)

const (
	tableAccounts  = "accounts"
	accountColumns = `local_id, owner_id, server_id, username, email, display_name,
		last_modified, sync_state, is_deleted`
)

// AccountStore holds the signed-in user's profile record.
type AccountStore struct {
	db    *sql.DB
	clock *Clock
}

// Insert stores a as a new pending record and sets a.LocalID.
func (s *AccountStore) Insert(ctx context.Context, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.LocalID = 0
	a.ServerID = nil
	a.SyncState = model.SyncPending
	a.IsDeleted = false
	a.LastModified = s.clock.Next()
	return upsertAccount(ctx, s.db, a)
}

// Upsert writes a keyed by its LocalID. A zero LocalID inserts a new row.
func (s *AccountStore) Upsert(ctx context.Context, a *model.Account) error {
	return upsertAccount(ctx, s.db, a)
}

// ApplyAcknowledged writes an acknowledged snapshot unless the row changed
// locally after it was taken. It reports whether the row is now synced.
func (s *AccountStore) ApplyAcknowledged(ctx context.Context, a *model.Account) (bool, error) {
	return applyAck(ctx, s.db, tableAccounts, &a.SyncMeta, func(tx dbtx) error {
		return upsertAccount(ctx, tx, a)
	})
}

// Update replaces the editable profile fields and marks the row pending.
func (s *AccountStore) Update(ctx context.Context, f model.AccountFields, localID, ownerID int64) error {
	if err := f.Validate(); err != nil {
		return err
	}
	const q = `
		UPDATE accounts SET username = ?, email = ?, display_name = ?,
		       sync_state = 0, last_modified = MAX(last_modified + 1, ?)
		WHERE local_id = ? AND owner_id = ? AND is_deleted = 0`
	res, err := s.db.ExecContext(ctx, q, f.Username, f.Email, f.DisplayName, s.clock.Next(), localID, ownerID)
	if err != nil {
		return fmt.Errorf("updating account %d: %w", localID, err)
	}
	return expectOneRow(res, tableAccounts, localID)
}

// SoftDelete tombstones the account.
func (s *AccountStore) SoftDelete(ctx context.Context, localID, ownerID int64) error {
	return softDeleteRow(ctx, s.db, tableAccounts, s.clock.Next(), localID, ownerID)
}

// Delete physically removes the row.
func (s *AccountStore) Delete(ctx context.Context, a *model.Account) error {
	return deleteRow(ctx, s.db, tableAccounts, a.LocalID, a.OwnerID)
}

// GetByLocalID returns the account, tombstones included, or (nil, nil).
func (s *AccountStore) GetByLocalID(ctx context.Context, localID, ownerID int64) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE local_id = ? AND owner_id = ?`,
		localID, ownerID)
	return scanAccount(row)
}

// GetPending returns every pending account row of the owner.
func (s *AccountStore) GetPending(ctx context.Context, ownerID int64) ([]*model.Account, error) {
	return listAccounts(ctx, s.db, `WHERE owner_id = ? AND sync_state = 0 ORDER BY local_id`, ownerID)
}

// GetAll returns the owner's live account rows.
func (s *AccountStore) GetAll(ctx context.Context, ownerID int64) ([]*model.Account, error) {
	return listAccounts(ctx, s.db, `WHERE owner_id = ? AND is_deleted = 0 ORDER BY local_id`, ownerID)
}

// CountPending returns the number of pending account rows of the owner.
func (s *AccountStore) CountPending(ctx context.Context, ownerID int64) (int, error) {
	return countPending(ctx, s.db, tableAccounts, ownerID)
}

// ServerID maps a local id to its server id, or nil.
func (s *AccountStore) ServerID(ctx context.Context, localID int64) (*int64, error) {
	return serverIDOf(ctx, s.db, tableAccounts, localID)
}

// LocalID maps a server id back to the local id, or nil.
func (s *AccountStore) LocalID(ctx context.Context, serverID int64) (*int64, error) {
	return localIDOf(ctx, s.db, tableAccounts, serverID)
}

func upsertAccount(ctx context.Context, q dbtx, a *model.Account) error {
	const stmt = `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO UPDATE SET
		    owner_id      = excluded.owner_id,
		    server_id     = COALESCE(accounts.server_id, excluded.server_id),
		    username      = excluded.username,
		    email         = excluded.email,
		    display_name  = excluded.display_name,
		    last_modified = excluded.last_modified,
		    sync_state    = excluded.sync_state,
		    is_deleted    = excluded.is_deleted`

	res, err := q.ExecContext(ctx, stmt,
		localIDArg(a.LocalID),
		a.OwnerID,
		nullID(a.ServerID),
		a.Username,
		a.Email,
		a.DisplayName,
		a.LastModified,
		int(a.SyncState),
		boolInt(a.IsDeleted),
	)
	if err != nil {
		return fmt.Errorf("upserting account %q: %w", a.Username, err)
	}
	return assignLocalID(res, &a.SyncMeta)
}

func listAccounts(ctx context.Context, q dbtx, where string, args ...any) ([]*model.Account, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(s scanner) (*model.Account, error) {
	var a model.Account
	var serverID sql.NullInt64
	var state, deleted int

	err := s.Scan(
		&a.LocalID,
		&a.OwnerID,
		&serverID,
		&a.Username,
		&a.Email,
		&a.DisplayName,
		&a.LastModified,
		&state,
		&deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account row: %w", err)
	}

	a.ServerID = idPtr(serverID)
	a.SyncState = model.SyncState(state)
	a.IsDeleted = deleted == 1
	return &a, nil
}
