package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/njoerd114/plannersync/internal/model"
)

// Queries over the sync-metadata columns every domain table shares. Table
// names are package constants, never user input.

// scanner matches both *sql.Row and *sql.Rows so row scanners can be reused.
type scanner interface {
	Scan(dest ...any) error
}

func serverIDOf(ctx context.Context, q dbtx, table string, localID int64) (*int64, error) {
	var id sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT server_id FROM `+table+` WHERE local_id = ?`, localID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up server id of %s %d: %w", table, localID, err)
	}
	return idPtr(id), nil
}

func localIDOf(ctx context.Context, q dbtx, table string, serverID int64) (*int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT local_id FROM `+table+` WHERE server_id = ?`, serverID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up local id of %s server id %d: %w", table, serverID, err)
	}
	return &id, nil
}

// softDeleteRow turns a live row into a pending tombstone.
func softDeleteRow(ctx context.Context, q dbtx, table string, ts, localID, ownerID int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE `+table+` SET is_deleted = 1, sync_state = 0, last_modified = MAX(last_modified + 1, ?)
		 WHERE local_id = ? AND owner_id = ? AND is_deleted = 0`,
		ts, localID, ownerID)
	if err != nil {
		return fmt.Errorf("soft-deleting %s %d: %w", table, localID, err)
	}
	return expectOneRow(res, table, localID)
}

func deleteRow(ctx context.Context, q dbtx, table string, localID, ownerID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE local_id = ? AND owner_id = ?`, localID, ownerID); err != nil {
		return fmt.Errorf("deleting %s %d: %w", table, localID, err)
	}
	return nil
}

func countPending(ctx context.Context, q dbtx, table string, ownerID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE owner_id = ? AND sync_state = 0`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pending %s: %w", table, err)
	}
	return n, nil
}

// applyAck reconciles an acknowledged snapshot m inside one transaction.
//
// If the row is gone, nothing happens. If the row was modified locally after
// the snapshot was taken, only the server id is recorded and the row stays
// pending so the newer edit goes out on the next pass. Otherwise upsert runs.
// It reports whether the row ended up synced.
func applyAck(ctx context.Context, db *sql.DB, table string, m *model.SyncMeta, upsert func(tx dbtx) error) (bool, error) {
	var synced bool
	err := withTx(ctx, db, func(tx dbtx) error {
		var lastModified int64
		err := tx.QueryRowContext(ctx,
			`SELECT last_modified FROM `+table+` WHERE local_id = ? AND owner_id = ?`,
			m.LocalID, m.OwnerID).Scan(&lastModified)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s %d: %w", table, m.LocalID, err)
		}

		if lastModified > m.LastModified {
			if _, err := tx.ExecContext(ctx,
				`UPDATE `+table+` SET server_id = COALESCE(server_id, ?) WHERE local_id = ?`,
				nullID(m.ServerID), m.LocalID); err != nil {
				return fmt.Errorf("recording server id of %s %d: %w", table, m.LocalID, err)
			}
			return nil
		}

		if err := upsert(tx); err != nil {
			return err
		}
		synced = m.SyncState == model.SyncSynced
		return nil
	})
	return synced, err
}

func expectOneRow(res sql.Result, table string, localID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", table, localID, &model.ValidationError{Code: model.CodeNotFound})
	}
	return nil
}

// --- nullable helpers --------------------------------------------------------

func nullID(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// localIDArg binds a zero local id as NULL so SQLite assigns a fresh one.
func localIDArg(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// assignLocalID copies the generated row id back after an insert.
func assignLocalID(res sql.Result, m *model.SyncMeta) error {
	if m.LocalID != 0 {
		return nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted id: %w", err)
	}
	m.LocalID = id
	return nil
}
