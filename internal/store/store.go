// Package store manages the SQLite database that holds organizer records
// together with their sync metadata.
//
// Only this package may open or query the database. All other packages
// receive a [*Store] (or one of its per-domain stores) and call its methods.
//
// The database runs with a single connection, so every statement and every
// transaction executes atomically with respect to the others. Multi-step
// flows that must not be observed half-done run in a single transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/plannersync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    local_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id      INTEGER NOT NULL,
    server_id     INTEGER,
    username      TEXT    NOT NULL,
    email         TEXT    NOT NULL DEFAULT '',
    display_name  TEXT    NOT NULL DEFAULT '',
    last_modified INTEGER NOT NULL DEFAULT 0,
    sync_state    INTEGER NOT NULL DEFAULT 0,
    is_deleted    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS categories (
    local_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id      INTEGER NOT NULL,
    server_id     INTEGER,
    name          TEXT    NOT NULL,
    description   TEXT    NOT NULL DEFAULT '',
    color         TEXT    NOT NULL DEFAULT '',
    icon          TEXT    NOT NULL DEFAULT '',
    last_modified INTEGER NOT NULL DEFAULT 0,
    sync_state    INTEGER NOT NULL DEFAULT 0,
    is_deleted    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS reminders (
    local_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id      INTEGER NOT NULL,
    server_id     INTEGER,
    time          TEXT    NOT NULL DEFAULT '',
    frequency     TEXT    NOT NULL DEFAULT 'once',
    status        TEXT    NOT NULL DEFAULT 'active',
    message       TEXT    NOT NULL,
    last_modified INTEGER NOT NULL DEFAULT 0,
    sync_state    INTEGER NOT NULL DEFAULT 0,
    is_deleted    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
    local_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id      INTEGER NOT NULL,
    server_id     INTEGER,
    title         TEXT    NOT NULL,
    description   TEXT    NOT NULL DEFAULT '',
    date          TEXT    NOT NULL DEFAULT '',
    start_time    TEXT    NOT NULL DEFAULT '',
    end_time      TEXT    NOT NULL DEFAULT '',
    priority      INTEGER NOT NULL DEFAULT 0,
    location      TEXT    NOT NULL DEFAULT '',
    category_id   INTEGER REFERENCES categories (local_id) ON DELETE SET NULL,
    reminder_id   INTEGER REFERENCES reminders (local_id) ON DELETE SET NULL,
    last_modified INTEGER NOT NULL DEFAULT 0,
    sync_state    INTEGER NOT NULL DEFAULT 0,
    is_deleted    INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_server_id   ON accounts   (server_id) WHERE server_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_server_id ON categories (server_id) WHERE server_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_reminders_server_id  ON reminders  (server_id) WHERE server_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_server_id     ON events     (server_id) WHERE server_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_accounts_owner_state   ON accounts   (owner_id, sync_state);
CREATE INDEX IF NOT EXISTS idx_categories_owner_state ON categories (owner_id, sync_state);
CREATE INDEX IF NOT EXISTS idx_reminders_owner_state  ON reminders  (owner_id, sync_state);
CREATE INDEX IF NOT EXISTS idx_events_owner_state     ON events     (owner_id, sync_state);
CREATE INDEX IF NOT EXISTS idx_events_category        ON events     (category_id);
CREATE INDEX IF NOT EXISTS idx_events_reminder        ON events     (reminder_id);
`

// Store is the SQLite-backed local record repository. The per-domain stores
// share its connection and clock.
type Store struct {
	db    *sql.DB
	clock *Clock

	Accounts   *AccountStore
	Categories *CategoryStore
	Reminders  *ReminderStore
	Events     *EventStore
}

// DefaultDBPath returns the default path for the local database:
// ~/.local/share/plannersync/planner.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "plannersync", "planner.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema,
// and configures WAL mode and foreign keys.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL. It also serialises store
	// operations against each other.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	clock := NewClock(nil)
	var last int64
	if err := db.QueryRow(latestModified).Scan(&last); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reading latest modification time: %w", err)
	}
	clock.Observe(last)

	return New(db, clock), nil
}

// latestModified is the largest last_modified across every domain table.
const latestModified = `
	SELECT MAX(
		(SELECT COALESCE(MAX(last_modified), 0) FROM accounts),
		(SELECT COALESCE(MAX(last_modified), 0) FROM categories),
		(SELECT COALESCE(MAX(last_modified), 0) FROM reminders),
		(SELECT COALESCE(MAX(last_modified), 0) FROM events))`

// New wraps an already-open database. The schema is not applied.
func New(db *sql.DB, clock *Clock) *Store {
	s := &Store{db: db, clock: clock}
	s.Accounts = &AccountStore{db: db, clock: clock}
	s.Categories = &CategoryStore{db: db, clock: clock}
	s.Reminders = &ReminderStore{db: db, clock: clock}
	s.Events = &EventStore{db: db, clock: clock}
	return s
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// IsEmpty reports whether the owner has no rows in any domain table. Used to
// decide whether a freshly signed-in device needs hydrating from the server.
func (s *Store) IsEmpty(ctx context.Context, ownerID int64) (bool, error) {
	const q = `
		SELECT (SELECT COUNT(*) FROM accounts   WHERE owner_id = ?)
		     + (SELECT COUNT(*) FROM categories WHERE owner_id = ?)
		     + (SELECT COUNT(*) FROM reminders  WHERE owner_id = ?)
		     + (SELECT COUNT(*) FROM events     WHERE owner_id = ?)`
	var count int
	if err := s.db.QueryRowContext(ctx, q, ownerID, ownerID, ownerID, ownerID).Scan(&count); err != nil {
		return false, fmt.Errorf("checking if store is empty: %w", err)
	}
	return count == 0, nil
}

// CreateEventWithReminder inserts r, then inserts e referencing r's new local
// id, in one transaction. A concurrent reader never sees the event without
// its reminder.
func (s *Store) CreateEventWithReminder(ctx context.Context, r *model.Reminder, e *model.Event) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	return withTx(ctx, s.db, func(tx dbtx) error {
		if err := insertReminder(ctx, tx, s.clock, r); err != nil {
			return err
		}
		e.ReminderID = model.ID(r.LocalID)
		e.OwnerID = r.OwnerID
		return insertEvent(ctx, tx, s.clock, e)
	})
}

// --- clock -------------------------------------------------------------------

// Clock hands out strictly increasing Unix-millisecond timestamps for
// LastModified, even if the wall clock stalls or steps back.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewClock returns a Clock reading from now, or time.Now when nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns the next timestamp.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// Observe makes later timestamps come after ts.
func (c *Clock) Observe(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.last {
		c.last = ts
	}
}

// --- transactions ------------------------------------------------------------

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on error or panic. Panics are rethrown.
func withTx(ctx context.Context, db *sql.DB, fn func(tx dbtx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("committing transaction: %w", cerr)
		}
	}()

	return fn(tx)
}
