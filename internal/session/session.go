// Package session holds the signed-in account for the whole process.
//
// A [Manager] owns the mutable state and persists credentials to a small
// YAML file so a restarted daemon keeps its identity. Sync runs never read
// the Manager's fields directly; they take a [Session] snapshot once per run
// via [Manager.Current].
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// ErrSignedOut is returned when no account is signed in, or its credential
// has expired.
var ErrSignedOut = errors.New("not signed in")

// Session is an immutable snapshot of the signed-in account.
type Session struct {
	OwnerID  int64  `yaml:"owner_id"`
	Username string `yaml:"username,omitempty"`
	Token    string `yaml:"token"`

	// ExpiresAt is read from the token's exp claim when the token is a JWT.
	// Zero means the token carries no expiry.
	ExpiresAt time.Time `yaml:"-"`
}

// Valid reports whether s identifies an account with a credential that has
// not expired at now.
func (s Session) Valid(now time.Time) bool {
	if s.OwnerID == 0 || s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// Manager guards the process-wide session. It is safe for concurrent use.
type Manager struct {
	path string
	log  *slog.Logger
	now  func() time.Time

	mu  sync.RWMutex
	cur Session
}

// DefaultPath returns the default session file path:
// ~/.config/plannersync/session.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "plannersync", "session.yaml"), nil
}

// NewManager creates a Manager persisting to path. It starts signed out;
// call [Manager.Load] to restore saved credentials.
func NewManager(path string, logger *slog.Logger) *Manager {
	return &Manager{path: path, log: logger, now: time.Now}
}

// Load restores the session saved by the last Login. A missing file leaves
// the Manager signed out and is not an error.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		m.log.Debug("no saved session", "path", m.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading session file %q: %w", m.path, err)
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing session file %q: %w", m.path, err)
	}
	s.ExpiresAt = tokenExpiry(s.Token)

	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()

	if !s.Valid(m.now()) {
		m.log.Info("saved session is no longer valid", "owner_id", s.OwnerID)
	}
	return nil
}

// Login makes s the current session and saves it with owner-only
// permissions.
func (m *Manager) Login(s Session) error {
	if s.OwnerID <= 0 {
		return errors.New("owner id must be positive")
	}
	if s.Token == "" {
		return errors.New("token is required")
	}
	s.ExpiresAt = tokenExpiry(s.Token)
	if !s.Valid(m.now()) {
		return fmt.Errorf("token expired at %s", s.ExpiresAt.Format(time.RFC3339))
	}

	if err := m.save(s); err != nil {
		return err
	}

	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()

	m.log.Info("signed in", "owner_id", s.OwnerID, "username", s.Username)
	return nil
}

// Logout clears the session in memory and on disk.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.cur = Session{}
	m.mu.Unlock()

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	m.log.Info("signed out")
	return nil
}

// Current returns a snapshot of the session, or [ErrSignedOut].
func (m *Manager) Current() (Session, error) {
	m.mu.RLock()
	s := m.cur
	m.mu.RUnlock()

	if !s.Valid(m.now()) {
		return Session{}, ErrSignedOut
	}
	return s, nil
}

// Token returns the current bearer token. It satisfies remote.TokenSource.
func (m *Manager) Token(context.Context) (string, error) {
	s, err := m.Current()
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

func (m *Manager) save(s Session) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server remains the judge of the token. Opaque tokens have no expiry.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// OwnerFromToken reads a numeric subject claim from a JWT without verifying
// it. It reports false for opaque tokens.
func OwnerFromToken(token string) (int64, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
