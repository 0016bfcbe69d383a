package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plannersync", "session.yaml")
	return NewManager(path, slog.Default()), path
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestManager_StartsSignedOut(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Load())

	_, err := m.Current()
	require.ErrorIs(t, err, ErrSignedOut)

	_, err = m.Token(context.Background())
	require.ErrorIs(t, err, ErrSignedOut)
}

func TestManager_LoginPersists(t *testing.T) {
	m, path := newTestManager(t)
	require.NoError(t, m.Login(Session{OwnerID: 7, Username: "ana", Token: "opaque-token"}))

	s, err := m.Current()
	require.NoError(t, err)
	require.Equal(t, int64(7), s.OwnerID)
	require.True(t, s.ExpiresAt.IsZero(), "opaque token has no expiry")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	restored := NewManager(path, slog.Default())
	require.NoError(t, restored.Load())
	tok, err := restored.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "opaque-token", tok)
}

func TestManager_Logout(t *testing.T) {
	m, path := newTestManager(t)
	require.NoError(t, m.Login(Session{OwnerID: 7, Token: "t"}))
	require.NoError(t, m.Logout())

	_, err := m.Current()
	require.ErrorIs(t, err, ErrSignedOut)
	_, err = os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))

	// Logging out twice is harmless.
	require.NoError(t, m.Logout())
}

func TestManager_LoginValidation(t *testing.T) {
	m, _ := newTestManager(t)
	require.Error(t, m.Login(Session{Token: "t"}))
	require.Error(t, m.Login(Session{OwnerID: 7}))
	require.Error(t, m.Login(Session{OwnerID: 7, Token: signedToken(t, time.Now().Add(-time.Hour))}))

	_, err := m.Current()
	require.ErrorIs(t, err, ErrSignedOut)
}

func TestManager_JWTExpiry(t *testing.T) {
	m, _ := newTestManager(t)
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, m.Login(Session{OwnerID: 7, Token: signedToken(t, exp)}))

	s, err := m.Current()
	require.NoError(t, err)
	require.True(t, s.ExpiresAt.Equal(exp), "ExpiresAt = %v, want %v", s.ExpiresAt, exp)

	// Two hours later the same session reads as signed out.
	m.now = func() time.Time { return exp.Add(time.Hour) }
	_, err = m.Current()
	require.ErrorIs(t, err, ErrSignedOut)
}

func TestManager_LoadRejectsCorruptFile(t *testing.T) {
	m, path := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte("owner_id: [not a number"), 0o600))

	require.Error(t, m.Load())
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	require.NoError(t, err)
	require.Equal(t, "session.yaml", filepath.Base(path))
}

func TestOwnerFromToken(t *testing.T) {
	id, ok := OwnerFromToken(signedToken(t, time.Now().Add(time.Hour)))
	require.True(t, ok)
	require.Equal(t, int64(7), id)

	_, ok = OwnerFromToken("opaque-token")
	require.False(t, ok)
}
