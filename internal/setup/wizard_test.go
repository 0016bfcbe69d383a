package setup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/njoerd114/plannersync/internal/config"
	"github.com/njoerd114/plannersync/internal/connectivity"
	"github.com/njoerd114/plannersync/internal/remote"
	"github.com/njoerd114/plannersync/internal/session"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestWizard(input string, status connectivity.Status) (*Wizard, *bytes.Buffer) {
	var out bytes.Buffer
	wiz := NewWizard(strings.NewReader(input), &out, testLogger)
	wiz.probe = func(context.Context, *config.Config) connectivity.Status { return status }
	return wiz, &out
}

func userToken(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return tok
}

// accountServer answers GET /api/account for owner 7 when the bearer token
// matches want.
func accountServer(t *testing.T, want string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/account" || r.URL.Query().Get("ownerId") != "7" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode([]remote.Account{{Username: "ana"}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plannersync", "config.yaml")
	wiz, out := newTestWizard("https://planner.example.com/\n30m\n", connectivity.StatusReachable)

	cfg, err := wiz.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cfg.ServerURL != "https://planner.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.SyncInterval != 30*time.Minute {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load written config: %v", err)
	}
	if loaded.ServerURL != cfg.ServerURL || loaded.SyncInterval != cfg.SyncInterval {
		t.Errorf("loaded = %+v", loaded)
	}
	if !strings.Contains(out.String(), "Config written") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_RepromptsInvalidURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	wiz, out := newTestWizard("ftp://nope\nhttp://localhost:9000\n\n", connectivity.StatusReachable)

	cfg, err := wiz.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cfg.ServerURL != "http://localhost:9000" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.SyncInterval != config.DefaultSyncInterval {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if !strings.Contains(out.String(), "must be a valid http or https URL") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_UnreachableDeclined(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	wiz, _ := newTestWizard("http://localhost:9000\nn\n", connectivity.StatusUnreachable)

	if _, err := wiz.Run(context.Background(), path); err == nil {
		t.Fatal("expected error when the user declines an unreachable server")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("config written despite decline: %v", err)
	}
}

func TestRun_KeepsExistingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	existing := &config.Config{ServerURL: "http://keep.example.com"}
	if err := existing.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	wiz, _ := newTestWizard("n\n", connectivity.StatusReachable)
	cfg, err := wiz.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cfg.ServerURL != "http://keep.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
}

func TestLogin_OwnerFromToken(t *testing.T) {
	token := userToken(t, "7")
	srv := accountServer(t, token)
	sessions := session.NewManager(filepath.Join(t.TempDir(), "session.yaml"), testLogger)

	wiz, out := newTestWizard(token+"\n", connectivity.StatusReachable)
	sess, err := wiz.Login(context.Background(), &config.Config{ServerURL: srv.URL}, sessions)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.OwnerID != 7 || sess.Username != "ana" {
		t.Errorf("session = %+v", sess)
	}
	cur, err := sessions.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.OwnerID != 7 {
		t.Errorf("current owner = %d", cur.OwnerID)
	}
	if !strings.Contains(out.String(), "Signed in as ana") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLogin_OpaqueTokenAsksForAccount(t *testing.T) {
	srv := accountServer(t, "opaque")
	sessions := session.NewManager(filepath.Join(t.TempDir(), "session.yaml"), testLogger)

	wiz, _ := newTestWizard("opaque\n7\n", connectivity.StatusReachable)
	sess, err := wiz.Login(context.Background(), &config.Config{ServerURL: srv.URL}, sessions)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.OwnerID != 7 {
		t.Errorf("owner = %d, want 7", sess.OwnerID)
	}
}

func TestLogin_RejectedToken(t *testing.T) {
	srv := accountServer(t, "the-right-one")
	sessions := session.NewManager(filepath.Join(t.TempDir(), "session.yaml"), testLogger)

	wiz, _ := newTestWizard(userToken(t, "7")+"\n", connectivity.StatusReachable)
	if _, err := wiz.Login(context.Background(), &config.Config{ServerURL: srv.URL}, sessions); err == nil {
		t.Fatal("expected error for rejected token")
	}
	if _, err := sessions.Current(); err != session.ErrSignedOut {
		t.Errorf("Current err = %v, want ErrSignedOut", err)
	}
}

func TestLogin_UnverifiedConfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	sessions := session.NewManager(filepath.Join(t.TempDir(), "session.yaml"), testLogger)

	wiz, _ := newTestWizard(userToken(t, "7")+"\ny\n", connectivity.StatusReachable)
	sess, err := wiz.Login(context.Background(), &config.Config{ServerURL: srv.URL}, sessions)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.OwnerID != 7 || sess.Username != "" {
		t.Errorf("session = %+v", sess)
	}
}
