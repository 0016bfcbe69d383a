package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/njoerd114/plannersync/internal/config"
	"github.com/njoerd114/plannersync/internal/connectivity"
	"github.com/njoerd114/plannersync/internal/remote"
	"github.com/njoerd114/plannersync/internal/session"
)

// Wizard guides the user through first-run configuration and sign-in.
type Wizard struct {
	prompt *Prompter
	logger *slog.Logger
	w      io.Writer

	// probe checks the server during setup. Replaced in tests.
	probe func(ctx context.Context, cfg *config.Config) connectivity.Status
}

// NewWizard creates a Wizard wired to the given I/O and logger.
func NewWizard(r io.Reader, w io.Writer, logger *slog.Logger) *Wizard {
	wiz := &Wizard{
		prompt: NewPrompter(r, w),
		logger: logger,
		w:      w,
	}
	wiz.probe = wiz.probeServer
	return wiz
}

// Run executes the interactive setup: server connection, sync interval and
// config file. It returns the saved (or kept) configuration.
func (wiz *Wizard) Run(ctx context.Context, cfgPath string) (*config.Config, error) {
	fmt.Fprintf(wiz.w, "\nWelcome to plannersync setup!\n")
	fmt.Fprintf(wiz.w, "This wizard will connect this device to your planner server.\n\n")

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n\n")
			return config.Load(cfgPath)
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: server.
	fmt.Fprintf(wiz.w, "Step 1/3: Planner Server\n")

	var cfg *config.Config
	for {
		cfg = &config.Config{ServerURL: wiz.prompt.String("Server URL", "http://localhost:8080")}
		err := cfg.Validate()
		if err == nil {
			break
		}
		fmt.Fprintf(wiz.w, "  (%v)\n", err)
	}

	fmt.Fprintf(wiz.w, "  Checking %s...", cfg.ServerURL)
	if status := wiz.probe(ctx, cfg); status != connectivity.StatusReachable {
		fmt.Fprintf(wiz.w, " ✗ (%s)\n", status)
		if !wiz.prompt.Confirm("Save the configuration anyway?", false) {
			return nil, fmt.Errorf("server %s is %s", cfg.ServerURL, status)
		}
	} else {
		fmt.Fprintf(wiz.w, " ✓\n")
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 2: interval.
	fmt.Fprintf(wiz.w, "Step 2/3: Sync Interval\n")
	cfg.SyncInterval = wiz.prompt.Duration("How often to sync in the background? (15m-24h)", config.DefaultSyncInterval)
	fmt.Fprintf(wiz.w, "\n")

	// Step 3: write config.
	fmt.Fprintf(wiz.w, "Step 3/3: Save Configuration\n")
	if err := cfg.Write(cfgPath); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", cfgPath)

	return cfg, nil
}

// Login asks for an access token, checks it against the server and stores
// the session.
func (wiz *Wizard) Login(ctx context.Context, cfg *config.Config, sessions *session.Manager) (session.Session, error) {
	fmt.Fprintf(wiz.w, "Sign in\n")

	token := wiz.prompt.Secret("Access token")
	if token == "" {
		return session.Session{}, errors.New("no access token given")
	}

	owner, ok := session.OwnerFromToken(token)
	if !ok {
		var err error
		if owner, err = wiz.prompt.Int64("Account id"); err != nil {
			return session.Session{}, fmt.Errorf("reading account id: %w", err)
		}
	}

	sess := session.Session{OwnerID: owner, Token: token}

	fmt.Fprintf(wiz.w, "  Verifying credentials...")
	accounts := remote.NewClient[remote.Account](cfg.ServerURL, remote.DomainAccount,
		remote.TokenFunc(func(context.Context) (string, error) { return token, nil }), nil)
	list, err := accounts.GetAll(ctx, owner)
	switch {
	case remote.IsUnauthorized(err):
		fmt.Fprintf(wiz.w, " ✗\n")
		return session.Session{}, fmt.Errorf("the server rejected the access token")
	case err != nil:
		fmt.Fprintf(wiz.w, " ✗\n")
		wiz.logger.Warn("could not verify credentials", "error", err)
		if !wiz.prompt.Confirm("Sign in without verifying?", false) {
			return session.Session{}, fmt.Errorf("verifying credentials: %w", err)
		}
	default:
		fmt.Fprintf(wiz.w, " ✓\n")
		if len(list) > 0 {
			sess.Username = list[0].Username
		}
	}

	if err := sessions.Login(sess); err != nil {
		return session.Session{}, err
	}
	if sess.Username != "" {
		fmt.Fprintf(wiz.w, "  ✓ Signed in as %s (account %d)\n\n", sess.Username, owner)
	} else {
		fmt.Fprintf(wiz.w, "  ✓ Signed in as account %d\n\n", owner)
	}
	return sess, nil
}

func (wiz *Wizard) probeServer(ctx context.Context, cfg *config.Config) connectivity.Status {
	p, err := connectivity.New(connectivity.Config{
		ServerURL:    cfg.ServerURL,
		HealthPath:   cfg.HealthPath,
		ProbeTimeout: cfg.ProbeTimeout,
	}, wiz.logger)
	if err != nil {
		wiz.logger.Warn("invalid server URL", "error", err)
		return connectivity.StatusUnreachable
	}
	return p.Probe(ctx)
}
