// Plannersync keeps a device's local planner data (accounts, categories,
// reminders and events) in step with the planner server.
//
// Usage:
//
//	plannersync setup                     # interactive first-run wizard
//	plannersync login [--config <path>]   # sign in with an access token
//	plannersync logout [--config <path>]  # forget the signed-in account
//	plannersync daemon [--config <path>]  # schedule periodic sync passes (SIGUSR1 syncs now)
//	plannersync sync-once [--config ...]  # single sync pass then exit
//	plannersync pull [--config ...]       # copy server data into an empty device
//	plannersync status [--config ...]     # show config, session and queue state
//	plannersync version                   # print version
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/njoerd114/plannersync/internal/config"
	"github.com/njoerd114/plannersync/internal/connectivity"
	"github.com/njoerd114/plannersync/internal/jobs"
	"github.com/njoerd114/plannersync/internal/remote"
	"github.com/njoerd114/plannersync/internal/session"
	"github.com/njoerd114/plannersync/internal/setup"
	"github.com/njoerd114/plannersync/internal/store"
	syncp "github.com/njoerd114/plannersync/internal/sync"
	"github.com/njoerd114/plannersync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run dispatches to the appropriate subcommand.
func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "setup":
		return runSetup(args)
	case "login":
		return runLogin(args)
	case "logout":
		return runLogout(args)
	case "daemon":
		return runSync(args, true)
	case "sync-once":
		return runSync(args, false)
	case "pull":
		return runPull(args)
	case "status":
		return runStatus(args)
	case "version":
		fmt.Println("plannersync", version)
		return nil
	}

	return fmt.Errorf("unknown command %q, run 'plannersync' for usage", cmd)
}

// printUsage shows help and suggests setup if no config exists.
func printUsage() error {
	cfgPath, _ := config.DefaultPath()
	_, cfgErr := os.Stat(cfgPath)

	fmt.Fprintln(os.Stderr, "plannersync: keep local planner data in sync with the server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  plannersync setup                  Interactive first-run wizard")
	fmt.Fprintln(os.Stderr, "  plannersync login [--config ...]   Sign in with an access token")
	fmt.Fprintln(os.Stderr, "  plannersync logout [--config ...]  Sign out")
	fmt.Fprintln(os.Stderr, "  plannersync daemon [--config ...]  Run periodic sync until stopped")
	fmt.Fprintln(os.Stderr, "  plannersync sync-once [--config ..] Single sync pass then exit")
	fmt.Fprintln(os.Stderr, "  plannersync pull [--config ...]    Download server data to an empty device")
	fmt.Fprintln(os.Stderr, "  plannersync status [--config ...]  Show config, session and queue state")
	fmt.Fprintln(os.Stderr, "  plannersync version                Print version")
	fmt.Fprintln(os.Stderr, "")

	if cfgErr != nil {
		fmt.Fprintln(os.Stderr, "No config file found. Run 'plannersync setup' to get started.")
	}

	os.Exit(1)
	return nil // unreachable
}

// --- Flags & shared setup ----------------------------------------------------

type options struct {
	cfgPath string
	verbose bool
}

func parseFlags(name string, args []string) (options, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return options{cfgPath: *cfgPath, verbose: *verbose}, nil
}

func newLogger(level slog.Level, otel bool) *slog.Logger {
	var h slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if otel {
		h = telemetry.NewLogHandler(h, "plannersync")
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func newSessions(cfg *config.Config, logger *slog.Logger) (*session.Manager, error) {
	path := cfg.SessionPath
	if path == "" {
		var err error
		if path, err = session.DefaultPath(); err != nil {
			return nil, fmt.Errorf("resolving session path: %w", err)
		}
	}
	m := session.NewManager(path, logger)
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m, nil
}

func openStore(cfg *config.Config) (*store.Store, string, error) {
	path := cfg.DBPath
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, "", fmt.Errorf("resolving database path: %w", err)
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, path, fmt.Errorf("opening database at %q: %w", path, err)
	}
	return st, path, nil
}

func newProber(cfg *config.Config, logger *slog.Logger) (*connectivity.Prober, error) {
	return connectivity.New(connectivity.Config{
		ServerURL:    cfg.ServerURL,
		HealthPath:   cfg.HealthPath,
		ProbeTimeout: cfg.ProbeTimeout,
	}, logger)
}

// --- Subcommands -------------------------------------------------------------

// runSetup launches the interactive setup wizard, then signs in.
func runSetup(args []string) error {
	opts, err := parseFlags("setup", args)
	if err != nil {
		return err
	}
	logger := newLogger(slog.LevelWarn, false)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	wiz := setup.NewWizard(os.Stdin, os.Stdout, logger)
	cfg, err := wiz.Run(ctx, opts.cfgPath)
	if err != nil {
		return err
	}
	sessions, err := newSessions(cfg, logger)
	if err != nil {
		return err
	}
	if s, err := sessions.Current(); err == nil {
		fmt.Printf("Already signed in as account %d. Run 'plannersync login' to switch.\n", s.OwnerID)
		return nil
	}
	_, err = wiz.Login(ctx, cfg, sessions)
	return err
}

// runLogin signs in with a new access token.
func runLogin(args []string) error {
	opts, err := parseFlags("login", args)
	if err != nil {
		return err
	}
	logger := newLogger(slog.LevelWarn, false)

	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", opts.cfgPath, err)
	}
	sessions, err := newSessions(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	_, err = setup.NewWizard(os.Stdin, os.Stdout, logger).Login(ctx, cfg, sessions)
	return err
}

// runLogout clears the saved session. Local data is kept.
func runLogout(args []string) error {
	opts, err := parseFlags("logout", args)
	if err != nil {
		return err
	}
	logger := newLogger(slog.LevelWarn, false)

	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", opts.cfgPath, err)
	}
	sessions, err := newSessions(cfg, logger)
	if err != nil {
		return err
	}
	if err := sessions.Logout(); err != nil {
		return err
	}
	fmt.Println("✓ Signed out.")
	return nil
}

// runStatus prints config, session, local queue and server state.
func runStatus(args []string) error {
	opts, err := parseFlags("status", args)
	if err != nil {
		return err
	}
	logger := newLogger(slog.LevelError, false)

	fmt.Println("plannersync status")
	fmt.Println("──────────────────")

	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		fmt.Printf("  Config:    %s (%v)\n", opts.cfgPath, err)
		return nil
	}
	fmt.Printf("  Config:    %s ✓\n", opts.cfgPath)
	fmt.Printf("  Server:    %s\n", cfg.ServerURL)
	fmt.Printf("  Interval:  %s\n", cfg.SyncInterval)

	sessions, err := newSessions(cfg, logger)
	if err != nil {
		return err
	}
	sess, sessErr := sessions.Current()
	if sessErr != nil {
		fmt.Printf("  Session:   signed out\n")
	} else if sess.Username != "" {
		fmt.Printf("  Session:   %s (account %d)\n", sess.Username, sess.OwnerID)
	} else {
		fmt.Printf("  Session:   account %d\n", sess.OwnerID)
	}

	st, dbPath, err := openStore(cfg)
	if err != nil {
		fmt.Printf("  Database:  %v\n", err)
	} else {
		defer func() { _ = st.Close() }()
		if info, err := os.Stat(dbPath); err == nil {
			fmt.Printf("  Database:  %s (%s)\n", dbPath, humanSize(info.Size()))
		}
		if sessErr == nil {
			printPending(context.Background(), st, sess.OwnerID)
		}
	}

	prober, err := newProber(cfg, logger)
	if err != nil {
		return err
	}
	fmt.Printf("  Reachable: %s\n", prober.Probe(context.Background()))
	return nil
}

func printPending(ctx context.Context, st *store.Store, owner int64) {
	counts := []struct {
		name  string
		count func(context.Context, int64) (int, error)
	}{
		{"accounts", st.Accounts.CountPending},
		{"categories", st.Categories.CountPending},
		{"reminders", st.Reminders.CountPending},
		{"events", st.Events.CountPending},
	}
	fmt.Printf("  Pending:  ")
	for _, c := range counts {
		n, err := c.count(ctx, owner)
		if err != nil {
			fmt.Printf(" %s=?", c.name)
			continue
		}
		fmt.Printf(" %s=%d", c.name, n)
	}
	fmt.Println()
}

// --- Sync core ---------------------------------------------------------------

// app holds what daemon, sync-once and pull share.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	sessions *session.Manager
	prober   *connectivity.Prober
	orch     *syncp.Orchestrator
	close    func()
}

func newApp(opts options) (*app, error) {
	logLevel := slog.LevelInfo
	if opts.verbose {
		logLevel = slog.LevelDebug
	}
	logger := newLogger(logLevel, false)

	// --- Config --------------------------------------------------------------

	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", opts.cfgPath, err)
	}
	logger.Info("config loaded",
		"server_url", cfg.ServerURL,
		"sync_interval", cfg.SyncInterval,
	)

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		shutdownTel, err := telemetry.Setup(context.Background(), telemetry.FromConfig(cfg.Telemetry, version))
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger = newLogger(logLevel, true)
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			closers = append(closers, func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			})
		}
	}

	// --- Local database & session -------------------------------------------

	st, dbPath, err := openStore(cfg)
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("closing database", "error", closeErr)
		}
	})
	logger.Info("database opened", "path", dbPath)

	sessions, err := newSessions(cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	// --- Server --------------------------------------------------------------

	prober, err := newProber(cfg, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("configuring connectivity probe: %w", err)
	}
	clients := remote.NewClients(cfg.ServerURL, sessions, cfg.RequestTimeout)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		sessions: sessions,
		prober:   prober,
		orch:     syncp.New(st, clients, logger),
		close:    closeAll,
	}, nil
}

// runSync handles both "daemon" and "sync-once" subcommands.
func runSync(args []string, daemon bool) error {
	opts, err := parseFlags("sync", args)
	if err != nil {
		return err
	}
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if !daemon {
		return a.syncOnce(ctx)
	}
	return a.daemon(ctx)
}

func (a *app) syncOnce(ctx context.Context) error {
	sess, err := a.sessions.Current()
	if err != nil {
		return fmt.Errorf("%w: run 'plannersync login' first", err)
	}
	if !a.prober.CanReachServer(ctx) {
		return fmt.Errorf("could not sync: server %s is not reachable", a.cfg.ServerURL)
	}

	a.logger.Info("running single sync pass")
	stats, err := a.orch.RunOnce(ctx, sess)
	a.logger.Info("sync complete",
		"pushed", stats.Pushed,
		"acknowledged", stats.Acknowledged,
		"rejected", stats.Rejected,
		"deferred", stats.Deferred,
		"purged", stats.Purged,
	)
	if err != nil {
		return fmt.Errorf("could not sync: %w", err)
	}
	return nil
}

func (a *app) daemon(ctx context.Context) error {
	runner := jobs.NewRunner(jobs.Config{
		Network:        a.prober,
		Logger:         a.logger,
		InitialBackoff: a.cfg.Backoff.Initial,
		MaxBackoff:     a.cfg.Backoff.Max,
	})
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("starting job runner: %w", err)
	}
	defer runner.Stop()

	if sess, err := a.sessions.Current(); err == nil && a.prober.CanReachServer(ctx) {
		if err := a.hydrateIfEmpty(ctx, sess); err != nil {
			a.logger.Warn("initial download failed", "error", err)
		}
	}

	sched := syncp.NewScheduler(runner, a.orch, a.sessions, a.cfg.SyncInterval, a.logger)
	if _, err := sched.SchedulePeriodic(); err != nil {
		return fmt.Errorf("scheduling periodic sync: %w", err)
	}

	// SIGUSR1 asks for an immediate pass.
	nudge := make(chan os.Signal, 1)
	signal.Notify(nudge, syscall.SIGUSR1)
	defer signal.Stop(nudge)

	a.logger.Info("daemon starting", "sync_interval", a.cfg.SyncInterval)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutdown complete")
			return nil
		case <-nudge:
			if h, err := sched.SyncNow(); err != nil {
				a.logger.Warn("manual sync not queued", "error", err)
			} else {
				a.logger.Info("manual sync queued", "job_id", h.ID)
			}
		}
	}
}

// runPull copies the signed-in account's server data into an empty device.
func runPull(args []string) error {
	opts, err := parseFlags("pull", args)
	if err != nil {
		return err
	}
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	sess, err := a.sessions.Current()
	if err != nil {
		return fmt.Errorf("%w: run 'plannersync login' first", err)
	}
	if !a.prober.CanReachServer(ctx) {
		return fmt.Errorf("server %s is not reachable", a.cfg.ServerURL)
	}
	return a.hydrateIfEmpty(ctx, sess)
}

func (a *app) hydrateIfEmpty(ctx context.Context, sess session.Session) error {
	empty, err := a.store.IsEmpty(ctx, sess.OwnerID)
	if err != nil {
		return err
	}
	if !empty {
		a.logger.Debug("local data present, skipping download")
		return nil
	}
	n, err := a.orch.Hydrate(ctx, sess)
	if err != nil {
		return fmt.Errorf("downloading server data: %w", err)
	}
	a.logger.Info("downloaded server data", "records", n)
	return nil
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
