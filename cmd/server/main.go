package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	emailPkg "workshopreg/internal/adapters/email"
	web "workshopreg/internal/adapters/http"
	"workshopreg/internal/adapters/http/perf"
	"workshopreg/internal/adapters/storage"
	participantStore "workshopreg/internal/adapters/storage/participant"
	sessionStore "workshopreg/internal/adapters/storage/session"
	settingStore "workshopreg/internal/adapters/storage/setting"
	"workshopreg/internal/application/orchestrators"
	"workshopreg/internal/config"
	"workshopreg/internal/domain/intake"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// shutdownGrace bounds how long in-flight requests may finish on SIGTERM.
const shutdownGrace = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd assembles the CLI. Config is loaded once before any subcommand runs.
func newRootCmd() *cobra.Command {
	var cfg config.Config
	root := &cobra.Command{
		Use:           "workshopreg",
		Short:         "Workshop registration form and operator dashboard",
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetString("db"); path != "" {
				loaded.DBPath = path
			}
			if path, _ := cmd.Flags().GetString("registry"); path != "" {
				loaded.RegistryFile = path
			}
			cfg = loaded
			slog.SetDefault(config.NewLogger(cfg, os.Stderr))
			return nil
		},
	}
	root.PersistentFlags().String("db", "", "SQLite database path (overrides WORKSHOP_DB_PATH)")
	root.PersistentFlags().String("registry", "", "workshop registry file (overrides WORKSHOP_REGISTRY_FILE)")

	root.AddCommand(
		newServeCmd(&cfg),
		newMigrateCmd(&cfg),
		newHashPasswordCmd(),
		newRegistrationCmd(&cfg),
	)
	return root
}

func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (applies migrations first)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}
}

// openDatabase opens and migrates the database.
func openDatabase(cfg config.Config) (*sql.DB, error) {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := storage.MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	registry, err := config.LoadRegistry(cfg.RegistryFile)
	if err != nil {
		return err
	}
	csrfKey, err := cfg.CSRFKeyBytes()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector, cfg.SlowQuery())

	var sender emailPkg.Sender
	if cfg.ResendKey != "" {
		sender = emailPkg.NewResendSender(cfg.ResendKey, cfg.ResendFrom, cfg.ReplyTo)
		slog.Info("email_configured", "provider", "resend")
	} else {
		sender = emailPkg.NewNoopSender()
		if cfg.IsProduction() {
			slog.Warn("email_configured", "provider", "noop", "reason", "WORKSHOP_RESEND_KEY not set")
		}
	}

	handler, err := web.NewMux(web.Deps{
		Participants: participantStore.NewSQLiteStore(timedDB),
		Settings:     settingStore.NewSQLiteStore(timedDB),
		Sessions:     sessionStore.NewMemoryStore(sessionTTL(cfg)),
		Workshops:    registry,
		Validator:    intake.NewValidator(cfg.IntakePolicy(), registry),
		Notifier:     orchestrators.ConfirmationMailer{Sender: sender, Workshops: registry},
		Perf:         collector,
		DB:           timedDB,
	}, web.Options{
		CSRFKey:            csrfKey,
		SecureCookies:      cfg.IsProduction(),
		TrustedOrigins:     cfg.TrustedOrigins,
		SessionTimeout:     cfg.SessionTimeout,
		Lockout:            cfg.Lockout(),
		RegistrationLimit:  cfg.RegistrationLimitPolicy(),
		PageSize:           cfg.PageSize,
		SlowRequest:        cfg.SlowRequest(),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		Location:           loc,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting", "version", version, "addr", cfg.Addr, "env", cfg.Env, "workshops", len(registry.Codes()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sessionTTL keeps registrant sessions alive for the whole throttle window.
func sessionTTL(cfg config.Config) time.Duration {
	ttl := cfg.SessionTimeout
	for _, d := range []time.Duration{cfg.RegistrationWindow, cfg.LockoutWindow} {
		if d > ttl {
			ttl = d
		}
	}
	return ttl
}
