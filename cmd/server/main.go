package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"hexorsite/internal/api"
	"hexorsite/internal/backup"
	"hexorsite/internal/config"
	"hexorsite/internal/db"
	"hexorsite/internal/jobs"
	"hexorsite/internal/logging"
	"hexorsite/internal/notify"
	"hexorsite/internal/service"
	"hexorsite/internal/session"
	"hexorsite/internal/store"
	"hexorsite/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(logging.Config{Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx := context.Background()
	build := version.Current(cfg.AppName)
	log.Info().Str("version", build.Version).Str("commit", build.Commit).Msg("starting")

	handle, err := db.Open(cfg.DBPath, db.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer handle.Close()

	conn, release, err := handle.Acquire()
	if err != nil {
		return err
	}
	err = db.Setup(ctx, conn, db.Steps(), log)
	release()
	if err != nil {
		return fmt.Errorf("setup db: %w", err)
	}

	st := store.New(handle)
	if cfg.BootstrapAdminEmail != "" {
		hash, err := cfg.PasswordParams().Hash(cfg.BootstrapAdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin hash: %w", err)
		}
		if err := st.EnsureAdmin(ctx, cfg.BootstrapAdminName, cfg.BootstrapAdminEmail, hash); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		log.Info().Str("email", cfg.BootstrapAdminEmail).Msg("bootstrap admin ensured")
	}
	if n, err := st.CountAdmins(ctx); err == nil && n == 0 {
		log.Warn().Msg("no active admin account; set BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD")
	}

	sched := jobs.NewScheduler(log)
	sessions := session.NewManager(st, store.New(handle.NonBlocking()), cfg.SessionTTL(), log)
	if err := sched.Every(cfg.SessionSweepSpec, "session_sweep", func(ctx context.Context) error {
		_, err := sessions.SweepExpired(ctx)
		return err
	}); err != nil {
		return err
	}
	sched.Start()

	svc := service.New(cfg, st, sessions, notify.NewSender(cfg, log), log)
	exporter := backup.NewExporter(handle, backup.ExporterConfig{
		Dir:       cfg.BackupDir,
		AppName:   cfg.AppName,
		Retention: cfg.BackupRetention(),
	}, sched, log)
	restorer := backup.NewOrchestrator(handle, backup.RestoreConfig{
		Dir:         cfg.BackupDir,
		SafetyGrace: cfg.SafetyBackupGrace(),
	}, sched, log)

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(cfg, svc, exporter, restorer, log),
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := hsrv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	sched.Stop(shutdownCtx)
	return nil
}
