package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/succession/pkg/succession/audit"
	"github.com/mikepea/succession/pkg/succession/config"
	"github.com/mikepea/succession/pkg/succession/database"
	"github.com/mikepea/succession/pkg/succession/metrics"
	"github.com/mikepea/succession/pkg/succession/models"
	"github.com/mikepea/succession/pkg/succession/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context())
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			db, err := openDB(cfg, log, false)
			if err != nil {
				return err
			}
			return database.Close(db)
		},
	}
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Apply migrations, create the default admin and optional demo data, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()
			db, err := openDB(cfg, log, true)
			if err != nil {
				return err
			}
			return database.Close(db)
		},
	}
}

// openDB connects, migrates and optionally seeds
func openDB(cfg *config.Config, log *zap.Logger, seed bool) (*gorm.DB, error) {
	db, err := database.Open(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database migrations completed")

	if seed {
		if err := database.Seed(db, cfg, log); err != nil {
			database.Close(db)
			return nil, fmt.Errorf("failed to seed database: %w", err)
		}
	}
	return db, nil
}

func serveRun(ctx context.Context) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg, log, true)
	if err != nil {
		return err
	}
	defer database.Close(db)

	m := metrics.New()
	recorder := audit.NewAsyncRecorder(audit.NewStore(db), audit.NewReporter(log, m), cfg.AuditQueueSize)

	srv := &http.Server{
		Addr: cfg.ListenAddr(),
		Handler: server.NewRouter(server.Deps{
			DB:       db,
			Config:   cfg,
			Logger:   log,
			Metrics:  m,
			Recorder: recorder,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	// Handlers are done; flush whatever audit entries are still queued
	if err := recorder.Close(shutdownCtx); err != nil {
		log.Error("audit queue did not drain", zap.Error(err))
	}
	return nil
}
