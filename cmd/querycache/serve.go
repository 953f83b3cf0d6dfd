package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-repository-query/internal/entities"
	"github.com/goliatone/go-repository-query/internal/httpapi"
	"github.com/goliatone/go-repository-query/internal/logging"
	"github.com/goliatone/go-repository-query/internal/metrics"
	"github.com/goliatone/go-repository-query/pkg/di"
	"github.com/goliatone/go-repository-query/storage"
)

var typedTodos bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Start the HTTP API, migrating the database first when DB_AUTO_MIGRATE is set.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&typedTodos, "typed-todos", false, "Serve todo reads through the typed model repository")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log, os.Stderr)
	logger.Info("starting", "env", envFlag, "driver", cfg.Database.Driver)

	sqldb, err := openSQL(cfg.Database)
	if err != nil {
		return err
	}
	db := openBun(cfg.Database, sqldb)
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database, sqldb, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrated")
	}

	registry, err := entities.NewRegistry()
	if err != nil {
		return err
	}
	m := metrics.New()

	opts := []di.Option{
		di.WithLogger(logger),
		di.WithRecorder(m),
		di.WithMaxTake(cfg.Query.MaxTake),
		di.WithIDGenerator(uuid.NewString),
	}
	if typedTodos {
		es, err := registry.Lookup(entities.Todo)
		if err != nil {
			return err
		}
		exec := storage.NewRepositoryExecutor[entities.TodoModel](storage.NewModelLister[entities.TodoModel](db), entities.TodoRecord)
		opts = append(opts, di.WithExecutor(es.Route, exec))
	}
	container, err := di.NewContainer(db, registry, cfg.Cache.Layer(), opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: httpapi.NewRouter(container.Services(),
			httpapi.WithLogger(logger),
			httpapi.WithMetrics(m),
			httpapi.WithHealthCheck(db.PingContext),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
