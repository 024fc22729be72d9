// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/postgres"
	"github.com/holomush/accounts/internal/avatar"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/httpapi"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/store"
)

// database is the pool surface the service needs. *store.Pool satisfies it.
type database interface {
	store.Querier
	Ping(ctx context.Context) error
	Close()
}

// serveDeps holds injectable dependencies for the serve command.
// Nil fields use the production implementations.
type serveDeps struct {
	Connect          func(ctx context.Context, cfg store.PoolConfig) (database, error)
	NewMigrator      func(databaseURL string) (migrator, error)
	NewAvatarStorage func(ctx context.Context, cfg config.AvatarConfig) (avatar.Storage, error)
	// Ready is called with the listen addresses once every server is up.
	// obsAddr is empty when the observability server is disabled.
	Ready func(apiAddr, obsAddr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmd(nil)
}

func newServeCmd(deps *serveDeps) *cobra.Command {
	var runMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the accounts API server",
		Long: `Start the public JSON API and, unless metrics.addr is empty, the
observability server exposing /metrics and health probes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, runMigrations, deps)
		},
	}

	cmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply pending migrations before serving")
	config.BindFlags(cmd.Flags())

	return cmd
}

func runServeWithDeps(ctx context.Context, cmd *cobra.Command, runMigrations bool, deps *serveDeps) error {
	if deps == nil {
		deps = &serveDeps{}
	}
	connect := deps.Connect
	if connect == nil {
		connect = connectPool
	}
	newMig := deps.NewMigrator
	if newMig == nil {
		newMig = newStoreMigrator
	}
	newAvatars := deps.NewAvatarStorage
	if newAvatars == nil {
		newAvatars = newAvatarStorage
	}

	cfg, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		//nolint:wrapcheck // already coded
		return err
	}
	logging.SetDefault(logging.Options{
		Service: "accounts",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	db, err := connect(ctx, poolConfig(cfg.Database))
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	cmd.Println("Connected to database")

	if runMigrations {
		if err := applyMigrations(cfg.Database.DSN(), newMig); err != nil {
			return err
		}
		cmd.Println("Migrations applied")
	}

	avatars, err := newAvatars(ctx, cfg.Avatar)
	if err != nil {
		return oops.Code("AVATAR_INIT_FAILED").With("backend", cfg.Avatar.Backend).Wrap(err)
	}

	hasher, err := auth.NewArgon2idHasher(cfg.Auth.Argon2.Params())
	if err != nil {
		//nolint:wrapcheck // already coded
		return err
	}
	tokens, err := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		//nolint:wrapcheck // already coded
		return err
	}

	users := postgres.NewUserRepository(db)
	sessions := postgres.NewSessionRepository(db)
	authService, err := auth.NewAuthService(users, sessions, hasher, tokens, avatars)
	if err != nil {
		//nolint:wrapcheck // already coded
		return err
	}
	userService := auth.NewUserService(users, sessions, avatars)

	var stops []stopFunc
	defer func() { shutdown(cfg.HTTP.ShutdownTimeout, stops) }()

	var metrics *observability.Metrics
	obsAddr := ""
	if cfg.Metrics.Addr != "" {
		obsServer := observability.NewServer(cfg.Metrics.Addr, db.Ping)
		if s, ok := db.(interface{ Stat() *pgxpool.Stat }); ok {
			observability.RegisterPoolStats(obsServer.Registry(), s.Stat)
		}
		metrics = obsServer.Metrics()

		obsErrCh, err := obsServer.Start()
		if err != nil {
			//nolint:wrapcheck // already coded
			return err
		}
		stops = append(stops, stopFunc{name: "observability", stop: obsServer.Stop})
		obsAddr = obsServer.Addr()
		cmd.Printf("Observability server listening on %s\n", obsAddr)
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	apiServer, err := httpapi.NewServer(httpapi.Config{
		Addr:           cfg.HTTP.Addr,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, httpapi.Deps{
		Auth:    authService,
		Users:   userService,
		Tokens:  tokens,
		Metrics: metrics,
	})
	if err != nil {
		//nolint:wrapcheck // already coded
		return err
	}
	apiErrCh, err := apiServer.Start()
	if err != nil {
		//nolint:wrapcheck // already coded
		return err
	}
	stops = append(stops, stopFunc{name: "api", stop: apiServer.Stop})
	cmd.Printf("API server listening on %s\n", apiServer.Addr())
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	if deps.Ready != nil {
		deps.Ready(apiServer.Addr(), obsAddr)
	}

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	<-sigCtx.Done()

	cmd.Println("Shutting down...")
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return oops.Code("SERVER_FAILED").Wrap(cause)
	}
	return nil
}

type stopFunc struct {
	name string
	stop func(ctx context.Context) error
}

// shutdown stops servers in reverse start order within timeout.
func shutdown(timeout time.Duration, stops []stopFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := len(stops) - 1; i >= 0; i-- {
		if err := stops[i].stop(ctx); err != nil {
			slog.Warn("error stopping server", "server", stops[i].name, "error", err)
		}
	}
}

// monitorServerErrors cancels ctx with the first error a server reports.
// A closed channel means the server stopped gracefully.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel(oops.With("server", serverName).Wrap(err))
		}
	case <-ctx.Done():
	}
}

func poolConfig(d config.DatabaseConfig) store.PoolConfig {
	return store.PoolConfig{
		URL:             d.DSN(),
		MaxConns:        d.MaxConns,
		MinConns:        d.MinConns,
		AcquireTimeout:  d.AcquireTimeout,
		ConnectTimeout:  d.ConnectTimeout,
		ConnectAttempts: d.ConnectAttempts,
	}
}

func connectPool(ctx context.Context, cfg store.PoolConfig) (database, error) {
	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		//nolint:wrapcheck // caller wraps
		return nil, err
	}
	return pool, nil
}

func newAvatarStorage(ctx context.Context, cfg config.AvatarConfig) (avatar.Storage, error) {
	if cfg.Backend == config.AvatarBackendS3 {
		s, err := avatar.NewS3Storage(ctx, cfg.S3Config())
		if err != nil {
			//nolint:wrapcheck // caller wraps
			return nil, err
		}
		return s, nil
	}
	s, err := avatar.NewDirStorage(cfg.Dir)
	if err != nil {
		//nolint:wrapcheck // caller wraps
		return nil, err
	}
	return s, nil
}
