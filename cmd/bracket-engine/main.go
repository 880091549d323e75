package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/terra-clan/bracket-engine/internal/api"
	"github.com/terra-clan/bracket-engine/internal/competition"
	"github.com/terra-clan/bracket-engine/internal/config"
	"github.com/terra-clan/bracket-engine/internal/events"
	"github.com/terra-clan/bracket-engine/internal/lock"
	"github.com/terra-clan/bracket-engine/internal/rules"
	"github.com/terra-clan/bracket-engine/internal/seeding"
	"github.com/terra-clan/bracket-engine/internal/storage"
	"github.com/terra-clan/bracket-engine/internal/sweeper"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "bracket-engine",
		Usage: "Tournament scoring and bracket progression service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://127.0.0.1:8080", Usage: "API base URL for client commands", Sources: cli.EnvVars("BRACKET_SERVER")},
			&cli.StringFlag{Name: "api-key", Usage: "API key for client commands", Sources: cli.EnvVars("BRACKET_API_KEY")},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			drawCommand(),
			advanceCommand(),
			bracketCommand(),
			scoreboardCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API, event stream and progression sweeper",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(ctx, cfg)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations and exit",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if cfg.Database.Driver == config.DriverSQLite {
				repo, err := storage.NewSQLiteRepository(ctx, cfg.Database.DSN)
				if err != nil {
					return err
				}
				slog.Info("sqlite migrations applied", "path", cfg.Database.DSN)
				return repo.Close()
			}

			if err := storage.MigrateFromDSN(ctx, cfg.Database.DSN); err != nil {
				return err
			}
			slog.Info("postgres migrations applied")
			return nil
		},
	}
}

// stack holds the infrastructure opened for the server
type stack struct {
	repo  storage.Repository
	pool  *pgxpool.Pool
	redis *redis.Client
}

func (s *stack) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			slog.Error("store close error", "error", err)
		}
	}
}

func openStack(ctx context.Context, cfg *config.Config) (*stack, error) {
	st := &stack{}

	switch cfg.Database.Driver {
	case config.DriverSQLite:
		repo, err := storage.NewSQLiteRepository(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		st.repo = repo
	default:
		slog.Info("running database migrations")
		if err := storage.MigrateFromDSN(ctx, cfg.Database.DSN); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxConns,
			MaxIdleConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create database repository: %w", err)
		}
		st.repo = repo
		st.pool = repo.Pool()
	}
	slog.Info("store connected", "driver", cfg.Database.Driver)

	if cfg.Redis.Address != "" {
		client, err := lock.Connect(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.redis = client
		slog.Info("redis connected", "address", cfg.Redis.Address)
	}

	return st, nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("starting bracket-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
		"events", cfg.Events.Bus,
		"lock", cfg.Lock.Backend,
	)

	// an empty path selects the built-in rulebook
	rulebook, err := rules.LoadFromFile(cfg.RulesFile)
	if err != nil {
		return err
	}

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	st, err := openStack(initCtx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	hub := events.NewHub()
	opts := []competition.Option{}

	switch cfg.Events.Bus {
	case "redis":
		bus := events.NewRedisBus(st.redis, cfg.Events.Channel, hub)
		opts = append(opts, competition.WithPublisher(bus))
		g.Go(func() error { return bus.Run(gctx) })
	case "postgres":
		bus := events.NewPostgresBus(st.pool, cfg.Database.DSN, cfg.Events.Channel, hub)
		opts = append(opts, competition.WithPublisher(bus))
		g.Go(func() error { return bus.Run(gctx) })
	default:
		opts = append(opts, competition.WithPublisher(hub))
	}

	if cfg.Lock.Backend == "redis" {
		opts = append(opts, competition.WithLocker(lock.NewRedis(st.redis, cfg.Lock.TTL)))
	}

	if cfg.Seeding.URL != "" {
		assistant := seeding.NewAssistant(cfg.Seeding.URL,
			seeding.WithAPIKey(cfg.Seeding.APIKey),
			seeding.WithTimeout(cfg.Seeding.Timeout),
		)
		opts = append(opts, competition.WithAssistant(assistant))
		slog.Info("seeding assistant enabled", "url", cfg.Seeding.URL)
	}

	engine := competition.New(st.repo, rulebook, opts...)
	defer engine.Wait()

	if cfg.SweeperInterval > 0 {
		sw := sweeper.New(engine, cfg.SweeperInterval)
		g.Go(func() error { return sw.Run(gctx) })
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, engine, hub)
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("bracket-engine stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
