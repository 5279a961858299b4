package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/sundayezeilo/linkservice/internal/config"
	"github.com/sundayezeilo/linkservice/internal/idgen"
	"github.com/sundayezeilo/linkservice/internal/links"
	"github.com/sundayezeilo/linkservice/internal/router"
	"github.com/sundayezeilo/linkservice/internal/server"
)

// ErrNoTable is returned by EnsureTable for backends without a table to create.
var ErrNoTable = errors.New("store backend has no table to create")

// App holds the application dependencies and configuration.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Repository links.Repository
	Router     *router.Router

	dynamo  *dynamodb.Client
	pg      *pgxpool.Pool
	closers []func()
}

// New loads .env and configuration from the environment and wires the app.
func New(ctx context.Context) (*App, error) {
	if err := loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return Build(ctx, cfg, setupLogger(cfg.App.LogLevel))
}

// Build wires the app from an already loaded configuration.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("starting application",
		"env", cfg.App.Environment,
		"backend", cfg.Store.Backend,
	)

	a := &App{Config: cfg, Logger: logger}

	repo, err := a.openRepository(ctx)
	if err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("failed to open %s repository: %w", cfg.Store.Backend, err)
	}
	a.Repository = repo

	a.Router = router.New(logger)
	links.NewHandler(links.HandlerConfig{
		Repository: repo,
		Logger:     logger,
	}).Register(a.Router)

	logger.Info("application initialized", "routes", len(a.Router.Routes()))

	return a, nil
}

// Serve runs the local HTTP bridge until ctx is done or a signal arrives.
func (a *App) Serve(ctx context.Context, cfg config.ServerConfig) error {
	srv := server.New(cfg, a.Logger, a.Router)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// EnsureTable creates the links table of the dynamodb or postgres backend if
// it does not exist yet. maxWait bounds the wait for a new DynamoDB table.
func (a *App) EnsureTable(ctx context.Context, maxWait time.Duration) error {
	switch {
	case a.dynamo != nil:
		table := a.Config.Store.TableName
		a.Logger.Info("ensuring dynamodb table", "table", table)
		if err := links.CreateDynamoTable(ctx, a.dynamo, table, maxWait); err != nil {
			return err
		}
		a.Logger.Info("dynamodb table ready", "table", table)
		return nil

	case a.pg != nil:
		a.Logger.Info("ensuring postgres table", "table", "links")
		if _, err := a.pg.Exec(ctx, links.PostgresSchema); err != nil {
			return fmt.Errorf("create postgres table: %w", err)
		}
		return nil

	default:
		return ErrNoTable
	}
}

// Shutdown releases connection pools and files, most recently opened first.
func (a *App) Shutdown() {
	a.Logger.Info("shutting down application")

	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openRepository(ctx context.Context) (links.Repository, error) {
	store := a.Config.Store
	repoCfg := &links.RepositoryConfig{
		IDGenerator: idgen.New(idgen.Version(store.IDVersion), idgen.WithRetries(1)),
		Logger:      a.Logger,
	}

	switch store.Backend {
	case config.BackendDynamoDB:
		client, err := newDynamoClient(ctx, store)
		if err != nil {
			return nil, err
		}
		a.dynamo = client

		a.Logger.Info("using dynamodb",
			"table", store.TableName,
			"local", store.Local,
			"endpoint", endpointOf(store),
		)
		return links.NewDynamoRepository(client, store.TableName, repoCfg), nil

	case config.BackendPostgres:
		pool, err := connectDatabase(ctx, a.Config, a.Logger)
		if err != nil {
			return nil, err
		}
		a.pg = pool
		a.closers = append(a.closers, func() {
			pool.Close()
			a.Logger.Info("database connection closed")
		})
		return links.NewPostgresRepository(pool, repoCfg), nil

	case config.BackendBolt:
		repo, err := links.OpenBoltRepository(store.BoltPath, repoCfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := repo.Close(); err != nil {
				a.Logger.Error("failed to close bolt database", "error", err.Error())
			}
		})
		a.Logger.Info("using bolt", "path", store.BoltPath)
		return repo, nil

	case config.BackendMemory:
		a.Logger.Warn("using in-memory store; links are lost on exit")
		return links.NewMemoryRepository(nil, repoCfg), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", store.Backend)
	}
}

func endpointOf(store config.StoreConfig) string {
	if store.Local {
		return store.Endpoint
	}
	return "default"
}

// loadEnv loads .env file only in non-production environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file found.")
		}
	}
	return nil
}

// setupLogger creates a structured logger based on the log level.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// newDynamoClient builds a client from the ambient AWS configuration. In
// local mode it targets the configured endpoint with static credentials,
// which DynamoDB Local accepts.
func newDynamoClient(ctx context.Context, store config.StoreConfig) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(store.Region),
	}
	if store.Local {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if store.Local {
			o.BaseEndpoint = aws.String(store.Endpoint)
		}
	}), nil
}

// connectDatabase establishes a connection to the PostgreSQL database.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Set pool configuration
	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")

	return pool, nil
}
