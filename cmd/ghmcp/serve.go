package ghmcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/audit"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/config"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/credentials"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/gateway"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/operations"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/operations/github"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/runtime"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/server"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdio",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format, nil)
	logger.Info("starting ghmcp",
		slog.String("version", version),
		slog.String("interpreter", cfg.Runtime.Interpreter),
		slog.Int("pool_size", cfg.Pool.Size),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	db, err := gorm.Open(sqlite.Open(cfg.Store.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	auditLog, err := audit.New(db)
	if err != nil {
		return fmt.Errorf("initializing audit log: %w", err)
	}

	catalog := operations.NewCatalog()
	github.Register(catalog, github.NewClient(cfg.GitHub.APIBaseURL))

	var provider credentials.Provider = credentials.Chain{
		credentials.EnvProvider{Var: cfg.GitHub.TokenEnv},
		storeProvider(cfg, logger),
	}

	executor, err := runtime.InitShared(runtime.Options{
		Interpreter:    cfg.Runtime.Interpreter,
		InstallDir:     cfg.Runtime.InstallDir,
		HarnessScript:  cfg.Runtime.HarnessScript,
		WorkspaceRoot:  cfg.Runtime.WorkspaceRoot,
		Gate: runtime.GateConfig{
			InstallDir:    cfg.Runtime.InstallDir,
			WorkspaceRoot: cfg.Runtime.WorkspaceRoot,
			AllowRun:      cfg.Capabilities.AllowRun,
			AllowEnv:      cfg.Capabilities.AllowEnv,
			AllowNet:      cfg.Capabilities.AllowNet,
		},
		Pool: runtime.PoolConfig{
			Size:                cfg.Pool.Size,
			MaxUses:             cfg.Pool.MaxUses,
			IdleTimeout:         config.Duration(cfg.Pool.IdleTimeout, 10*time.Minute),
			AcquireTimeout:      config.Duration(cfg.Pool.AcquireTimeout, 15*time.Second),
			StartupGrace:        config.Duration(cfg.Pool.StartupGrace, 30*time.Second),
			MaintenanceInterval: config.Duration(cfg.Pool.MaintenanceInterval, 30*time.Second),
			ShutdownGrace:       config.Duration(cfg.Pool.ShutdownGrace, 10*time.Second),
		},
		DefaultTimeout: config.Duration(cfg.Runtime.DefaultTimeout, 60*time.Second),
		MaxTimeout:     config.Duration(cfg.Runtime.MaxTimeout, 5*time.Minute),
		MaxOutputBytes: cfg.Runtime.MaxOutputBytes,
		Catalog:        catalog,
		Credentials:    provider,
		Audit:          auditLog,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("initializing executor: %w", err)
	}
	defer runtime.CloseShared(context.Background())

	if cfg.Gateway.Enabled {
		gw := gateway.New(gateway.Config{
			Bind:     cfg.Gateway.Bind,
			Port:     cfg.Gateway.Port,
			Executor: executor,
			Logger:   logger,
		})
		go func() {
			if err := gw.Start(ctx); err != nil {
				logger.Error("gateway failed", slog.String("error", err.Error()))
			}
		}()
	}

	srv := server.New(executor, catalog, version, logger)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	logger.Info("shutting down")
	return nil
}

// storeProvider falls back to the encrypted credential store when the
// token environment variable is unset. Missing master key means no store.
func storeProvider(cfg *config.Config, logger *slog.Logger) credentials.Provider {
	masterKey := os.Getenv(cfg.Credentials.MasterKeyEnv)
	if masterKey == "" {
		return credentials.StaticProvider{}
	}
	store, err := credentials.Open(cfg.Store.DSN, masterKey)
	if err != nil {
		logger.Warn("credential store unavailable", slog.String("error", err.Error()))
		return credentials.StaticProvider{}
	}
	return credentials.StoreProvider{Store: store, Name: "github_token"}
}
