package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/audit"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/credentials"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/operations"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/telemetry"
)

// Options configures an Executor. Catalog and Interpreter are required;
// a zero Pool.Size disables the warm pool entirely.
type Options struct {
	// Interpreter is the guest interpreter binary.
	Interpreter string

	// InstallDir is the interpreter installation root and the working
	// directory of every guest process.
	InstallDir string

	// HarnessScript is the entry script, resolved against InstallDir
	// unless absolute.
	HarnessScript string

	// WorkspaceRoot is exported to guests via WorkspaceEnvVar.
	WorkspaceRoot string

	// Gate enumerates guest permissions; re-derived on every spawn.
	Gate GateConfig

	// Pool sizes the warm pool. Size 0 makes every request single-shot.
	Pool PoolConfig

	// DefaultTimeout applies when a request carries no override; 60s
	// when zero. MaxTimeout caps overrides when > 0.
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration

	// MaxOutputBytes bounds retained guest output per stream.
	MaxOutputBytes int

	// WarmupCode is the no-op payload run when warming a process.
	WarmupCode string

	Catalog     *operations.Catalog
	Credentials credentials.Provider
	Audit       *audit.Logger
	Logger      *slog.Logger
}

// Executor is the public entry point for guest-code execution. It routes
// each request to the pooled or single-shot path, enforces deadlines, and
// always yields exactly one structured outcome.
type Executor struct {
	pool           *Pool
	launcher       *Launcher
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	maxOutput      int
	audit          *audit.Logger
	logger         *slog.Logger
	bridge         *Bridge
}

func New(opts Options) (*Executor, error) {
	if opts.Interpreter == "" {
		return nil, fmt.Errorf("runtime: interpreter binary is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("runtime: operation catalog is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 60 * time.Second
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = 1024 * 1024
	}
	if opts.WarmupCode == "" {
		opts.WarmupCode = "null"
	}
	if opts.Gate.InstallDir == "" {
		opts.Gate.InstallDir = opts.InstallDir
	}

	bridge := NewBridge(opts.Catalog, opts.Credentials, opts.Logger)
	gate := func() GateConfig { return opts.Gate }

	e := &Executor{
		launcher: &Launcher{
			interpreter:   opts.Interpreter,
			installDir:    opts.InstallDir,
			harnessScript: opts.HarnessScript,
			workspaceRoot: opts.WorkspaceRoot,
			gate:          gate,
			maxOutput:     opts.MaxOutputBytes,
			bridge:        bridge,
			logger:        opts.Logger,
		},
		defaultTimeout: opts.DefaultTimeout,
		maxTimeout:     opts.MaxTimeout,
		maxOutput:      opts.MaxOutputBytes,
		audit:          opts.Audit,
		logger:         opts.Logger,
		bridge:         bridge,
	}

	if opts.Pool.Size > 0 {
		sp := &spawner{
			interpreter:   opts.Interpreter,
			installDir:    opts.InstallDir,
			harnessScript: opts.HarnessScript,
			workspaceRoot: opts.WorkspaceRoot,
			gate:          gate,
			startupGrace:  opts.Pool.withDefaults().StartupGrace,
			warmupCode:    opts.WarmupCode,
			maxOutput:     opts.MaxOutputBytes,
			bridge:        bridge,
			logger:        opts.Logger,
		}
		e.pool = NewPool(opts.Pool, sp, opts.Logger)
	}

	return e, nil
}

// Execute runs one request to a terminal outcome. Every failure mode is
// represented inside the Outcome; Execute itself never fails.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	requestID := uuid.NewString()
	path := "pooled"
	if req.Isolated || e.pool == nil {
		path = "oneshot"
	}

	ctx, span := telemetry.StartSpan(ctx, "runtime.Execute",
		attribute.String("request.id", requestID),
		attribute.Bool("request.isolated", req.Isolated),
	)
	defer span.End()

	timeout := e.effectiveTimeout(req.Timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var outcome Outcome

	if path == "pooled" {
		p, err := e.pool.Acquire(ctx)
		switch {
		case err == nil:
			outcome = p.runFrame(ctx, e.bridge, req.Code, e.maxOutput)
			// Only a cleanly completed frame leaves the stream in a
			// known state. A protocol violation aborts the read loop
			// mid-frame, so that process is retired along with the
			// timed-out and crashed ones.
			e.pool.Release(p, outcome.Kind == OutcomeSuccess || outcome.Kind == OutcomeGuestError)
		case errors.Is(err, ErrPoolExhausted) || errors.Is(err, ErrPoolClosed):
			e.logger.Debug("pool unavailable, falling back to single-shot",
				slog.String("request_id", requestID),
				slog.String("reason", err.Error()),
			)
			path = "oneshot"
			outcome = e.launcher.Run(ctx, req.Code)
		default:
			// Context ended while waiting to acquire; no process was
			// involved, so neither case is a crash.
			if errors.Is(err, context.Canceled) {
				outcome = InfraError(InfraTimeout, "execution canceled while waiting for a process")
			} else {
				outcome = InfraError(InfraTimeout, "execution deadline exceeded")
			}
		}
	} else {
		outcome = e.launcher.Run(ctx, req.Code)
	}

	elapsed := time.Since(start)
	telemetry.Metrics.ExecutionsTotal.WithLabelValues(path, string(outcome.Kind)).Inc()
	telemetry.Metrics.ExecutionDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.String("outcome.kind", string(outcome.Kind)),
		attribute.String("execution.path", path),
	)

	e.logger.Info("execution finished",
		slog.String("request_id", requestID),
		slog.String("path", path),
		slog.String("outcome", string(outcome.Kind)),
		slog.Duration("elapsed", elapsed),
	)
	if e.audit != nil {
		if err := e.audit.Log(ctx, audit.EventExecute, requestID, "", string(outcome.Kind), outcome.Message); err != nil {
			e.logger.Warn("audit write failed", slog.String("error", err.Error()))
		}
	}

	return outcome
}

// Pool exposes the warm pool for health checks; nil when disabled.
func (e *Executor) Pool() *Pool { return e.pool }

// Close shuts the warm pool down, draining in-flight work. Idempotent.
func (e *Executor) Close(ctx context.Context) {
	if e.pool != nil {
		e.pool.Shutdown(ctx)
	}
}

func (e *Executor) effectiveTimeout(override time.Duration) time.Duration {
	timeout := e.defaultTimeout
	if override > 0 {
		timeout = override
	}
	if e.maxTimeout > 0 && timeout > e.maxTimeout {
		timeout = e.maxTimeout
	}
	return timeout
}
