package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/telemetry"
)

// PoolConfig sizes and paces the warm pool. Immutable post-construction.
type PoolConfig struct {
	// Size is the target number of warm processes.
	Size int

	// MaxUses retires a process after this many frames. 0 disables.
	MaxUses int

	// IdleTimeout retires a process idle for this long. 0 disables.
	IdleTimeout time.Duration

	// AcquireTimeout bounds how long Acquire blocks before failing with
	// ErrPoolExhausted.
	AcquireTimeout time.Duration

	// StartupGrace bounds spawn plus warm-up of a new process.
	StartupGrace time.Duration

	// MaintenanceInterval paces the background recycle/replenish loop.
	MaintenanceInterval time.Duration

	// ShutdownGrace bounds how long Shutdown waits for in-flight frames
	// before force-terminating their processes.
	ShutdownGrace time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Size <= 0 {
		c.Size = 2
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 15 * time.Second
	}
	if c.StartupGrace <= 0 {
		c.StartupGrace = 30 * time.Second
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

// procSpawner creates and warms pool processes. Implemented by spawner;
// tests substitute their own.
type procSpawner interface {
	Spawn(ctx context.Context) (*Process, error)
	Warm(ctx context.Context, p *Process) error
}

// Pool maintains a bounded set of long-lived, pre-warmed interpreter
// processes so steady-state callers never pay interpreter startup cost.
//
// All lifecycle state is guarded by one mutex, which is never held during
// process I/O: spawning, warming, and killing all happen outside it.
type Pool struct {
	cfg     PoolConfig
	spawner procSpawner
	logger  *slog.Logger

	mu       sync.Mutex
	procs    map[string]*Process
	idle     []*Process
	waiters  []chan *Process
	starting int
	closed   bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewPool constructs the pool and begins filling it to target size in the
// background. Acquire may be called immediately; it blocks until a warm
// process is available.
func NewPool(cfg PoolConfig, sp procSpawner, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	pool := &Pool{
		cfg:     cfg.withDefaults(),
		spawner: sp,
		logger:  logger,
		procs:   make(map[string]*Process),
		done:    make(chan struct{}),
	}

	pool.mu.Lock()
	for i := 0; i < pool.cfg.Size; i++ {
		pool.spawnLocked()
	}
	pool.mu.Unlock()

	pool.wg.Add(1)
	go pool.maintain()

	return pool
}

// Acquire returns an exclusive warm process, blocking up to the acquisition
// timeout when all processes are busy and the pool is at capacity.
func (pool *Pool) Acquire(ctx context.Context) (*Process, error) {
	start := time.Now()

	pool.mu.Lock()
	if pool.closed {
		pool.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p := pool.takeIdleLocked(); p != nil {
		pool.updateGaugesLocked()
		pool.mu.Unlock()
		telemetry.Metrics.PoolAcquireWait.Observe(time.Since(start).Seconds())
		return p, nil
	}
	// Re-spawn on demand if earlier fills failed; normally maintenance
	// keeps the pool at size and this is a no-op.
	if pool.aliveLocked()+pool.starting < pool.cfg.Size {
		pool.spawnLocked()
	}
	w := make(chan *Process, 1)
	pool.waiters = append(pool.waiters, w)
	pool.mu.Unlock()

	timer := time.NewTimer(pool.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case p := <-w:
		if p == nil {
			return nil, ErrPoolClosed
		}
		telemetry.Metrics.PoolAcquireWait.Observe(time.Since(start).Seconds())
		return p, nil
	case <-timer.C:
		if p := pool.cancelWaiter(w); p != nil {
			telemetry.Metrics.PoolAcquireWait.Observe(time.Since(start).Seconds())
			return p, nil
		}
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		if p := pool.cancelWaiter(w); p != nil {
			return p, nil
		}
		return nil, ctx.Err()
	}
}

// Release returns a process after one request. A healthy process goes back
// to Idle (or straight to the next waiter); anything else is retired and
// replaced. Releasing the same acquisition twice is a no-op.
func (pool *Pool) Release(p *Process, healthy bool) {
	pool.mu.Lock()
	if p.state != StateBusy {
		pool.mu.Unlock()
		return
	}

	switch {
	case pool.closed:
		p.state = StateDead
		delete(pool.procs, p.id)
		pool.updateGaugesLocked()
		pool.mu.Unlock()
		p.kill()

	case !healthy:
		pool.retireLocked(p, "unhealthy")
		pool.updateGaugesLocked()
		pool.mu.Unlock()

	case pool.cfg.MaxUses > 0 && p.uses >= pool.cfg.MaxUses:
		pool.retireLocked(p, "max_uses")
		pool.updateGaugesLocked()
		pool.mu.Unlock()

	default:
		pool.deliverLocked(p)
		pool.updateGaugesLocked()
		pool.mu.Unlock()
	}
}

// Stats reports process counts by state plus in-flight spawns. At every
// observation point Idle+Busy+Starting+Draining covers the advertised size
// modulo bounded replacement lag.
type Stats struct {
	Idle     int
	Busy     int
	Starting int
	Draining int
}

func (pool *Pool) Stats() Stats {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	s := Stats{Starting: pool.starting}
	for _, p := range pool.procs {
		switch p.state {
		case StateIdle:
			s.Idle++
		case StateBusy:
			s.Busy++
		case StateDraining:
			s.Draining++
		}
	}
	return s
}

// Healthy reports whether the pool can currently serve requests.
func (pool *Pool) Healthy() bool {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return !pool.closed && (pool.aliveLocked() > 0 || pool.starting > 0)
}

// Shutdown drains in-flight work up to the grace period, then force-kills
// whatever remains. Idempotent.
func (pool *Pool) Shutdown(ctx context.Context) {
	pool.mu.Lock()
	if pool.closed {
		pool.mu.Unlock()
		return
	}
	pool.closed = true
	close(pool.done)

	for _, w := range pool.waiters {
		close(w)
	}
	pool.waiters = nil

	var idle []*Process
	for _, p := range pool.procs {
		if p.state == StateIdle {
			p.state = StateDead
			delete(pool.procs, p.id)
			idle = append(idle, p)
		}
	}
	pool.idle = nil
	pool.updateGaugesLocked()
	pool.mu.Unlock()

	for _, p := range idle {
		telemetry.Metrics.PoolRecyclesTotal.WithLabelValues("shutdown").Inc()
		p.kill()
	}

	deadline := time.NewTimer(pool.cfg.ShutdownGrace)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		pool.mu.Lock()
		remaining := len(pool.procs)
		pool.mu.Unlock()
		if remaining == 0 {
			break
		}

		select {
		case <-tick.C:
			continue
		case <-deadline.C:
		case <-ctx.Done():
		}

		pool.mu.Lock()
		var victims []*Process
		for _, p := range pool.procs {
			p.state = StateDead
			delete(pool.procs, p.id)
			victims = append(victims, p)
		}
		pool.updateGaugesLocked()
		pool.mu.Unlock()

		for _, p := range victims {
			telemetry.Metrics.PoolRecyclesTotal.WithLabelValues("shutdown").Inc()
			p.kill()
		}
		break
	}

	pool.wg.Wait()
}

// takeIdleLocked pops the most recently used idle process.
func (pool *Pool) takeIdleLocked() *Process {
	if len(pool.idle) == 0 {
		return nil
	}
	p := pool.idle[len(pool.idle)-1]
	pool.idle = pool.idle[:len(pool.idle)-1]
	p.state = StateBusy
	p.uses++
	return p
}

// deliverLocked hands a now-available process to the oldest waiter, or
// parks it idle.
func (pool *Pool) deliverLocked(p *Process) {
	if len(pool.waiters) > 0 {
		w := pool.waiters[0]
		pool.waiters = pool.waiters[1:]
		p.state = StateBusy
		p.uses++
		w <- p
		return
	}
	p.state = StateIdle
	p.idleSince = time.Now()
	pool.idle = append(pool.idle, p)
}

// cancelWaiter withdraws a waiter after timeout or cancellation. If a
// process was delivered concurrently it is returned so it is not lost.
func (pool *Pool) cancelWaiter(w chan *Process) *Process {
	pool.mu.Lock()
	for i, candidate := range pool.waiters {
		if candidate == w {
			pool.waiters = append(pool.waiters[:i], pool.waiters[i+1:]...)
			pool.mu.Unlock()
			return nil
		}
	}
	pool.mu.Unlock()

	select {
	case p := <-w:
		return p
	default:
		return nil
	}
}

// retireLocked transitions a process to Draining and replaces it before
// removal, so the advertised pool size holds modulo replacement lag.
func (pool *Pool) retireLocked(p *Process, reason string) {
	p.state = StateDraining
	pool.removeIdleLocked(p)
	telemetry.Metrics.PoolRecyclesTotal.WithLabelValues(reason).Inc()

	pool.starting++
	pool.wg.Add(1)
	go func() {
		defer pool.wg.Done()
		pool.spawnOne()

		p.kill()
		pool.mu.Lock()
		p.state = StateDead
		delete(pool.procs, p.id)
		pool.updateGaugesLocked()
		pool.mu.Unlock()
	}()
}

func (pool *Pool) removeIdleLocked(p *Process) {
	for i, candidate := range pool.idle {
		if candidate == p {
			pool.idle = append(pool.idle[:i], pool.idle[i+1:]...)
			return
		}
	}
}

// spawnLocked reserves a replacement slot and starts a spawn.
func (pool *Pool) spawnLocked() {
	pool.starting++
	pool.wg.Add(1)
	go func() {
		defer pool.wg.Done()
		pool.spawnOne()
	}()
}

// spawnOne creates and warms a single process, then installs it. The
// caller must have reserved a slot by incrementing starting.
func (pool *Pool) spawnOne() {
	p, err := pool.spawner.Spawn(context.Background())
	if err == nil {
		if warmErr := pool.spawner.Warm(context.Background(), p); warmErr != nil {
			p.kill()
			err = warmErr
		}
	}

	pool.mu.Lock()
	pool.starting--
	if err != nil {
		pool.updateGaugesLocked()
		pool.mu.Unlock()
		telemetry.Metrics.ErrorsTotal.WithLabelValues("pool_spawn").Inc()
		pool.logger.Error("pool spawn failed", slog.String("error", err.Error()))
		return
	}
	if pool.closed {
		pool.mu.Unlock()
		p.kill()
		return
	}
	pool.procs[p.id] = p
	pool.deliverLocked(p)
	pool.updateGaugesLocked()
	pool.mu.Unlock()
}

func (pool *Pool) maintain() {
	defer pool.wg.Done()

	ticker := time.NewTicker(pool.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pool.done:
			return
		case <-ticker.C:
		}

		pool.mu.Lock()
		if pool.closed {
			pool.mu.Unlock()
			return
		}

		now := time.Now()
		var stale []*Process
		for _, p := range pool.idle {
			switch {
			case pool.cfg.MaxUses > 0 && p.uses >= pool.cfg.MaxUses:
				stale = append(stale, p)
			case pool.cfg.IdleTimeout > 0 && now.Sub(p.idleSince) > pool.cfg.IdleTimeout:
				stale = append(stale, p)
			}
		}
		for _, p := range stale {
			reason := "max_uses"
			if pool.cfg.IdleTimeout > 0 && now.Sub(p.idleSince) > pool.cfg.IdleTimeout {
				reason = "idle"
			}
			pool.retireLocked(p, reason)
		}

		for pool.aliveLocked()+pool.starting < pool.cfg.Size {
			pool.spawnLocked()
		}
		pool.updateGaugesLocked()
		pool.mu.Unlock()
	}
}

func (pool *Pool) aliveLocked() int {
	n := 0
	for _, p := range pool.procs {
		if p.state == StateIdle || p.state == StateBusy {
			n++
		}
	}
	return n
}

func (pool *Pool) updateGaugesLocked() {
	counts := map[ProcState]int{}
	for _, p := range pool.procs {
		counts[p.state]++
	}
	telemetry.Metrics.PoolProcesses.WithLabelValues("idle").Set(float64(counts[StateIdle]))
	telemetry.Metrics.PoolProcesses.WithLabelValues("busy").Set(float64(counts[StateBusy]))
	telemetry.Metrics.PoolProcesses.WithLabelValues("draining").Set(float64(counts[StateDraining]))
	telemetry.Metrics.PoolProcesses.WithLabelValues("starting").Set(float64(pool.starting))
}
