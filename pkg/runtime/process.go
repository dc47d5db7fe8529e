package runtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ProcState is a pooled process's lifecycle state. Transitions are guarded
// by the pool mutex; a Busy process serves at most one request and release
// moves it to Idle or Dead only.
type ProcState int

const (
	StateStarting ProcState = iota
	StateIdle
	StateBusy
	StateDraining
	StateDead
)

func (s ProcState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateDraining:
		return "draining"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Process is one long-lived interpreter owned by the pool. Never shared
// between in-flight requests.
type Process struct {
	id     string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *boundedBuffer

	// Guarded by the owning pool's mutex.
	state     ProcState
	uses      int
	createdAt time.Time
	idleSince time.Time
}

func (p *Process) ID() string { return p.id }

// kill tears the process down unconditionally. Safe to call more than
// once; callers mark the state transition under the pool lock.
func (p *Process) kill() {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
}

// runFrame executes one code frame on the process and classifies the
// result. On context expiry the process is killed in place; the caller
// must release it as unhealthy.
func (p *Process) runFrame(ctx context.Context, bridge *Bridge, code string, maxOutput int) Outcome {
	frameID := uuid.NewString()
	frame, err := encodeJobFrame(frameID, code)
	if err != nil {
		return InfraError(InfraCrash, "encoding code frame: %v", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		_, err := p.stdin.Write(frame)
		writeErr <- err
	}()

	type frameOut struct {
		out *boundedLines
		res frameResult
		err error
	}
	done := make(chan frameOut, 1)
	go func() {
		out, res, err := bridge.runFrame(ctx, p.stdout, p.stdin, frameID, maxOutput)
		done <- frameOut{out: out, res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		// Non-cooperative cancellation: the guest gets no cleanup
		// opportunity and the process is unusable afterwards.
		p.kill()
		<-done
		if ctx.Err() == context.DeadlineExceeded {
			return InfraError(InfraTimeout, "execution deadline exceeded")
		}
		return InfraError(InfraCrash, "execution canceled: %v", ctx.Err())

	case f := <-done:
		if f.err != nil {
			if isViolation(f.err) {
				return ProtocolError(f.err.Error(), excerpt(f.out.lines))
			}
			if werr := <-writeErr; werr != nil {
				return InfraError(InfraCrash, "writing code frame: %v", werr)
			}
			return InfraError(InfraCrash, "guest process failed mid-frame: %s", firstNonEmpty(p.stderr.String(), f.err.Error()))
		}
		if f.res.Error != "" {
			return GuestError(f.res.Error)
		}
		return classifyOutput(f.out)
	}
}

// spawner creates and warms pooled processes. Capabilities are re-derived
// on every spawn.
type spawner struct {
	interpreter   string
	installDir    string
	harnessScript string
	workspaceRoot string
	gate          func() GateConfig
	startupGrace  time.Duration
	warmupCode    string
	maxOutput     int
	bridge        *Bridge
	logger        *slog.Logger
}

func (s *spawner) harnessPath() string {
	if filepath.IsAbs(s.harnessScript) {
		return s.harnessScript
	}
	return filepath.Join(s.installDir, s.harnessScript)
}

// Spawn starts one pooled harness process and waits for its readiness
// announcement. The returned process has not been warmed yet.
func (s *spawner) Spawn(ctx context.Context) (*Process, error) {
	caps := DeriveCapabilities(s.gate())

	args := append([]string{"run"}, caps.Flags()...)
	args = append(args, s.harnessPath(), "--serve")

	// Deliberately not CommandContext: the process outlives the spawn
	// call and is torn down through kill.
	cmd := exec.Command(s.interpreter, args...)
	cmd.Dir = s.installDir
	cmd.Env = caps.Environ(s.workspaceRoot)
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("runtime: opening stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("runtime: opening stdout: %w", err)
	}
	stderr := newBoundedBuffer(s.maxOutput)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("runtime: spawning %s: %w", s.interpreter, err)
	}

	p := &Process{
		id:        uuid.NewString(),
		cmd:       cmd,
		stdin:     stdin,
		stdout:    bufio.NewReader(stdout),
		stderr:    stderr,
		state:     StateStarting,
		createdAt: time.Now(),
	}

	if err := s.awaitReady(ctx, p); err != nil {
		p.kill()
		return nil, err
	}
	return p, nil
}

func (s *spawner) awaitReady(ctx context.Context, p *Process) error {
	grace := s.startupGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	ready := make(chan error, 1)
	go func() {
		for {
			line, err := p.stdout.ReadString('\n')
			if trimmed := trimLine(line); trimmed == markerReady {
				ready <- nil
				return
			}
			if err != nil {
				ready <- fmt.Errorf("runtime: harness exited before ready: %s", firstNonEmpty(p.stderr.String(), err.Error()))
				return
			}
		}
	}()

	select {
	case err := <-ready:
		return err
	case <-timer.C:
		return fmt.Errorf("runtime: harness not ready within %s", grace)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Warm executes one no-op frame, absorbing first-call interpreter
// initialization outside any caller's critical path.
func (s *spawner) Warm(ctx context.Context, p *Process) error {
	grace := s.startupGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	outcome := p.runFrame(ctx, s.bridge, s.warmupCode, s.maxOutput)
	if outcome.Kind == OutcomeInfraError {
		return fmt.Errorf("runtime: warming process: %s", outcome.Message)
	}
	return nil
}
