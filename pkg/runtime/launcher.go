package runtime

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Launcher runs guest code in a fresh process per call: spawn, execute,
// tear down, never reuse. It applies the same capability gate and framing
// protocol as the pooled path, so the two differ only in latency.
type Launcher struct {
	interpreter   string
	installDir    string
	harnessScript string
	workspaceRoot string
	gate          func() GateConfig
	maxOutput     int
	bridge        *Bridge
	logger        *slog.Logger
}

// waitDelay bounds cmd.Wait after the process is killed, in case a nested
// helper inherited the output pipe.
const waitDelay = 5 * time.Second

func (l *Launcher) harnessPath() string {
	if filepath.IsAbs(l.harnessScript) {
		return l.harnessScript
	}
	return filepath.Join(l.installDir, l.harnessScript)
}

// Run executes one request in a single-shot process. The context carries
// the effective deadline; on expiry the process is force-terminated and
// the outcome classifies as a timeout. Run never returns a raw error.
func (l *Launcher) Run(ctx context.Context, code string) Outcome {
	caps := DeriveCapabilities(l.gate())

	args := append([]string{"run"}, caps.Flags()...)
	args = append(args, l.harnessPath())

	cmd := exec.CommandContext(ctx, l.interpreter, args...)
	cmd.Dir = l.installDir
	cmd.Env = caps.Environ(l.workspaceRoot)
	cmd.WaitDelay = waitDelay

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return InfraError(InfraLaunchFailure, "opening stdin: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return InfraError(InfraLaunchFailure, "opening stdout: %v", err)
	}
	stderr := newBoundedBuffer(l.maxOutput)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return InfraError(InfraLaunchFailure, "spawning %s: %v", l.interpreter, err)
	}

	// The code frame is written concurrently with the read loop so a
	// large program cannot deadlock against a filling stdout pipe. The
	// stream stays open for callback responses until the frame ends.
	frame, err := encodeJobFrame(uuid.NewString(), code)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return InfraError(InfraLaunchFailure, "encoding code frame: %v", err)
	}
	go func() {
		_, _ = stdin.Write(frame)
	}()

	out, _, bridgeErr := l.bridge.runFrame(ctx, bufio.NewReader(stdout), stdin, "", l.maxOutput)
	_ = stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() == context.DeadlineExceeded {
		return InfraError(InfraTimeout, "execution deadline exceeded")
	}
	if bridgeErr != nil && isViolation(bridgeErr) {
		return ProtocolError(bridgeErr.Error(), excerpt(out.lines))
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			if exitErr.ExitCode() < 0 {
				return InfraError(InfraCrash, "guest process killed: %s", firstNonEmpty(stderr.String(), exitErr.String()))
			}
			// A non-zero exit is always a guest failure regardless of
			// what reached stdout; the message prefers stderr.
			msg := firstNonEmpty(stderr.String(), excerpt(out.lines))
			if msg == "" {
				msg = exitErr.String()
			}
			return GuestError(msg)
		}
		return InfraError(InfraCrash, "waiting for guest process: %v", waitErr)
	}

	if bridgeErr != nil {
		return InfraError(InfraCrash, "reading guest output: %v", bridgeErr)
	}

	return classifyOutput(out)
}

// classifyOutput recovers the final payload from an exit-0 frame body.
func classifyOutput(out *boundedLines) Outcome {
	if payload, ok := recoverPayload(out.lines); ok {
		return Success(payload)
	}
	if len(out.lines) == 0 {
		return ProtocolError("guest produced no output", "")
	}
	return ProtocolError("no result payload in guest output", excerpt(out.lines))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
