package runtime

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/operations"
)

// writeInterpreter writes an executable shell script that stands in for the
// guest interpreter. The script receives the usual "run <flags> <harness>"
// argument vector and is free to ignore it; its body speaks the framing
// protocol directly.
func writeInterpreter(t *testing.T, body string) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "fake-interpreter")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake interpreter: %v", err)
	}
	return path, dir
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLauncher(t *testing.T, interp, dir string) *Launcher {
	t.Helper()
	catalog := operations.NewCatalog()
	catalog.Register(echoOp{})
	return &Launcher{
		interpreter:   interp,
		installDir:    dir,
		harnessScript: "harness.js",
		workspaceRoot: t.TempDir(),
		gate:          func() GateConfig { return GateConfig{InstallDir: dir} },
		maxOutput:     1 << 20,
		bridge:        NewBridge(catalog, nil, discardLogger()),
		logger:        discardLogger(),
	}
}

// harnessScript builds a two-mode fake harness. In --serve mode it
// announces readiness and answers every frame with serveBody; otherwise it
// reads the single job frame and runs oneshotBody. Both bodies see the
// frame line as $line and the frame id as $id.
func harnessScript(serveBody, oneshotBody string) string {
	return `case "$*" in
*--serve*)
  echo "@@READY@@"
  while IFS= read -r line; do
    case "$line" in
    "@@JOB@@"*)
      id=$(printf '%s' "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
      ` + serveBody + `
      ;;
    esac
  done
  ;;
*)
  IFS= read -r line
  id=$(printf '%s' "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
  ` + oneshotBody + `
  ;;
esac`
}

// okServeFrame is a minimal well-behaved pooled frame: a diagnostic, a
// payload carrying the handler pid so tests can tell processes apart, and
// the frame terminator.
const okServeFrame = `echo "diagnostic"
printf '{"ok":true,"pid":%s}\n' "$$"
printf '@@JOBDONE@@{"id":"%s"}\n' "$id"`

// okOneshotFrame matches okServeFrame minus the terminator; single-shot
// frames end at process exit.
const okOneshotFrame = `echo "diagnostic"
printf '{"ok":true,"pid":%s}\n' "$$"`

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}
