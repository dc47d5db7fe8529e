package runtime

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLauncherSuccess(t *testing.T) {
	interp, dir := writeInterpreter(t, `IFS= read -r line
echo "startup noise"
echo '{"value":2}'`)
	l := newTestLauncher(t, interp, dir)

	outcome := l.Run(context.Background(), "1 + 1")
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if string(outcome.Payload) != `{"value":2}` {
		t.Errorf("payload = %s, want {\"value\":2}", outcome.Payload)
	}
}

func TestLauncherSuccessAfterManyDiagnostics(t *testing.T) {
	interp, dir := writeInterpreter(t, `IFS= read -r line
i=0
while [ $i -lt 10 ]; do
  echo "diagnostic line $i"
  i=$((i+1))
done
echo '{"ok":true}'`)
	l := newTestLauncher(t, interp, dir)

	outcome := l.Run(context.Background(), "noisy()")
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if string(outcome.Payload) != `{"ok":true}` {
		t.Errorf("payload = %s, want {\"ok\":true}", outcome.Payload)
	}
}

func TestLauncherGuestError(t *testing.T) {
	interp, dir := writeInterpreter(t, `IFS= read -r line
echo "partial progress"
echo "TypeError: boom" >&2
exit 3`)
	l := newTestLauncher(t, interp, dir)

	outcome := l.Run(context.Background(), "throw new Error()")
	if outcome.Kind != OutcomeGuestError {
		t.Fatalf("outcome = %+v, want guest error", outcome)
	}
	if !strings.Contains(outcome.Message, "TypeError: boom") {
		t.Errorf("message = %q, want the stderr text", outcome.Message)
	}
}

func TestLauncherGuestErrorWithoutStderrUsesStdout(t *testing.T) {
	interp, dir := writeInterpreter(t, `IFS= read -r line
echo "failed while resolving imports"
exit 1`)
	l := newTestLauncher(t, interp, dir)

	outcome := l.Run(context.Background(), "x")
	if outcome.Kind != OutcomeGuestError {
		t.Fatalf("outcome = %+v, want guest error", outcome)
	}
	if !strings.Contains(outcome.Message, "failed while resolving imports") {
		t.Errorf("message = %q, want the stdout excerpt", outcome.Message)
	}
}

func TestLauncherCrash(t *testing.T) {
	interp, dir := writeInterpreter(t, `IFS= read -r line
kill -9 $$`)
	l := newTestLauncher(t, interp, dir)

	outcome := l.Run(context.Background(), "x")
	if outcome.Kind != OutcomeInfraError {
		t.Fatalf("outcome = %+v, want infrastructure error", outcome)
	}
	if outcome.Infra != InfraCrash {
		t.Errorf("infra kind = %q, want %q", outcome.Infra, InfraCrash)
	}
}

func TestLauncherTimeout(t *testing.T) {
	interp, dir := writeInterpreter(t, `exec sleep 30`)
	l := newTestLauncher(t, interp, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	outcome := l.Run(ctx, "while(true){}")
	if outcome.Kind != OutcomeInfraError || outcome.Infra != InfraTimeout {
		t.Fatalf("outcome = %+v, want infrastructure timeout", outcome)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Run took %s after a 200ms deadline", elapsed)
	}
}

func TestLauncherLaunchFailure(t *testing.T) {
	dir := t.TempDir()
	l := newTestLauncher(t, dir+"/does-not-exist", dir)

	outcome := l.Run(context.Background(), "x")
	if outcome.Kind != OutcomeInfraError || outcome.Infra != InfraLaunchFailure {
		t.Fatalf("outcome = %+v, want launch failure", outcome)
	}
}

func TestLauncherEmptyOutput(t *testing.T) {
	interp, dir := writeInterpreter(t, `IFS= read -r line
exit 0`)
	l := newTestLauncher(t, interp, dir)

	outcome := l.Run(context.Background(), "x")
	if outcome.Kind != OutcomeProtocolError {
		t.Fatalf("outcome = %+v, want protocol error", outcome)
	}
}

func TestLauncherNoPayloadHasExcerpt(t *testing.T) {
	interp, dir := writeInterpreter(t, `IFS= read -r line
echo "only prose, no structured result"`)
	l := newTestLauncher(t, interp, dir)

	outcome := l.Run(context.Background(), "x")
	if outcome.Kind != OutcomeProtocolError {
		t.Fatalf("outcome = %+v, want protocol error", outcome)
	}
	if !strings.Contains(outcome.Excerpt, "only prose") {
		t.Errorf("excerpt = %q, want raw output tail", outcome.Excerpt)
	}
}

func TestLauncherCallbackRoundTrip(t *testing.T) {
	interp, dir := writeInterpreter(t, `IFS= read -r line
printf '@@HOSTCALL@@{"id":"cb-1","operation":"echo","arguments":{"n":1}}\n'
IFS= read -r resp
printf '%s\n' "$resp"`)
	l := newTestLauncher(t, interp, dir)

	outcome := l.Run(context.Background(), "await host.echo({n:1})")
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %+v, want success", outcome)
	}

	// The fake guest echoes the callback response as its payload.
	var resp callbackResponse
	if err := json.Unmarshal(outcome.Payload, &resp); err != nil {
		t.Fatalf("decoding payload %s: %v", outcome.Payload, err)
	}
	if resp.ID != "cb-1" {
		t.Errorf("callback response id = %q, want cb-1", resp.ID)
	}
	if string(resp.Result) != `{"n":1}` {
		t.Errorf("callback result = %s, want {\"n\":1}", resp.Result)
	}
}

func TestLauncherCodeNeverOnArgv(t *testing.T) {
	// The fake records its argv; the submitted code must never appear there.
	interp, dir := writeInterpreter(t, `printf '{"argv":"%s"}\n' "$*"`)
	l := newTestLauncher(t, interp, dir)

	const sentinel = "VERY_UNIQUE_CODE_SENTINEL"
	outcome := l.Run(context.Background(), sentinel)
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	if strings.Contains(string(outcome.Payload), sentinel) {
		t.Error("guest code leaked onto the interpreter argv")
	}
}

func TestLauncherProtocolViolation(t *testing.T) {
	interp, dir := writeInterpreter(t, `IFS= read -r line
printf '@@HOSTCALL@@{"operation":"echo","arguments":{}}\n'
IFS= read -r resp
echo '{"ok":true}'`)
	l := newTestLauncher(t, interp, dir)

	outcome := l.Run(context.Background(), "x")
	if outcome.Kind != OutcomeProtocolError {
		t.Fatalf("outcome = %+v, want protocol error for id-less callback", outcome)
	}
}
