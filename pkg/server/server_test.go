package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/credentials"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/operations"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/runtime"
)

type fixedOp struct {
	name string
	auth bool
}

func (o fixedOp) Name() string        { return o.name }
func (o fixedOp) Description() string { return "fixed " + o.name }
func (o fixedOp) RequiresAuth() bool  { return o.auth }

func (o fixedOp) Invoke(_ context.Context, _ map[string]any, _ credentials.Credential) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

// newTestServer backs the executor with a shell script that reads the job
// frame and answers per its GOOD/BAD marker; the pool is disabled so every
// call is single-shot.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	interp := filepath.Join(dir, "fake-interpreter")
	script := `#!/bin/sh
IFS= read -r line
case "$line" in
*GOOD*)
  echo '{"value":1}'
  ;;
*)
  echo "SyntaxError: bad" >&2
  exit 1
  ;;
esac
`
	if err := os.WriteFile(interp, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake interpreter: %v", err)
	}

	catalog := operations.NewCatalog()
	catalog.Register(fixedOp{name: "beta", auth: true})
	catalog.Register(fixedOp{name: "alpha"})

	executor, err := runtime.New(runtime.Options{
		Interpreter:    interp,
		InstallDir:     dir,
		HarnessScript:  "harness.js",
		WorkspaceRoot:  t.TempDir(),
		DefaultTimeout: 10 * time.Second,
		Catalog:        catalog,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("runtime.New: %v", err)
	}
	t.Cleanup(func() { executor.Close(context.Background()) })

	return New(executor, catalog, "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func textFrom(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("result has %d content blocks, want 1", len(result.Content))
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", result.Content[0])
	}
	return text.Text
}

func TestExecuteCodeToolSuccess(t *testing.T) {
	s := newTestServer(t)

	result, _, err := s.handleExecuteCode(context.Background(), nil, executeCodeInput{Code: "GOOD"})
	if err != nil {
		t.Fatalf("handleExecuteCode: %v", err)
	}
	if result.IsError {
		t.Fatal("IsError set on a successful execution")
	}

	var outcome runtime.Outcome
	if err := json.Unmarshal([]byte(textFrom(t, result)), &outcome); err != nil {
		t.Fatalf("decoding outcome: %v", err)
	}
	if outcome.Kind != runtime.OutcomeSuccess {
		t.Errorf("outcome kind = %q, want success", outcome.Kind)
	}
	if string(outcome.Payload) != `{"value":1}` {
		t.Errorf("payload = %s", outcome.Payload)
	}
}

func TestExecuteCodeToolGuestError(t *testing.T) {
	s := newTestServer(t)

	result, _, err := s.handleExecuteCode(context.Background(), nil, executeCodeInput{Code: "BAD"})
	if err != nil {
		t.Fatalf("a guest failure must surface as an outcome, not an error: %v", err)
	}
	if !result.IsError {
		t.Error("IsError unset on a failed execution")
	}

	var outcome runtime.Outcome
	if err := json.Unmarshal([]byte(textFrom(t, result)), &outcome); err != nil {
		t.Fatalf("decoding outcome: %v", err)
	}
	if outcome.Kind != runtime.OutcomeGuestError {
		t.Errorf("outcome kind = %q, want guest_error", outcome.Kind)
	}
	if !strings.Contains(outcome.Message, "SyntaxError") {
		t.Errorf("message = %q, want the guest's stderr", outcome.Message)
	}
}

func TestExecuteCodeToolRejectsEmptyCode(t *testing.T) {
	s := newTestServer(t)

	if _, _, err := s.handleExecuteCode(context.Background(), nil, executeCodeInput{}); err == nil {
		t.Fatal("empty code must be rejected")
	}
}

func TestListOperationsTool(t *testing.T) {
	s := newTestServer(t)

	result, _, err := s.handleListOperations(context.Background(), nil, listOperationsInput{})
	if err != nil {
		t.Fatalf("handleListOperations: %v", err)
	}

	var infos []struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		RequiresAuth bool   `json:"requires_auth"`
	}
	if err := json.Unmarshal([]byte(textFrom(t, result)), &infos); err != nil {
		t.Fatalf("decoding operations: %v", err)
	}

	if len(infos) != 2 {
		t.Fatalf("got %d operations, want 2", len(infos))
	}
	if infos[0].Name != "alpha" || infos[1].Name != "beta" {
		t.Errorf("operations = %v, want sorted by name", infos)
	}
	if !infos[1].RequiresAuth {
		t.Error("beta should require auth")
	}
}
