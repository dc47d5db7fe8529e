// Package server exposes guest-code execution as MCP tools over stdio.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/operations"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/runtime"
)

type Server struct {
	mcp      *mcp.Server
	executor *runtime.Executor
	catalog  *operations.Catalog
	logger   *slog.Logger
}

func New(executor *runtime.Executor, catalog *operations.Catalog, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		executor: executor,
		catalog:  catalog,
		logger:   logger,
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "ghmcp",
		Version: version,
	}, nil)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "execute_code",
		Description: "Execute a JavaScript snippet in an isolated sandbox. " +
			"The snippet may call GitHub operations via the callback API and " +
			"must emit its final value as a single JSON line on stdout.",
	}, s.handleExecuteCode)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_operations",
		Description: "List the host operations available to executed code.",
	}, s.handleListOperations)

	return s
}

// Run serves MCP over stdio until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

type executeCodeInput struct {
	Code      string `json:"code" jsonschema:"the JavaScript source to execute"`
	TimeoutMs int    `json:"timeout_ms,omitempty" jsonschema:"wall-clock limit in milliseconds"`
	Isolated  bool   `json:"isolated,omitempty" jsonschema:"force a fresh process instead of a pooled one"`
}

func (s *Server) handleExecuteCode(ctx context.Context, req *mcp.CallToolRequest, input executeCodeInput) (*mcp.CallToolResult, any, error) {
	if input.Code == "" {
		return nil, nil, fmt.Errorf("code must not be empty")
	}

	outcome := s.executor.Execute(ctx, runtime.Request{
		Code:     input.Code,
		Timeout:  time.Duration(input.TimeoutMs) * time.Millisecond,
		Isolated: input.Isolated,
	})

	data, err := json.Marshal(outcome)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding outcome: %w", err)
	}

	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: outcome.Kind != runtime.OutcomeSuccess,
	}
	return result, nil, nil
}

type listOperationsInput struct{}

func (s *Server) handleListOperations(ctx context.Context, req *mcp.CallToolRequest, _ listOperationsInput) (*mcp.CallToolResult, any, error) {
	type opInfo struct {
		Name         string `json:"name"`
		Description  string `json:"description"`
		RequiresAuth bool   `json:"requires_auth"`
	}

	names := s.catalog.Names()
	sort.Strings(names)

	infos := make([]opInfo, 0, len(names))
	for _, name := range names {
		op, ok := s.catalog.Get(name)
		if !ok {
			continue
		}
		infos = append(infos, opInfo{
			Name:         op.Name(),
			Description:  op.Description(),
			RequiresAuth: op.RequiresAuth(),
		})
	}

	data, err := json.Marshal(infos)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding operations: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
