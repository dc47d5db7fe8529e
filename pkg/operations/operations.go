// Package operations defines the catalog of host operations that running
// guest code may invoke through the callback bridge.
package operations

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/credentials"
	"github.com/crypto-ninja/mcp-server-for-Github-sub000/pkg/telemetry"
)

// Operation is a single credentialed host action.
type Operation interface {
	Name() string
	Description() string

	// RequiresAuth reports whether Invoke needs a credential. The catalog
	// rejects the call before Invoke when none is available.
	RequiresAuth() bool

	Invoke(ctx context.Context, args map[string]any, cred credentials.Credential) (json.RawMessage, error)
}

// ErrorKind classifies operation failures for the guest-facing response.
type ErrorKind string

const (
	ErrUnknownOperation ErrorKind = "unknown_operation"
	ErrInvalidArguments ErrorKind = "invalid_arguments"
	ErrUnauthorized     ErrorKind = "unauthorized"
	ErrUpstream         ErrorKind = "upstream_failure"
)

// OpError is the structured error delivered back into the running guest.
// It never aborts the enclosing execution.
type OpError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func Errorf(kind ErrorKind, format string, args ...any) *OpError {
	return &OpError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Catalog maps operation names to invocables. Populated at startup,
// read-mostly afterwards.
type Catalog struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

func NewCatalog() *Catalog {
	return &Catalog{ops: make(map[string]Operation)}
}

func (c *Catalog) Register(op Operation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops[op.Name()] = op
}

func (c *Catalog) Get(name string) (Operation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.ops[name]
	return op, ok
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.ops))
	for name := range c.ops {
		names = append(names, name)
	}
	return names
}

// Invoke resolves and runs the named operation. Every failure comes back
// as an *OpError so the bridge can hand it to the guest as data.
func (c *Catalog) Invoke(ctx context.Context, name string, args map[string]any, provider credentials.Provider) (json.RawMessage, *OpError) {
	op, ok := c.Get(name)
	if !ok {
		return nil, Errorf(ErrUnknownOperation, "no such operation %q", name)
	}

	var cred credentials.Credential
	if op.RequiresAuth() {
		if provider == nil {
			return nil, Errorf(ErrUnauthorized, "operation %q requires a credential", name)
		}
		var found bool
		cred, found = provider.Current(ctx)
		if !found {
			return nil, Errorf(ErrUnauthorized, "operation %q requires a credential", name)
		}
	}

	result, err := op.Invoke(ctx, args, cred)
	if err != nil {
		telemetry.Metrics.OperationsTotal.WithLabelValues(name, "error").Inc()
		if opErr, ok := err.(*OpError); ok {
			return nil, opErr
		}
		return nil, Errorf(ErrUpstream, "%s: %v", name, err)
	}
	telemetry.Metrics.OperationsTotal.WithLabelValues(name, "ok").Inc()
	return result, nil
}
