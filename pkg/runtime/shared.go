package runtime

import (
	"context"
	"fmt"
	"sync"
)

// The process-wide executor is accessor-mediated rather than ambient: it
// is constructed once at startup, read through Shared, and torn down
// explicitly. Tests build their own Executor instances instead.
var (
	sharedMu sync.Mutex
	shared   *Executor
)

// InitShared constructs and installs the process-wide executor. It fails
// if one is already installed.
func InitShared(opts Options) (*Executor, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return nil, fmt.Errorf("runtime: shared executor already initialized")
	}
	e, err := New(opts)
	if err != nil {
		return nil, err
	}
	shared = e
	return e, nil
}

// Shared returns the process-wide executor, or nil before InitShared.
func Shared() *Executor {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return shared
}

// CloseShared tears the process-wide executor down. Idempotent.
func CloseShared(ctx context.Context) {
	sharedMu.Lock()
	e := shared
	shared = nil
	sharedMu.Unlock()
	if e != nil {
		e.Close(ctx)
	}
}
