// Package credentials supplies bearer credentials to host operations and
// stores long-lived tokens encrypted at rest.
package credentials

import (
	"context"
	"os"
	"strings"
)

// Credential is an opaque bearer token for the GitHub API.
type Credential struct {
	Token string
}

// Provider yields the credential to use for the current request, if any.
// Implementations may do their own caching or refresh; callers must not
// hold onto credentials across requests.
type Provider interface {
	Current(ctx context.Context) (Credential, bool)
}

// EnvProvider reads the credential from a process environment variable.
type EnvProvider struct {
	Var string
}

func (p EnvProvider) Current(ctx context.Context) (Credential, bool) {
	v := strings.TrimSpace(os.Getenv(p.Var))
	if v == "" {
		return Credential{}, false
	}
	return Credential{Token: v}, true
}

// StaticProvider returns a fixed credential. Used in tests and for
// short-lived tokens injected at startup.
type StaticProvider struct {
	Token string
}

func (p StaticProvider) Current(ctx context.Context) (Credential, bool) {
	if p.Token == "" {
		return Credential{}, false
	}
	return Credential{Token: p.Token}, true
}

// Chain tries providers in order and returns the first credential found.
type Chain []Provider

func (c Chain) Current(ctx context.Context) (Credential, bool) {
	for _, p := range c {
		if cred, ok := p.Current(ctx); ok {
			return cred, true
		}
	}
	return Credential{}, false
}
