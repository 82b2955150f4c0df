package api

import (
	"os"
	"strings"
)

// TokenSource supplies the bearer token attached to outbound calls.
// The gateway reads it per call and never manages its lifecycle.
// An empty token means the call proceeds unauthenticated.
type TokenSource interface {
	Token() string
}

// StaticTokenSource returns the same token for every call.
type StaticTokenSource string

// Token returns the static token value.
func (s StaticTokenSource) Token() string { return string(s) }

// EnvTokenSource reads the token from an environment variable on every call.
type EnvTokenSource string

// Token returns the current value of the environment variable.
func (s EnvTokenSource) Token() string {
	return strings.TrimSpace(os.Getenv(string(s)))
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func() string

// Token invokes the wrapped function.
func (f TokenSourceFunc) Token() string { return f() }
