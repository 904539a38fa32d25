package talyn

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// API is the outbound gateway contract the session store depends on. The
// concrete implementation is Client; tests swap in mocks.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
}

// TokenStore is durable client-side storage for the raw bearer token.
// Implementations hold exactly one value.
type TokenStore interface {
	Get() (string, bool)
	Set(token string) error
	Clear() error
}

// Guard evaluates session snapshots against route requirements.
type Guard interface {
	Evaluate(session Session, cfg RouteConfig) RouteDecision
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] TALYN "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] TALYN "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] TALYN "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] TALYN "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
