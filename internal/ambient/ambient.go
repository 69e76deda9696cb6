// Package ambient carries the two task-local context frames the engine
// threads through every strategy/exchange callback: the MethodContext
// (which schemas a task is running under) and the ExecutionContext
// (symbol, timestamp, mode). Both ride on context.Context rather than a
// goroutine-local stack: each call to RunWith derives a child context,
// so parallel independent tasks (one per symbol/strategy pair, per §5 of
// the engine spec) naturally get isolated frames without any shared
// mutable state. Nested tasks inherit the parent frame and may override
// it for the duration of their own subtree.
package ambient

import (
	"context"
	"time"

	"github.com/guyghost/backtestkit/internal/enginerr"
)

// MethodContext identifies which named schemas a task is executing under.
type MethodContext struct {
	StrategyName string
	ExchangeName string
	FrameName    string
	WalkerName   string // empty outside a walker task
}

// ExecutionContext is the per-tick frame: which symbol, at what
// timestamp, in which mode.
type ExecutionContext struct {
	Symbol    string
	When      time.Time
	Backtest  bool
}

type methodCtxKey struct{}
type executionCtxKey struct{}

// WithMethodContext returns a derived context carrying mc, overriding
// any MethodContext already present on ctx.
func WithMethodContext(ctx context.Context, mc MethodContext) context.Context {
	return context.WithValue(ctx, methodCtxKey{}, mc)
}

// WithExecutionContext returns a derived context carrying ec, overriding
// any ExecutionContext already present on ctx.
func WithExecutionContext(ctx context.Context, ec ExecutionContext) context.Context {
	return context.WithValue(ctx, executionCtxKey{}, ec)
}

// CurrentMethodContext returns the MethodContext pushed by the nearest
// enclosing WithMethodContext call, or ErrContextMissing if ctx carries
// none.
func CurrentMethodContext(ctx context.Context) (MethodContext, error) {
	mc, ok := ctx.Value(methodCtxKey{}).(MethodContext)
	if !ok {
		return MethodContext{}, enginerr.ErrContextMissing
	}
	return mc, nil
}

// CurrentExecutionContext returns the ExecutionContext pushed by the
// nearest enclosing WithExecutionContext call, or ErrContextMissing if
// ctx carries none.
func CurrentExecutionContext(ctx context.Context) (ExecutionContext, error) {
	ec, ok := ctx.Value(executionCtxKey{}).(ExecutionContext)
	if !ok {
		return ExecutionContext{}, enginerr.ErrContextMissing
	}
	return ec, nil
}

// RunWith pushes both frames (replacing only the non-zero one when one
// of mc/ec is the zero value is the caller's responsibility — callers
// typically already hold the other from a previous frame and pass it
// through unchanged) and runs fn with the derived context. The frame is
// implicit in ctx's lifetime: once fn returns, the caller's original ctx
// is unaffected, so "popping" is simply not using the derived value
// further.
func RunWith(ctx context.Context, mc MethodContext, ec ExecutionContext, fn func(context.Context) error) error {
	derived := WithExecutionContext(WithMethodContext(ctx, mc), ec)
	return fn(derived)
}
