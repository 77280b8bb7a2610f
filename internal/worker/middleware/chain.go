package middleware

import (
	"context"

	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/worker/processor"
)

// NextFunc runs the rest of the chain.
type NextFunc func(ctx context.Context) (map[string]interface{}, error)

// Middleware wraps one script run.
type Middleware interface {
	Execute(ctx context.Context, script *models.Script, inputs map[string]interface{}, next NextFunc) (map[string]interface{}, error)
}

// Ensure Chain can stand in for the processor runtime
var _ processor.Runtime = (*Chain)(nil)

// Chain runs scripts on a runtime through a list of middleware. The first
// middleware added is the outermost.
type Chain struct {
	runtime     processor.Runtime
	middlewares []Middleware
}

// NewChain creates a new middleware chain around runtime
func NewChain(runtime processor.Runtime, middlewares ...Middleware) *Chain {
	return &Chain{
		runtime:     runtime,
		middlewares: middlewares,
	}
}

// Use adds middleware to the chain
func (c *Chain) Use(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Run implements processor.Runtime.
func (c *Chain) Run(ctx context.Context, script *models.Script, inputs map[string]interface{}) (map[string]interface{}, error) {
	final := NextFunc(func(ctx context.Context) (map[string]interface{}, error) {
		return c.runtime.Run(ctx, script, inputs)
	})

	// Wrap in reverse order so first middleware executes first
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		m := c.middlewares[i]
		next := final
		final = func(ctx context.Context) (map[string]interface{}, error) {
			return m.Execute(ctx, script, inputs, next)
		}
	}

	return final(ctx)
}

// Len returns the number of middlewares
func (c *Chain) Len() int {
	return len(c.middlewares)
}

// MiddlewareFunc is a function that implements Middleware
type MiddlewareFunc func(ctx context.Context, script *models.Script, inputs map[string]interface{}, next NextFunc) (map[string]interface{}, error)

// Execute implements Middleware
func (f MiddlewareFunc) Execute(ctx context.Context, script *models.Script, inputs map[string]interface{}, next NextFunc) (map[string]interface{}, error) {
	return f(ctx, script, inputs, next)
}

// Conditional applies m only to scripts matching condition.
func Conditional(condition func(*models.Script) bool, m Middleware) Middleware {
	return MiddlewareFunc(func(ctx context.Context, script *models.Script, inputs map[string]interface{}, next NextFunc) (map[string]interface{}, error) {
		if condition(script) {
			return m.Execute(ctx, script, inputs, next)
		}
		return next(ctx)
	})
}

// ForCustomScripts applies m only to scripts written by a workspace.
func ForCustomScripts(m Middleware) Middleware {
	return Conditional(func(script *models.Script) bool {
		return script.IsCustom
	}, m)
}
