// Package scope carries per-model auto-indexing suppression through a context.
package scope

import "context"

type ctxKey struct{}

// suppressed is an immutable set of model names. Every WithoutAutoIndex call
// derives a new set, so leaving an inner scope restores the outer one.
type suppressed map[string]struct{}

// WithoutAutoIndex returns a context in which automatic indexing of model
// is suppressed.
func WithoutAutoIndex(ctx context.Context, model string) context.Context {
	prev, _ := ctx.Value(ctxKey{}).(suppressed)
	if _, ok := prev[model]; ok {
		return ctx
	}
	next := make(suppressed, len(prev)+1)
	for k := range prev {
		next[k] = struct{}{}
	}
	next[model] = struct{}{}
	return context.WithValue(ctx, ctxKey{}, next)
}

// Suppressed reports whether automatic indexing of model is suppressed in ctx.
func Suppressed(ctx context.Context, model string) bool {
	set, _ := ctx.Value(ctxKey{}).(suppressed)
	_, ok := set[model]
	return ok
}

// Run calls fn with a context suppressing model. The suppression ends when
// fn returns or panics, since it only lives in the derived context.
func Run(ctx context.Context, model string, fn func(ctx context.Context) error) error {
	return fn(WithoutAutoIndex(ctx, model))
}
