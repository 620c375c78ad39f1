// Package groutine starts goroutines labelled for pprof and debugging.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a goroutine carrying the pprof label goroutine_name=name.
// The name is also retrievable from the context passed to fn.
// If parentCtx is nil, context.Background() is used.
//
//	groutine.Go(ctx, "ble-link-monitor", func(ctx context.Context) {
//	    <-ctx.Done()
//	})
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		fn(context.WithValue(ctx, goroutineNameKey, name))
	})
}

// Name returns the name given to Go, or "" outside such a goroutine.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(goroutineNameKey).(string)
	return name
}
