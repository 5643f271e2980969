package access

import (
	"context"
	"fmt"
	"time"
)

// Query runs fn with a deadline of timeout and returns when fn finishes or
// the deadline passes, whichever is first. A backend that ignores its
// context is left to finish on its own; its result is discarded.
// Panics inside fn are returned as errors.
func Query[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return call(ctx, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := call(ctx, fn)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}

func call[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("access: query panic: %v", r)
		}
	}()
	return fn(ctx)
}
