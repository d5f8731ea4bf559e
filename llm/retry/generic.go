package retry

import "context"

// DoWithResultTyped is a type-safe generic wrapper around Retryer.DoWithResult.
//
// Usage:
//
//	stream, err := retry.DoWithResultTyped(r, ctx, func() (llm.Stream, error) {
//	    return client.Execute(ctx, req)
//	})
func DoWithResultTyped[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	result, err := r.DoWithResult(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	if v, ok := result.(T); ok {
		return v, nil
	}
	return zero, nil
}
