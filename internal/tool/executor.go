package tool

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Executor invokes registered tools with uniform failure handling. Whatever
// the handler does, Invoke returns a Result: recognized failures become
// classified tool errors, unrecognized ones become PROVIDER_ERROR, and
// panics are contained. The only raised error is ErrNotRegistered.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Invoke runs the named tool and always stamps execution metadata onto the
// returned result, overwriting anything partial the handler set.
func (e *Executor) Invoke(ctx context.Context, name string, payload map[string]any) (*Result, error) {
	reg, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}

	start := time.Now()
	finish := func(res *Result) *Result {
		res.Meta = Meta{
			Tool:       name,
			DurationMs: float64(time.Since(start).Microseconds()) / 1000,
			ItemCount:  len(res.Items),
		}
		return res
	}

	if reg.ValidateInput != nil {
		if err := reg.ValidateInput(payload); err != nil {
			return finish(failureResult(name, classify(ctx, err))), nil
		}
	}

	res, err := e.call(ctx, reg, payload)
	if err != nil {
		return finish(failureResult(name, classify(ctx, err))), nil
	}
	if res == nil {
		res = &Result{}
	}
	return finish(res), nil
}

// call wraps the handler so a panic is converted into a failure instead of
// unwinding through the pipeline.
func (e *Executor) call(ctx context.Context, reg Registration, payload map[string]any) (res *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = NewFailure(CodeProviderError, "tool panicked: %v", rec)
		}
	}()
	return reg.Handler(ctx, payload)
}

// classify maps any error to a Failure. Known failures pass through;
// context cancellation maps to TIMEOUT; everything else is PROVIDER_ERROR.
func classify(ctx context.Context, err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return NewFailure(CodeTimeout, "%v", err)
	}
	return &Failure{
		Code:    CodeProviderError,
		Message: fmt.Sprintf("unexpected error: %v", err),
		Context: map[string]string{"error_type": fmt.Sprintf("%T", err)},
	}
}

func failureResult(name string, f *Failure) *Result {
	return &Result{
		Errors: []Error{{
			Tool:      name,
			Code:      f.Code,
			Message:   f.Message,
			Retryable: f.Code.Retryable(),
			Context:   f.Context,
		}},
	}
}
