// Package panicerr converts panics in caller supplied callbacks into errors.
package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// SafeContext wraps fn so that a panic is returned as an error.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := SafeValue(func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		})(ctx)
		return err
	}
}

// SafeValue is SafeContext for callbacks that also produce a value. On panic
// the zero value is returned alongside the recovered error.
func SafeValue[T any](fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var (
			catcher panics.Catcher
			v       T
			err     error
		)
		catcher.Try(func() {
			v, err = fn(ctx)
		})
		if r := catcher.Recovered(); r != nil {
			var zero T
			return zero, r.AsError()
		}
		return v, err
	}
}
