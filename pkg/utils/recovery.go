package utils

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"gitlab.com/timkado/api/daisi-wa-support-console/pkg/logger"
	"go.uber.org/zap"
)

// RecoverFn is a function that handles a recovered panic
type RecoverFn func(r interface{}, stack []byte)

// SafeGo runs fn in its own goroutine. A panic inside fn is recovered and
// handed to onPanic, or logged when onPanic is nil.
func SafeGo(fn func(), onPanic RecoverFn) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				if onPanic != nil {
					onPanic(r, stack)
					return
				}
				logPanic(context.Background(), "goroutine", r, stack)
			}
		}()
		fn()
	}()
}

// RecoverWithLog is meant to be deferred; it swallows a panic and logs it.
func RecoverWithLog(ctx context.Context, operation string) {
	if r := recover(); r != nil {
		logPanic(ctx, operation, r, debug.Stack())
	}
}

// WrapWithContextRecovery converts a panic inside fn into an error.
func WrapWithContextRecovery(fn func(ctx context.Context, body []byte) error) func(ctx context.Context, body []byte) error {
	return func(ctx context.Context, body []byte) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(ctx, "wrapped call", r, debug.Stack())
				err = fmt.Errorf("panic recovered: %v", r)
			}
		}()
		return fn(ctx, body)
	}
}

func logPanic(ctx context.Context, operation string, r interface{}, stack []byte) {
	if logger.Log == nil {
		fmt.Fprintf(os.Stderr, "[PANIC] recovered during %s: %v\n%s\n", operation, r, stack)
		return
	}
	logger.FromContext(ctx).Error(fmt.Sprintf("[panic] Recovered from panic during %s", operation),
		zap.Any("panic", r),
		zap.ByteString("stack", stack),
	)
}
