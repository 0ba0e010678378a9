package utils

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError is a recovered panic turned into an error.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func asPanicError(v any) *PanicError {
	pe := &PanicError{Value: v, StackTrace: string(debug.Stack())}
	slog.Error("recovered from panic", "panic", v, "stack", pe.StackTrace)
	return pe
}

// RecoverAsError must be deferred directly by a function with a named error
// result; a panic replaces that result with a *PanicError.
func RecoverAsError(errPtr *error) {
	if v := recover(); v != nil {
		*errPtr = asPanicError(v)
	}
}

// SafeGo runs fn on a new goroutine. A panic is logged and, if onError is
// set, reported to it.
func SafeGo(fn func(), onError func(error)) {
	go func() {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if err := asPanicError(v); onError != nil {
				onError(err)
			}
		}()
		fn()
	}()
}
