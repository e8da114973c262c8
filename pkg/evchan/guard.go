package evchan

import (
	"fmt"
	"runtime/debug"
)

// PanicError is returned by a Recover-wrapped listener that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("listener panicked: %v", e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recover wraps l so that a panic is returned as a *PanicError instead of
// unwinding through Fire. Later listeners are still skipped, as with any
// other listener error.
func Recover[T any](l Listener[T]) Listener[T] {
	return func(payload T) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		return l(payload)
	}
}

// Contain wraps l so that its errors and panics are passed to handle and
// never stop the firing. A nil handle discards them.
func Contain[T any](l Listener[T], handle func(err error)) Listener[T] {
	guarded := Recover(l)
	return func(payload T) error {
		if err := guarded(payload); err != nil && handle != nil {
			handle(err)
		}
		return nil
	}
}
