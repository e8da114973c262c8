// Package evlog connects evchan listeners to zerolog.
package evlog

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/telnet2/evchan/pkg/evchan"
)

// Contain wraps l so that its errors and panics are logged at error level
// instead of stopping the firing.
func Contain[T any](logger zerolog.Logger, name string, l evchan.Listener[T]) evchan.Listener[T] {
	return evchan.Contain(l, func(err error) {
		ev := logger.Error().Err(err).Str("listener", name)

		var pe *evchan.PanicError
		if errors.As(err, &pe) {
			ev = ev.Bool("panic", true).Bytes("stack", pe.Stack)
		}
		ev.Msg("listener failed")
	})
}

// Trace registers a listener on s that logs every firing at debug level.
// Registration order applies, so trace before adding other listeners to log
// firings that fail part way.
func Trace[T any](logger zerolog.Logger, name string, s evchan.Subscribable[T]) {
	s.AddListener(evchan.Func(func(payload T) {
		logger.Debug().
			Str("channel", name).
			Interface("payload", payload).
			Msg("channel fired")
	}))
}
