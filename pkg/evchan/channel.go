package evchan

import "sync"

// Listener receives the payload of one firing.
// A non-nil error stops the firing it was called from.
type Listener[T any] func(payload T) error

// Func adapts a function that cannot fail into a Listener.
func Func[T any](fn func(payload T)) Listener[T] {
	return func(payload T) error {
		fn(payload)
		return nil
	}
}

// Subscribable is the observing side of a channel.
type Subscribable[T any] interface {
	// AddListener appends l to the channel's listeners. It is invoked on every
	// firing that starts after AddListener returns.
	AddListener(l Listener[T])

	// AddPassthroughListener relays every firing of this channel into target.
	AddPassthroughListener(target Triggerable[T])
}

// Triggerable is the producing side of a channel. It is also a Subscribable.
type Triggerable[T any] interface {
	Subscribable[T]

	// Fire invokes every listener, in registration order, with payload.
	// It returns the first listener error unchanged, skipping the rest.
	Fire(payload T) error
}

// channel is the only implementation of both views.
type channel[T any] struct {
	mu        sync.RWMutex
	listeners []Listener[T]
}

// New creates an empty channel for payloads of type T.
func New[T any]() Triggerable[T] {
	return &channel[T]{}
}

func (c *channel[T]) AddListener(l Listener[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = append(c.listeners, l)
}

func (c *channel[T]) AddPassthroughListener(target Triggerable[T]) {
	c.AddListener(target.Fire)
}

func (c *channel[T]) Fire(payload T) error {
	// The registry only grows and entries are never overwritten, so a capped
	// reslice is a stable snapshot: later appends land beyond its length.
	c.mu.RLock()
	n := len(c.listeners)
	snapshot := c.listeners[:n:n]
	c.mu.RUnlock()

	for _, l := range snapshot {
		if err := l(payload); err != nil {
			return err
		}
	}
	return nil
}

// readOnly hides Fire from the channel it wraps.
type readOnly[T any] struct {
	s Subscribable[T]
}

// ReadOnly returns a view of s that only allows registration. Unlike a plain
// interface conversion, the result cannot be type-asserted back into a
// Triggerable.
func ReadOnly[T any](s Subscribable[T]) Subscribable[T] {
	if ro, ok := s.(readOnly[T]); ok {
		return ro
	}
	return readOnly[T]{s: s}
}

func (r readOnly[T]) AddListener(l Listener[T]) {
	r.s.AddListener(l)
}

func (r readOnly[T]) AddPassthroughListener(target Triggerable[T]) {
	r.s.AddPassthroughListener(target)
}
