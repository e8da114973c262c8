// Package event provides a typed event bus built on evchan channels, mirrored to watermill.
package event

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"
	"github.com/telnet2/evchan/pkg/evchan"
)

// EventType represents the type of event.
type EventType string

const (
	TopologyLoaded  EventType = "topology.loaded"
	TopologyChanged EventType = "topology.changed"
	ChannelFired    EventType = "channel.fired"
	ListenerFailed  EventType = "listener.failed"
)

// Event represents an event to be published.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// Subscriber is a function that receives events.
// A returned error stops delivery of that event and is returned by Publish.
type Subscriber = evchan.Listener[Event]

// Bus routes events to per-type channels. Every per-type channel relays into
// a single "all" channel through a passthrough, so SubscribeAll subscribers
// run after the subscribers of the event's own type.
type Bus struct {
	mu     sync.Mutex
	topics map[EventType]evchan.Triggerable[Event]
	all    evchan.Triggerable[Event]

	// Watermill pub/sub used as the default Mirror target.
	pubsub *gochannel.GoChannel
	closed bool
}

// defaultBus is the process-wide bus behind the package-level functions.
var defaultBus atomic.Pointer[Bus]

func init() {
	defaultBus.Store(newBus())
}

// Default returns the process-wide bus.
func Default() *Bus {
	return defaultBus.Load()
}

func newBus() *Bus {
	return &Bus{
		topics: make(map[EventType]evchan.Triggerable[Event]),
		all:    evchan.New[Event](),
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
	}
}

// NewBus creates a new event bus instance.
func NewBus() *Bus {
	return newBus()
}

// topic returns the channel for eventType, creating it on first use.
func (b *Bus) topic(eventType EventType) evchan.Triggerable[Event] {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.topics[eventType]
	if !ok {
		ch = evchan.New[Event]()
		ch.AddPassthroughListener(b.all)
		b.topics[eventType] = ch
	}
	return ch
}

// Subscribe registers fn for events of eventType.
func Subscribe(eventType EventType, fn Subscriber) {
	Default().Subscribe(eventType, fn)
}

func (b *Bus) Subscribe(eventType EventType, fn Subscriber) {
	b.topic(eventType).AddListener(fn)
}

// SubscribeAll registers fn for every event.
func SubscribeAll(fn Subscriber) {
	Default().SubscribeAll(fn)
}

func (b *Bus) SubscribeAll(fn Subscriber) {
	b.all.AddListener(fn)
}

// Topic returns a read-only view of the channel for eventType, for callers
// that want to chain it into their own channels.
func (b *Bus) Topic(eventType EventType) evchan.Subscribable[Event] {
	return evchan.ReadOnly[Event](b.topic(eventType))
}

// Publish delivers an event synchronously: first to the subscribers of its
// type, then to SubscribeAll subscribers, each group in registration order.
// ID and Time are filled in when empty.
func Publish(e Event) error {
	return Default().Publish(e)
}

func (b *Bus) Publish(e Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil
	}

	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	return b.topic(e.Type).Fire(e)
}

// Mirror forwards every event to pub as a JSON message on a topic named after
// the event type. A publish failure is returned by Publish like any other
// subscriber error.
func (b *Bus) Mirror(pub message.Publisher) {
	b.SubscribeAll(func(e Event) error {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", e.Type, err)
		}

		id := e.ID
		if id == "" {
			id = watermill.NewUUID()
		}
		msg := message.NewMessage(id, payload)
		msg.Metadata.Set("type", string(e.Type))

		if err := pub.Publish(string(e.Type), msg); err != nil {
			return fmt.Errorf("mirror %s event: %w", e.Type, err)
		}
		return nil
	})
}

// Mirror forwards every event of the process-wide bus to pub.
func Mirror(pub message.Publisher) {
	Default().Mirror(pub)
}

// Reset installs a fresh process-wide bus and closes the previous one. Every
// CLI command starts from a reset bus.
func Reset() *Bus {
	old := defaultBus.Swap(newBus())
	if old != nil {
		_ = old.Close()
	}
	return Default()
}

// Close stops publishing and closes the watermill pub/sub. Subscriptions are
// kept, but Publish becomes a no-op.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub returns the underlying watermill GoChannel.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}

// PubSub returns the process-wide bus's underlying watermill GoChannel.
func PubSub() *gochannel.GoChannel {
	return Default().PubSub()
}
