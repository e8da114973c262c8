package topology

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/telnet2/evchan/internal/event"
	"github.com/telnet2/evchan/pkg/evchan"
	"github.com/telnet2/evchan/pkg/evchan/evlog"
)

// Delivery is one listener invocation observed during a firing.
type Delivery struct {
	Channel  string `json:"channel"`
	Listener string `json:"listener"`
	Payload  string `json:"payload"`
	Failed   bool   `json:"failed,omitempty"`
}

// ListenerError is returned by fail listeners.
type ListenerError struct {
	Channel  string
	Listener string
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %q on channel %q failed", e.Listener, e.Channel)
}

// Graph is a built topology: one evchan channel per configured channel.
type Graph struct {
	// mu serializes Fire so recorded deliveries belong to a single firing.
	mu         sync.Mutex
	names      []string
	channels   map[string]evchan.Triggerable[string]
	deliveries []Delivery

	recover bool
	bus     *event.Bus
	logger  zerolog.Logger
}

// Option configures Build.
type Option func(*Graph)

// WithRecover turns listener panics into *evchan.PanicError results.
func WithRecover() Option {
	return func(g *Graph) { g.recover = true }
}

// WithBus publishes channel.fired and listener.failed events to bus.
func WithBus(bus *event.Bus) Option {
	return func(g *Graph) { g.bus = bus }
}

// WithLogger sets the logger. Firings are traced at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Graph) { g.logger = logger }
}

// Build validates cfg and wires its channels. All channels are created
// before any listener is registered, so passthroughs may point forward.
func Build(cfg *Config, opts ...Option) (*Graph, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	g := &Graph{
		names:    cfg.ChannelNames(),
		channels: make(map[string]evchan.Triggerable[string], len(cfg.Channels)),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, name := range g.names {
		g.channels[name] = evchan.New[string]()
	}

	for _, ch := range cfg.Channels {
		src := g.channels[ch.Name]
		evlog.Trace(g.logger, ch.Name, src)

		for _, l := range ch.Listeners {
			for i := 0; i < l.times(); i++ {
				if l.kind() == KindPassthrough {
					for _, target := range matchNames(l.To, g.names) {
						src.AddPassthroughListener(g.channels[target])
					}
					continue
				}
				src.AddListener(g.listener(ch.Name, l))
			}
		}
	}

	g.logger.Debug().Strs("channels", g.names).Msg("topology built")
	return g, nil
}

func (g *Graph) listener(channel string, l ListenerConfig) evchan.Listener[string] {
	record := func(payload string, failed bool) {
		g.deliveries = append(g.deliveries, Delivery{
			Channel:  channel,
			Listener: l.Name,
			Payload:  payload,
			Failed:   failed,
		})
	}

	var fn evchan.Listener[string]
	switch l.kind() {
	case KindFail:
		fn = func(payload string) error {
			record(payload, true)
			return &ListenerError{Channel: channel, Listener: l.Name}
		}
	case KindPanic:
		fn = evchan.Func(func(payload string) {
			record(payload, true)
			panic(fmt.Sprintf("listener %q on channel %q panicked", l.Name, channel))
		})
	default:
		fn = evchan.Func(func(payload string) {
			record(payload, false)
		})
	}

	if g.recover {
		fn = evchan.Recover(fn)
	}
	return fn
}

// Names returns the channel names in declaration order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.names...)
}

// Channel returns a read-only view of the named channel.
func (g *Graph) Channel(name string) (evchan.Subscribable[string], bool) {
	ch, ok := g.channels[name]
	if !ok {
		return nil, false
	}
	return evchan.ReadOnly[string](ch), true
}

// Fire fires the named channel once and returns the deliveries made, in
// order, together with the firing's error. Without WithRecover a panicking
// listener panics out of Fire.
func (g *Graph) Fire(channel, payload string) ([]Delivery, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.channels[channel]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q%s", channel, suggest(channel, g.names))
	}

	g.deliveries = nil
	err := ch.Fire(payload)
	deliveries := g.deliveries
	g.deliveries = nil

	if err != nil {
		g.logger.Debug().Err(err).Str("channel", channel).Msg("firing stopped")
	}
	g.publish(channel, payload, deliveries, err)

	return deliveries, err
}

func (g *Graph) publish(channel, payload string, deliveries []Delivery, fireErr error) {
	if g.bus == nil {
		return
	}

	var events []event.Event
	var le *ListenerError
	var pe *evchan.PanicError
	switch {
	case errors.As(fireErr, &le):
		events = append(events, failedEvent(le.Channel, le.Listener, fireErr))
	case errors.As(fireErr, &pe) && len(deliveries) > 0:
		last := deliveries[len(deliveries)-1]
		events = append(events, failedEvent(last.Channel, last.Listener, fireErr))
	}

	fired := event.ChannelFiredData{
		Channel:    channel,
		Payload:    payload,
		Deliveries: len(deliveries),
	}
	if fireErr != nil {
		fired.Error = fireErr.Error()
	}
	events = append(events, event.Event{Type: event.ChannelFired, Data: fired})

	for _, e := range events {
		if err := g.bus.Publish(e); err != nil {
			g.logger.Warn().Err(err).Str("type", string(e.Type)).Msg("event subscriber failed")
		}
	}
}

func failedEvent(channel, listener string, err error) event.Event {
	return event.Event{
		Type: event.ListenerFailed,
		Data: event.ListenerFailedData{
			Channel:  channel,
			Listener: listener,
			Error:    err.Error(),
		},
	}
}
