/*
Package event provides the typed application event bus used by the evchan tooling.

Each EventType owns an evchan channel, created on first use. Every per-type channel has a
passthrough into one shared "all" channel, so a published event reaches the subscribers of its
type first and then the SubscribeAll subscribers, each in registration order.

# Event Types

  - topology.loaded: a topology file was parsed and built
  - topology.changed: the watched topology file changed on disk
  - channel.fired: a topology channel was fired from the CLI
  - listener.failed: a topology listener failed during a firing

# Basic Usage

	bus := event.NewBus()
	defer bus.Close()

	bus.Subscribe(event.ChannelFired, func(e event.Event) error {
	    data := e.Data.(event.ChannelFiredData)
	    log.Info().Str("channel", data.Channel).Msg("fired")
	    return nil
	})

	err := bus.Publish(event.Event{
	    Type: event.ChannelFired,
	    Data: event.ChannelFiredData{Channel: "orders", Payload: "o-1"},
	})

Publish is synchronous and returns the first subscriber error, skipping the subscribers after it.
There is no unsubscribe.

# Integration with Watermill

Mirror forwards every event, JSON encoded, to a watermill message.Publisher on a topic named after
the event type. The bus carries a gochannel pub/sub that serves as the in-process target:

	bus.Mirror(bus.PubSub())
	messages, _ := bus.PubSub().Subscribe(ctx, string(event.ChannelFired))

# Testing

Reset replaces the package-level default bus.
*/
package event
