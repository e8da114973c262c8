/*
Package evchan provides a minimal, generic event channel: a list of listeners that are notified,
in registration order, every time the channel fires.

A channel is exposed through two capability views over the same listener registry:

  - Subscribable[T] lets a holder register listeners and passthroughs. It cannot fire.
  - Triggerable[T] embeds Subscribable[T] and adds Fire.

Producers keep the Triggerable; consumers get a Subscribable. Use ReadOnly when the Subscribable
handed out must not be convertible back into a Triggerable with a type assertion.

# Basic Usage

	created := evchan.New[*Order]()

	created.AddListener(evchan.Func(func(o *Order) {
	    fmt.Println("order created", o.ID)
	}))

	if err := created.Fire(order); err != nil {
	    return err
	}

# Passthrough

AddPassthroughListener relays every firing of one channel into another channel of the same
payload type. The relay is an ordinary listener (the target's Fire method value), so it runs in
its registration slot like any other listener:

	audit := evchan.New[*Order]()
	created.AddPassthroughListener(audit)

# Dispatch Semantics

Fire runs synchronously on the calling goroutine:

  - Listeners run in the order they were registered. A listener registered twice runs twice.
  - Every listener receives the same payload value.
  - The first listener returning a non-nil error stops the firing. Later listeners are skipped and
    Fire returns that error unchanged.
  - Panics are not recovered and unwind through Fire.
  - The listener list is snapshotted when Fire starts. Listeners added during a firing take part
    from the next firing on.

The channel never logs, retries, or isolates listeners. Wrap a listener with Recover or Contain
(or evlog.Contain) to opt into fault containment.

# Thread Safety

Registration and firing may be called from any goroutine. Listeners are invoked with no lock
held, so they may register listeners or fire channels (including their own) reentrantly. Order is
guaranteed within one firing; concurrent firings of the same channel may interleave.

There is no way to remove a listener.
*/
package evchan
