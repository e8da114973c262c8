package topology_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/telnet2/evchan/internal/event"
	"github.com/telnet2/evchan/internal/topology"
	"github.com/telnet2/evchan/pkg/evchan"
)

func channel(name string, listeners ...topology.ListenerConfig) topology.ChannelConfig {
	return topology.ChannelConfig{Name: name, Listeners: listeners}
}

func rec(name string) topology.ListenerConfig {
	return topology.ListenerConfig{Name: name}
}

func pass(to string) topology.ListenerConfig {
	return topology.ListenerConfig{Kind: topology.KindPassthrough, To: to}
}

func deliveredTo(deliveries []topology.Delivery) []string {
	out := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, d.Channel+"."+d.Listener)
	}
	return out
}

var _ = Describe("Graph", func() {
	build := func(channels ...topology.ChannelConfig) *topology.Graph {
		g, err := topology.Build(&topology.Config{Channels: channels})
		Expect(err).NotTo(HaveOccurred())
		return g
	}

	It("delivers in registration order with the same payload", func() {
		g := build(channel("e", rec("a"), rec("b"), rec("c")))

		deliveries, err := g.Fire("e", "42")
		Expect(err).NotTo(HaveOccurred())
		Expect(deliveredTo(deliveries)).To(Equal([]string{"e.a", "e.b", "e.c"}))
		for _, d := range deliveries {
			Expect(d.Payload).To(Equal("42"))
			Expect(d.Failed).To(BeFalse())
		}
	})

	It("invokes repeated listeners once per registration", func() {
		g := build(channel("e", topology.ListenerConfig{Name: "a", Repeat: 2}))

		deliveries, err := g.Fire("e", "x")
		Expect(err).NotTo(HaveOccurred())
		Expect(deliveredTo(deliveries)).To(Equal([]string{"e.a", "e.a"}))
	})

	It("treats firing a channel without listeners as a no-op", func() {
		g := build(channel("empty"))

		deliveries, err := g.Fire("empty", "x")
		Expect(err).NotTo(HaveOccurred())
		Expect(deliveries).To(BeEmpty())
	})

	It("stops at the first failing listener", func() {
		g := build(channel("e",
			rec("a"),
			topology.ListenerConfig{Name: "failing", Kind: topology.KindFail},
			rec("c"),
		))

		deliveries, err := g.Fire("e", "42")
		Expect(err).To(MatchError(&topology.ListenerError{Channel: "e", Listener: "failing"}))
		Expect(deliveredTo(deliveries)).To(Equal([]string{"e.a", "e.failing"}))
		Expect(deliveries[1].Failed).To(BeTrue())
	})

	It("forwards through passthroughs in registration slot order", func() {
		g := build(
			channel("a", rec("first"), pass("b"), rec("last")),
			channel("b", rec("listener")),
		)

		deliveries, err := g.Fire("a", "x")
		Expect(err).NotTo(HaveOccurred())
		Expect(deliveredTo(deliveries)).To(Equal([]string{"a.first", "b.listener", "a.last"}))
	})

	It("expands passthrough patterns in declaration order", func() {
		g := build(
			channel("in", pass("out/*")),
			channel("out/b", rec("l")),
			channel("other", rec("l")),
			channel("out/a", rec("l")),
		)

		deliveries, err := g.Fire("in", "x")
		Expect(err).NotTo(HaveOccurred())
		Expect(deliveredTo(deliveries)).To(Equal([]string{"out/b.l", "out/a.l"}))
	})

	It("propagates a failure from a passthrough target", func() {
		g := build(
			channel("a", pass("b"), rec("after")),
			channel("b", topology.ListenerConfig{Name: "bad", Kind: topology.KindFail}),
		)

		deliveries, err := g.Fire("a", "x")
		var le *topology.ListenerError
		Expect(err).To(BeAssignableToTypeOf(le))
		Expect(deliveredTo(deliveries)).To(Equal([]string{"b.bad"}))
	})

	It("lets panics escape unless recovering", func() {
		cfg := &topology.Config{Channels: []topology.ChannelConfig{
			channel("e", topology.ListenerConfig{Name: "boom", Kind: topology.KindPanic}, rec("after")),
		}}

		g, err := topology.Build(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(func() { _, _ = g.Fire("e", "x") }).To(PanicWith(ContainSubstring("boom")))

		g, err = topology.Build(cfg, topology.WithRecover())
		Expect(err).NotTo(HaveOccurred())
		deliveries, err := g.Fire("e", "x")
		var pe *evchan.PanicError
		Expect(err).To(BeAssignableToTypeOf(pe))
		Expect(deliveredTo(deliveries)).To(Equal([]string{"e.boom"}))
	})

	It("starts each firing with a fresh delivery list", func() {
		g := build(channel("e", rec("a")))

		_, err := g.Fire("e", "1")
		Expect(err).NotTo(HaveOccurred())
		deliveries, err := g.Fire("e", "2")
		Expect(err).NotTo(HaveOccurred())
		Expect(deliveries).To(HaveLen(1))
		Expect(deliveries[0].Payload).To(Equal("2"))
	})

	It("rejects unknown channels with a suggestion", func() {
		g := build(channel("orders", rec("a")))

		_, err := g.Fire("ordres", "x")
		Expect(err).To(MatchError(`unknown channel "ordres" (did you mean "orders"?)`))
	})

	It("refuses invalid configs", func() {
		_, err := topology.Build(&topology.Config{Channels: []topology.ChannelConfig{
			channel("a", pass("a")),
		}})
		Expect(err).To(MatchError(ContainSubstring("passthrough cycle")))
	})

	It("exposes read-only channels", func() {
		g := build(channel("a", rec("x")), channel("b"))
		Expect(g.Names()).To(Equal([]string{"a", "b"}))

		view, ok := g.Channel("a")
		Expect(ok).To(BeTrue())
		_, canFire := view.(evchan.Triggerable[string])
		Expect(canFire).To(BeFalse())

		var seen []string
		view.AddListener(evchan.Func(func(p string) { seen = append(seen, p) }))
		_, err := g.Fire("a", "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal([]string{"hi"}))

		_, ok = g.Channel("missing")
		Expect(ok).To(BeFalse())
	})

	It("traces firings to the logger", func() {
		var buf bytes.Buffer
		logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

		g, err := topology.Build(&topology.Config{Channels: []topology.ChannelConfig{
			channel("a", rec("x")),
		}}, topology.WithLogger(logger))
		Expect(err).NotTo(HaveOccurred())

		_, err = g.Fire("a", "traced-payload")
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring(`"channel":"a"`))
		Expect(buf.String()).To(ContainSubstring("traced-payload"))
	})

	Describe("with a bus", func() {
		var (
			bus    *event.Bus
			events []event.Event
		)

		BeforeEach(func() {
			bus = event.NewBus()
			events = nil
			bus.SubscribeAll(func(e event.Event) error {
				events = append(events, e)
				return nil
			})
		})

		AfterEach(func() {
			Expect(bus.Close()).To(Succeed())
		})

		It("publishes channel.fired", func() {
			g, err := topology.Build(&topology.Config{Channels: []topology.ChannelConfig{
				channel("a", rec("x"), rec("y")),
			}}, topology.WithBus(bus))
			Expect(err).NotTo(HaveOccurred())

			_, err = g.Fire("a", "p")
			Expect(err).NotTo(HaveOccurred())

			Expect(events).To(HaveLen(1))
			Expect(events[0].Type).To(Equal(event.ChannelFired))
			Expect(events[0].Data).To(Equal(event.ChannelFiredData{Channel: "a", Payload: "p", Deliveries: 2}))
		})

		It("publishes listener.failed before channel.fired", func() {
			g, err := topology.Build(&topology.Config{Channels: []topology.ChannelConfig{
				channel("a", pass("b")),
				channel("b", topology.ListenerConfig{Name: "bad", Kind: topology.KindFail}),
			}}, topology.WithBus(bus))
			Expect(err).NotTo(HaveOccurred())

			_, err = g.Fire("a", "p")
			Expect(err).To(HaveOccurred())

			Expect(events).To(HaveLen(2))
			Expect(events[0].Type).To(Equal(event.ListenerFailed))
			Expect(events[0].Data).To(Equal(event.ListenerFailedData{
				Channel:  "b",
				Listener: "bad",
				Error:    err.Error(),
			}))
			Expect(events[1].Type).To(Equal(event.ChannelFired))
			Expect(events[1].Data.(event.ChannelFiredData).Error).To(Equal(err.Error()))
		})

		It("reports recovered panics as listener failures", func() {
			g, err := topology.Build(&topology.Config{Channels: []topology.ChannelConfig{
				channel("a", topology.ListenerConfig{Name: "boom", Kind: topology.KindPanic}),
			}}, topology.WithBus(bus), topology.WithRecover())
			Expect(err).NotTo(HaveOccurred())

			_, err = g.Fire("a", "p")
			Expect(err).To(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0].Data.(event.ListenerFailedData).Listener).To(Equal("boom"))
		})
	})
})
