package topology_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/telnet2/evchan/internal/topology"
)

const ordersYAML = `
channels:
  - name: orders/created
    listeners:
      - name: ship
      - kind: passthrough
        to: audit
      - name: notify
        repeat: 2
  - name: audit
    listeners:
      - name: store
`

const ordersJSONC = `{
  // same topology, JSON with comments
  "channels": [
    {"name": "orders/created", "listeners": [
      {"name": "ship"},
      {"kind": "passthrough", "to": "audit"},
      {"name": "notify", "repeat": 2}
    ]},
    {"name": "audit", "listeners": [{"name": "store"}]}
  ]
}`

var _ = Describe("Config", func() {
	var fs afero.Fs

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
	})

	Describe("Load", func() {
		DescribeTable("parses supported formats",
			func(path, content string) {
				Expect(afero.WriteFile(fs, path, []byte(content), 0644)).To(Succeed())

				cfg, err := topology.Load(fs, path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.ChannelNames()).To(Equal([]string{"orders/created", "audit"}))

				listeners := cfg.Channels[0].Listeners
				Expect(listeners).To(HaveLen(3))
				Expect(listeners[1].Kind).To(Equal(topology.KindPassthrough))
				Expect(listeners[1].To).To(Equal("audit"))
				Expect(listeners[2].Repeat).To(Equal(2))
			},
			Entry("yaml", "/t/orders.yaml", ordersYAML),
			Entry("yml", "/t/orders.yml", ordersYAML),
			Entry("jsonc", "/t/orders.jsonc", ordersJSONC),
			Entry("json with comments", "/t/orders.json", ordersJSONC),
		)

		It("rejects unknown fields", func() {
			content := "channels:\n  - name: a\n    priority: 3\n"
			Expect(afero.WriteFile(fs, "/t/a.yaml", []byte(content), 0644)).To(Succeed())

			_, err := topology.Load(fs, "/t/a.yaml")
			Expect(err).To(MatchError(ContainSubstring("priority")))
		})

		It("rejects unsupported extensions", func() {
			Expect(afero.WriteFile(fs, "/t/a.toml", []byte("x = 1"), 0644)).To(Succeed())

			_, err := topology.Load(fs, "/t/a.toml")
			Expect(err).To(MatchError(ContainSubstring(`unsupported topology format ".toml"`)))
		})

		It("returns read errors", func() {
			_, err := topology.Load(fs, "/t/missing.yaml")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Validate", func() {
		problems := func(cfg *topology.Config) []string {
			err := topology.Validate(cfg)
			Expect(err).To(HaveOccurred())
			var ve *topology.ValidationError
			Expect(err).To(BeAssignableToTypeOf(ve))
			return err.(*topology.ValidationError).Problems
		}

		It("accepts a valid config", func() {
			cfg, err := topology.Parse([]byte(ordersYAML), ".yaml")
			Expect(err).NotTo(HaveOccurred())
			Expect(topology.Validate(cfg)).To(Succeed())
		})

		It("requires at least one channel", func() {
			Expect(problems(&topology.Config{})).To(ContainElement(ContainSubstring("channels is required")))
			Expect(problems(nil)).To(ConsistOf("config is empty"))
		})

		It("reports field problems by path", func() {
			cfg := &topology.Config{Channels: []topology.ChannelConfig{{
				Name: "a",
				Listeners: []topology.ListenerConfig{
					{Kind: topology.KindRecord},
					{Name: "x", Kind: "shout"},
					{Kind: topology.KindPassthrough},
					{Name: "y", Repeat: -1},
				},
			}}}

			Expect(problems(cfg)).To(ConsistOf(
				"channels[0].listeners[0].name is required unless the listener is a passthrough",
				`channels[0].listeners[1].kind must be one of [record fail panic passthrough], got "shout"`,
				"channels[0].listeners[2].to is required for passthrough listeners",
				"channels[0].listeners[3].repeat must be >= 0",
			))
		})

		It("rejects duplicate channel names", func() {
			cfg := &topology.Config{Channels: []topology.ChannelConfig{{Name: "a"}, {Name: "a"}}}
			Expect(problems(cfg)).To(ConsistOf(`channel "a" declared more than once`))
		})

		It("suggests a close name for passthroughs that match nothing", func() {
			cfg := &topology.Config{Channels: []topology.ChannelConfig{
				{Name: "orders", Listeners: []topology.ListenerConfig{{Kind: topology.KindPassthrough, To: "adit"}}},
				{Name: "audit"},
			}}
			Expect(problems(cfg)).To(ConsistOf(
				`channel "orders": passthrough "adit" matches no channel (did you mean "audit"?)`,
			))
		})

		It("does not suggest distant names", func() {
			cfg := &topology.Config{Channels: []topology.ChannelConfig{
				{Name: "orders", Listeners: []topology.ListenerConfig{{Kind: topology.KindPassthrough, To: "zzzzzzzz"}}},
			}}
			Expect(problems(cfg)).To(ConsistOf(`channel "orders": passthrough "zzzzzzzz" matches no channel`))
		})

		It("rejects malformed patterns", func() {
			cfg := &topology.Config{Channels: []topology.ChannelConfig{
				{Name: "a", Listeners: []topology.ListenerConfig{{Kind: topology.KindPassthrough, To: "b/["}}},
			}}
			Expect(problems(cfg)).To(ConsistOf(`channel "a": bad passthrough pattern "b/["`))
		})

		It("rejects passthrough cycles", func() {
			cfg := &topology.Config{Channels: []topology.ChannelConfig{
				{Name: "a", Listeners: []topology.ListenerConfig{{Kind: topology.KindPassthrough, To: "b"}}},
				{Name: "b", Listeners: []topology.ListenerConfig{{Kind: topology.KindPassthrough, To: "c"}}},
				{Name: "c", Listeners: []topology.ListenerConfig{{Kind: topology.KindPassthrough, To: "a"}}},
			}}
			Expect(problems(cfg)).To(ConsistOf("passthrough cycle: a -> b -> c -> a"))
		})

		It("rejects a channel relaying into itself", func() {
			cfg := &topology.Config{Channels: []topology.ChannelConfig{
				{Name: "loop/a", Listeners: []topology.ListenerConfig{{Kind: topology.KindPassthrough, To: "loop/*"}}},
			}}
			Expect(problems(cfg)).To(ConsistOf("passthrough cycle: loop/a -> loop/a"))
		})
	})

	Describe("LoadWithRetry", func() {
		It("waits for a file that appears shortly", func() {
			go func() {
				defer GinkgoRecover()
				time.Sleep(60 * time.Millisecond)
				Expect(afero.WriteFile(fs, "/t/late.yaml", []byte(ordersYAML), 0644)).To(Succeed())
			}()

			cfg, err := topology.LoadWithRetry(fs, "/t/late.yaml", 3*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Channels).To(HaveLen(2))
		})

		It("gives up after the deadline", func() {
			_, err := topology.LoadWithRetry(fs, "/t/never.yaml", 100*time.Millisecond)
			Expect(err).To(HaveOccurred())
		})

		It("does not retry validation failures", func() {
			content := "channels:\n  - name: a\n  - name: a\n"
			Expect(afero.WriteFile(fs, "/t/dup.yaml", []byte(content), 0644)).To(Succeed())

			start := time.Now()
			_, err := topology.LoadWithRetry(fs, "/t/dup.yaml", 10*time.Second)
			Expect(err).To(MatchError(ContainSubstring("declared more than once")))
			Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
		})
	})
})
