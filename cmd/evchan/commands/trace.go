package commands

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/telnet2/evchan/internal/event"
	"github.com/telnet2/evchan/internal/history"
	"github.com/telnet2/evchan/internal/logging"
	"github.com/telnet2/evchan/internal/topology"
	"github.com/telnet2/evchan/internal/watch"
	"github.com/telnet2/evchan/pkg/evchan"
)

// Trace flags
var (
	traceRecover bool
	traceMirror  bool
	traceWatch   bool
	traceRecord  bool
)

const (
	reloadTimeout = 2 * time.Second
	mirrorTimeout = 500 * time.Millisecond
)

var traceCmd = &cobra.Command{
	Use:   "trace [file] <channel> <payload>",
	Short: "Fire a channel of a topology and print the deliveries",
	Long: `Build the channels described by a topology file, fire one of them with
the given payload and print every listener invocation in order.

Without a file argument the "topology" entry of evchan.json is used.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().BoolVar(&traceRecover, "recover", false, "Convert listener panics into errors")
	traceCmd.Flags().BoolVar(&traceMirror, "mirror", false, "Mirror bus events into the watermill pub/sub")
	traceCmd.Flags().BoolVar(&traceWatch, "watch", false, "Fire again whenever the topology file changes")
	traceCmd.Flags().BoolVar(&traceRecord, "record", false, "Save each firing to the run history")
}

func runTrace(cmd *cobra.Command, args []string) error {
	var file string
	if len(args) == 3 {
		file, args = args[0], args[1:]
	}
	path, err := topologyPath(file)
	if err != nil {
		return err
	}
	channel, payload := args[0], args[1]

	ctx := cmd.Context()

	logger := logging.ForComponent("trace")
	event.SubscribeAll(evchan.Func(func(e event.Event) {
		logger.Debug().Str("id", e.ID).Str("type", string(e.Type)).Interface("data", e.Data).Msg("event")
	}))

	var mirrored <-chan *message.Message
	if traceMirror || appConfig.MirrorEnabled() {
		mirrored, err = event.PubSub().Subscribe(ctx, string(event.ChannelFired))
		if err != nil {
			return fmt.Errorf("subscribe mirror: %w", err)
		}
		event.Mirror(event.PubSub())
	}

	t := &tracer{
		fs:       afero.NewOsFs(),
		path:     path,
		channel:  channel,
		payload:  payload,
		bus:      event.Default(),
		mirrored: mirrored,
		out:      newPrinter(cmd.OutOrStdout()),
	}
	if traceRecord {
		t.store = runStore()
	}

	if !traceWatch {
		return t.run()
	}
	return t.watch(ctx)
}

type tracer struct {
	fs       afero.Fs
	path     string
	channel  string
	payload  string
	bus      *event.Bus
	mirrored <-chan *message.Message
	store    *history.Store
	out      *printer
}

// run loads the topology, fires the channel once and prints the result.
func (t *tracer) run() error {
	cfg, err := topology.LoadWithRetry(t.fs, t.path, reloadTimeout)
	if err != nil {
		return err
	}
	if err := t.bus.Publish(event.Event{
		Type: event.TopologyLoaded,
		Data: event.TopologyLoadedData{Path: t.path, Channels: cfg.ChannelNames()},
	}); err != nil {
		return err
	}

	opts := []topology.Option{
		topology.WithBus(t.bus),
		topology.WithLogger(logging.ForComponent("topology")),
	}
	if traceRecover {
		opts = append(opts, topology.WithRecover())
	}
	g, err := topology.Build(cfg, opts...)
	if err != nil {
		return err
	}

	deliveries, fireErr := g.Fire(t.channel, t.payload)
	t.out.deliveries(deliveries, fireErr)

	if t.store != nil {
		if err := t.record(deliveries, fireErr); err != nil {
			return err
		}
	}

	if t.mirrored != nil {
		t.out.mirrored(receive(t.mirrored, 1, mirrorTimeout))
	}
	return fireErr
}

// watch runs once and then again after every change to the topology file,
// until ctx is done. Failed runs, panicking listeners included, are reported
// without stopping the loop.
func (t *tracer) watch(ctx context.Context) error {
	w, err := watch.NewWatcher(t.path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", t.path, err)
	}
	defer w.Stop()

	changes := make(chan watch.Change, 1)
	w.Changes().AddListener(func(c watch.Change) error {
		return t.bus.Publish(event.Event{
			Type: event.TopologyChanged,
			Data: event.TopologyChangedData{Path: c.Path, Op: c.Op},
		})
	})
	w.Changes().AddListener(evchan.Func(func(c watch.Change) {
		select {
		case changes <- c:
		default:
		}
	}))
	w.Start()

	t.report(t.safeRun())
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-changes:
			t.out.changed(c)
			t.report(t.safeRun())
		}
	}
}

// safeRun is run with a listener panic turned into an *evchan.PanicError.
func (t *tracer) safeRun() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &evchan.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return t.run()
}

func (t *tracer) record(deliveries []topology.Delivery, fireErr error) error {
	run := &history.Run{
		Topology:   t.path,
		Channel:    t.channel,
		Payload:    t.payload,
		Deliveries: deliveries,
	}
	if fireErr != nil {
		run.Error = fireErr.Error()
	}
	if err := t.store.Save(context.Background(), run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	t.out.recorded(run.ID)
	return nil
}

func (t *tracer) report(err error) {
	if err != nil {
		t.out.failure(err)
	}
}

// receive acks up to want messages, giving up after timeout.
func receive(messages <-chan *message.Message, want int, timeout time.Duration) int {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	n := 0
	for n < want {
		select {
		case msg, ok := <-messages:
			if !ok {
				return n
			}
			msg.Ack()
			n++
		case <-timer.C:
			return n
		}
	}
	return n
}

type printer struct {
	w    io.Writer
	ok   *color.Color
	fail *color.Color
	dim  *color.Color
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:    w,
		ok:   color.New(color.FgGreen),
		fail: color.New(color.FgRed, color.Bold),
		dim:  color.New(color.Faint),
	}
}

func (p *printer) deliveries(ds []topology.Delivery, err error) {
	for i, d := range ds {
		mark := p.ok.Sprint("✓")
		if d.Failed {
			mark = p.fail.Sprint("✗")
		}
		fmt.Fprintf(p.w, "%2d %s %s/%s %s\n", i+1, mark, d.Channel, d.Listener, p.dim.Sprintf("%q", d.Payload))
	}
	if err != nil {
		fmt.Fprintf(p.w, "%s after %d delivery(s)\n", p.fail.Sprint("stopped"), len(ds))
		return
	}
	fmt.Fprintf(p.w, "%s %d delivery(s)\n", p.ok.Sprint("done"), len(ds))
}

func (p *printer) mirrored(n int) {
	fmt.Fprintf(p.w, "%s %d channel.fired message(s)\n", p.dim.Sprint("mirrored"), n)
}

func (p *printer) recorded(id string) {
	fmt.Fprintf(p.w, "%s %s\n", p.dim.Sprint("recorded"), id)
}

func (p *printer) changed(c watch.Change) {
	fmt.Fprintf(p.w, "%s %s (%s)\n", p.dim.Sprint("changed"), c.Path, c.Op)
}

func (p *printer) failure(err error) {
	fmt.Fprintf(p.w, "%s %v\n", p.fail.Sprint("error:"), err)
}
