package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/telnet2/evchan/pkg/evchan"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the built-in channel scenarios",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.OutOrStdout())
	},
}

type scenario struct {
	title string
	run   func() ([]string, error)
}

var scenarios = []scenario{
	{"listeners run in registration order", demoOrder},
	{"a listener registered twice runs twice", demoDuplicate},
	{"a failing listener stops the firing", demoFailure},
	{"passthrough forwards to another channel", demoPassthrough},
	{"firing with no listeners does nothing", demoEmpty},
}

func runDemo(w io.Writer) error {
	title := color.New(color.Bold)
	bad := color.New(color.FgRed)

	for i, s := range scenarios {
		lines, err := s.run()
		if err != nil {
			return fmt.Errorf("scenario %d: %w", i+1, err)
		}
		fmt.Fprintf(w, "%d. %s\n", i+1, title.Sprint(s.title))
		for _, line := range lines {
			if strings.HasPrefix(line, "error:") {
				line = bad.Sprint(line)
			}
			fmt.Fprintf(w, "   %s\n", line)
		}
	}
	return nil
}

func appender(log *[]string, name string) evchan.Listener[int] {
	return evchan.Func(func(int) { *log = append(*log, name) })
}

func demoOrder() ([]string, error) {
	var log []string
	var payloads []string
	e := evchan.New[int]()
	for _, name := range []string{"a", "b", "c"} {
		name := name
		e.AddListener(func(v int) error {
			log = append(log, name)
			payloads = append(payloads, fmt.Sprint(v))
			return nil
		})
	}
	if err := e.Fire(42); err != nil {
		return nil, err
	}
	return []string{
		"log: " + strings.Join(log, " "),
		"payloads: " + strings.Join(payloads, " "),
	}, nil
}

func demoDuplicate() ([]string, error) {
	var log []string
	e := evchan.New[int]()
	a := appender(&log, "a")
	e.AddListener(a)
	e.AddListener(a)
	if err := e.Fire(1); err != nil {
		return nil, err
	}
	return []string{"log: " + strings.Join(log, " ")}, nil
}

var errBoom = errors.New("boom")

func demoFailure() ([]string, error) {
	var log []string
	e := evchan.New[int]()
	e.AddListener(appender(&log, "a"))
	e.AddListener(func(int) error {
		log = append(log, "failing")
		return errBoom
	})
	e.AddListener(appender(&log, "c"))

	err := e.Fire(1)
	if !errors.Is(err, errBoom) {
		return nil, fmt.Errorf("expected %v, got %v", errBoom, err)
	}
	return []string{
		"log: " + strings.Join(log, " "),
		"error: " + err.Error(),
	}, nil
}

func demoPassthrough() ([]string, error) {
	var got []string
	a := evchan.New[string]()
	b := evchan.New[string]()
	a.AddPassthroughListener(b)
	b.AddListener(evchan.Func(func(v string) { got = append(got, fmt.Sprintf("b received %q", v)) }))
	if err := a.Fire("x"); err != nil {
		return nil, err
	}
	return got, nil
}

func demoEmpty() ([]string, error) {
	e := evchan.New[int]()
	if err := e.Fire(7); err != nil {
		return nil, err
	}
	return []string{"no listeners, no error"}, nil
}
