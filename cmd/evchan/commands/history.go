package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/telnet2/evchan/internal/config"
	"github.com/telnet2/evchan/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List firings saved with 'trace --record'",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := runStore().List(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "no recorded runs")
			return nil
		}
		if historyLimit > 0 && len(runs) > historyLimit {
			runs = runs[:historyLimit]
		}
		for _, run := range runs {
			status := color.GreenString("ok")
			if run.Failed() {
				status = color.RedString("failed")
			}
			fmt.Fprintf(out, "%s  %s  %s %q  %d delivery(s)  %s\n",
				run.ID, run.Time.Format("2006-01-02 15:04:05"), run.Channel, run.Payload, len(run.Deliveries), status)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the deliveries of a recorded firing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := runStore().Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s fired %s with %q\n", run.Topology, run.Channel, run.Payload)
		var fireErr error
		if run.Failed() {
			fireErr = fmt.Errorf("%s", run.Error)
		}
		p := newPrinter(out)
		p.deliveries(run.Deliveries, fireErr)
		if fireErr != nil {
			p.failure(fireErr)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every recorded firing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := runStore().Clear(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d run(s)\n", n)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show at most n runs")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// runStore opens the run history under the state directory.
func runStore() *history.Store {
	return history.New(afero.NewOsFs(), config.GetPaths().RunsPath())
}
