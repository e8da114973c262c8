package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/telnet2/evchan/internal/topology"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a topology file",
	Long: `Load a topology file and report every problem found in it.

Without a file argument the "topology" entry of evchan.json is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	var file string
	if len(args) == 1 {
		file = args[0]
	}
	path, err := topologyPath(file)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	cfg, err := topology.Load(afero.NewOsFs(), path)
	if err != nil {
		var ve *topology.ValidationError
		if errors.As(err, &ve) {
			bad := color.New(color.FgRed)
			for _, p := range ve.Problems {
				fmt.Fprintf(out, "%s %s\n", bad.Sprint("✗"), p)
			}
			return fmt.Errorf("%s: %d problem(s)", path, len(ve.Problems))
		}
		return err
	}

	names := cfg.ChannelNames()
	fmt.Fprintf(out, "%s %s: %d channel(s): %s\n",
		color.GreenString("✓"), path, len(names), strings.Join(names, ", "))
	return nil
}
