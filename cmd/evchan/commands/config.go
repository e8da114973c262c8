package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/telnet2/evchan/internal/config"
)

// Config init flags
var (
	configGlobal   bool
	configForce    bool
	configTopology string
	configLevel    string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create evchan.json",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(appConfig, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter evchan.json",
	Long: `Write evchan.json in the current directory, or in the global config
directory with --global. An existing file is kept unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configGlobal, "global", false, "Write the global config instead of the project one")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configInitCmd.Flags().StringVar(&configTopology, "topology", "", "Default topology file, relative to the config file")
	configInitCmd.Flags().StringVar(&configLevel, "level", "WARN", "Log level to store")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.GlobalConfigPath()
	if !configGlobal {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		path = config.ProjectConfigPath(wd)
	}

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := &config.Config{
		LogLevel: configLevel,
		Topology: configTopology,
	}
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
