// Package cli wires the daycal command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appLog "daycal/internal/log"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the daycal command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "daycal",
		Short: "daycal - a personal calendar with recurring events and iCal feeds",
		Long: `daycal serves a JSON API over a file-backed calendar. Recurring events
are expanded on demand for the requested window and merged with
subscribed iCal feeds and computed public holidays.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.logLevel == "" {
				return nil
			}
			lvl, ok := appLog.ParseLevel(g.logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", g.logLevel)
			}
			appLog.SetLevel(lvl)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "/etc/daycal/config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides config)")

	root.AddCommand(newServeCmd(g))
	root.AddCommand(newExpandCmd())
	root.AddCommand(newHashPasswordCmd())
	return root
}

// Execute is the entry point called from main.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
