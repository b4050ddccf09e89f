package main

import (
	"github.com/spf13/cobra"
)

var actions = []string{"start", "stop", "status", "logs"}

// buildRoot creates the single nodectl command. The action is the one
// positional argument; cobra rejects anything outside the closed set before
// the configuration is touched.
func buildRoot(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "nodectl {start|stop|status|logs}",
		Short: "Manage a single server node",
		Long: `nodectl starts, stops and inspects one long-running server node.

Configuration is read from config.json in the working directory.

Examples:
  nodectl start    # launch the node on the configured port
  nodectl status   # report whether this manager holds a running node
  nodectl stop     # terminate the node started by this manager
  nodectl logs     # print the last 10 event log lines`,
		ValidArgs:     actions,
		Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// past argument validation, failures are not usage errors
			cmd.SilenceUsage = true
			return a.run(cmd.Context(), args[0])
		},
	}
	return root
}
