package app

import (
	"github.com/spf13/cobra"
)

// NewCommand builds the rpcload root command. Flags left unset on the command line are
// filled from RPCLOAD_* variables and the optional --config file before the run starts.
func NewCommand() *cobra.Command {
	cfg := DefaultConfig()
	cmd := &cobra.Command{
		Use:   "rpcload",
		Short: "Ramp concurrent JSON-RPC load against one or more endpoints",
		Long: `rpcload sends JSON-RPC requests over a growing number of concurrent connections
and records one summary row per connection count in a CSV file.

Requests come either from a template file (-f) that is sent repeatedly, or from
stdin (-p), one JSON request per line.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ApplyOverlay(cmd.Flags(), cfg.ConfigFile); err != nil {
				return err
			}
			return Run(cmd.Context(), cfg, RunOptions{
				Stdin:  cmd.InOrStdin(),
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
		},
	}
	BindFlags(cmd.Flags(), &cfg)
	return cmd
}
