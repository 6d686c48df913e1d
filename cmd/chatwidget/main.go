// ABOUTME: Entry point for the chatwidget terminal host
// ABOUTME: Cobra root command with persistent config, env-file and metrics flags

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set by goreleaser at build time.
var version = "dev"

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "chatwidget",
		Short: "Terminal host for the chat widget conversation engine",
		Long: `chatwidget mounts a chat widget against a live backend and lets you talk
to the configured agent from the terminal. Assistant replies arrive over the
ActionCable push channel, with polling as the fallback.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default $CHATWIDGET_CONFIG or ./chatwidget.yaml)")
	pf.StringVar(&flags.envFile, "env-file", "", "load environment variables from this file before reading config")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pf.StringVar(&flags.accountID, "account", "", "account id (overrides config)")
	pf.StringVar(&flags.agentSlug, "agent", "", "agent slug (overrides config)")
	pf.StringVar(&flags.endpoint, "endpoint", "", "API endpoint (overrides config)")

	root.AddCommand(newChatCmd(flags), newThemeCmd(flags))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
