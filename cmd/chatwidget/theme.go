// ABOUTME: theme subcommand prints the resolved widget theme as YAML
// ABOUTME: Fetches the account theme unless --offline is given

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/chatwidget/internal/api"
	"github.com/2389/chatwidget/internal/auth"
	"github.com/2389/chatwidget/internal/config"
	"github.com/2389/chatwidget/internal/theme"
)

func newThemeCmd(flags *rootFlags) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "theme",
		Short: "Print the resolved theme for the configured widget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)
			return runTheme(cmd.Context(), *cfg, offline, logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "resolve from config and defaults only")
	return cmd
}

func runTheme(ctx context.Context, cfg config.Config, offline bool, logger *slog.Logger, out io.Writer) error {
	var remote *api.Theme
	if !offline {
		client := api.NewClient(api.Config{
			AccountID:   cfg.Widget.AccountID,
			AgentSlug:   cfg.Widget.AgentSlug,
			APIEndpoint: cfg.Widget.Endpoint(),
		},
			api.WithHTTPClient(auth.NewHTTPClient(cfg.Widget.Token, 10*time.Second)),
			api.WithLogger(logger),
		)

		fetched, err := client.FetchTheme(ctx)
		if err != nil {
			logger.Warn("theme unavailable, showing defaults", "error", err)
		} else {
			remote = fetched
		}
	}

	data, err := yaml.Marshal(theme.Resolve(cfg.Widget, remote))
	if err != nil {
		return fmt.Errorf("encoding theme: %w", err)
	}
	_, err = out.Write(data)
	return err
}
