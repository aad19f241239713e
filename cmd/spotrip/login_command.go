package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"spotrip/internal/session"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize spotrip against your Spotify account",
		Long: `Open the printed URL in a browser and approve access. The resulting
token is stored in the settings directory and reused by later runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			err = session.Authorize(sigCtx, cfg, addr, func(url string) {
				fmt.Fprintln(out, "Open this URL in your browser to authorize spotrip:")
				fmt.Fprintln(out, url)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", cfg.Spotify.TokenFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", session.DefaultRedirectAddr, "Local address for the authorization callback")
	return cmd
}
