package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"linkpage/api/internal/client"
)

func newLoginCmd(opts *options) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			c := client.New(opts.server, nil)
			tokens, err := c.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := opts.saveCredentials(credentials{Server: opts.server, Email: email, Tokens: tokens}); err != nil {
				return err
			}
			slog.Debug("stored session", "user", tokens.UserID)
			printf(cmd, "Logged in as %s\n", tokens.UserName)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	return cmd
}
