package main

import (
	"github.com/spf13/cobra"

	"linkpage/api/internal/client"
)

func newCheckSlugCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check-slug [slug]",
		Short: "Check whether a slug can be claimed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := client.New(opts.server, nil).CheckSlug(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch {
			case status.Available:
				printf(cmd, "%s is available\n", status.Slug)
			case status.Reason != "":
				printf(cmd, "%s is not available: %s\n", status.Slug, status.Reason)
			default:
				printf(cmd, "%s is taken\n", status.Slug)
			}
			return nil
		},
	}
}
