package main

import (
	"github.com/spf13/cobra"

	"linkpage/api/internal/pagefile"
)

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current page as a page file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.authedClient(cmd.Context())
			if err != nil {
				return err
			}
			snapshot, err := c.FetchProfile(cmd.Context())
			if err != nil {
				return err
			}
			data, err := pagefile.Marshal(pagefile.FromSnapshot(snapshot))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
