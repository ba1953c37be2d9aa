package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"devsync/internal/discovery"
)

func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List coordinators advertised on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			found, err := discovery.Browse(ctx, rootOpts.Config.MDNS.Service)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintln(out, "no coordinators found")
				return nil
			}
			for _, c := range found {
				fmt.Fprintf(out, "%s\tws://%s/ws\t%s\n", c.Instance, c.Addr(), c.Version)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 3*time.Second, "how long to listen for advertisements")

	return cmd
}
