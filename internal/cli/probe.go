package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"devsync/internal/client"
)

type ProbeOptions struct {
	*RootOptions
	Name    string
	Retries uint64
}

// NewProbeCommand joins a room as a throwaway participant and reports the
// round trip, as a smoke test for a running coordinator.
func NewProbeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProbeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "probe <ws-url> <room-id>",
		Short: "Join a room, measure round trip, and leave",
		Example: `  devsync probe ws://localhost:5000/ws demo
  devsync probe "ws://host:5000/ws?token=$(devsync token --user probe)" demo`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return probe(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "probe", "display name to join with")
	cmd.Flags().Uint64Var(&opts.Retries, "retries", 3, "join attempts after the first")

	return cmd
}

func probe(cmd *cobra.Command, opts *ProbeOptions, url, roomID string) error {
	ctx := cmd.Context()
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), opts.Retries)

	c, res, err := client.JoinWithRetry(ctx, url, roomID, opts.Name, "", opts.Config.JoinTimeout, b)
	if err != nil {
		return fmt.Errorf("join %s: %w", roomID, err)
	}
	defer c.Leave("probe finished")
	opts.Log.Debug("joined", zap.String("room", roomID), zap.Stringer("status", res.Status))

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rtt, err := c.Ping(pctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "joined %s as %s, round trip %s\n", roomID, opts.Name, rtt.Round(time.Microsecond))
	return nil
}
