package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listChannelsCmd = &cobra.Command{
	Use:   "list-channels",
	Short: "List every channel registered in the manifest",
	Args:  cobra.NoArgs,
	RunE:  runListChannels,
}

func runListChannels(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	pub, err := getPublisher(ctx)
	if err != nil {
		return err
	}

	names, err := pub.ListChannels(ctx)
	if err != nil {
		return err
	}

	if len(names) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no channels registered")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tLATEST")
	for _, name := range names {
		latest := "(none)"
		if cfg, err := pub.ShowChannel(ctx, name); err == nil && cfg.Latest != nil {
			latest = *cfg.Latest
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, latest)
	}
	return tw.Flush()
}
