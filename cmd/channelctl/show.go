package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/channelgw/internal/publish"
)

var showJSON bool

var showChannelCmd = &cobra.Command{
	Use:   "show-channel <name>",
	Short: "Show a channel's latest pointer and history",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowChannel,
}

func init() {
	showChannelCmd.Flags().BoolVar(&showJSON, "json", false, "output as JSON")
}

func runShowChannel(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]

	pub, err := getPublisher(ctx)
	if err != nil {
		return err
	}

	cfg, err := pub.ShowChannel(ctx, name)
	if err != nil {
		if errors.Is(err, publish.ErrChannelNotFound) {
			return fmt.Errorf("channel %q is not registered", name)
		}
		return err
	}

	out := cmd.OutOrStdout()

	if showJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	latest := "(none)"
	if cfg.Latest != nil {
		latest = *cfg.Latest
	}
	fmt.Fprintf(out, "channel:        %s\n", name)
	fmt.Fprintf(out, "file extension: %s\n", cfg.FileExtension)
	fmt.Fprintf(out, "latest:         %s\n", latest)
	if len(cfg.Previous) == 0 {
		fmt.Fprintf(out, "previous:       (none)\n")
	} else {
		fmt.Fprintf(out, "previous:\n")
		for _, key := range cfg.Previous {
			fmt.Fprintf(out, "  %s\n", key)
		}
	}
	return nil
}
