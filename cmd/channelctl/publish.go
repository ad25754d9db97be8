package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/channelgw/internal/publish"
)

var publishCreate bool

var publishCmd = &cobra.Command{
	Use:   "publish <channel> <file>",
	Short: "Upload an artifact and advance the channel pointer",
	Long: `Upload an artifact and advance the channel pointer.

The file's basename becomes the object key and must carry the
channel's configured extension. Re-uploading a key that already
exists is refused; published artifacts are immutable.

Examples:
  channelctl publish nixos-24.05 ./abc123.tar.xz
  channelctl publish nixos-25.05 ./def456.tar.xz --create`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().BoolVar(&publishCreate, "create", false, "register the channel if it does not exist")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	channelName, filePath := args[0], args[1]

	pub, err := getPublisher(ctx)
	if err != nil {
		return err
	}

	res, err := pub.Publish(ctx, channelName, filePath, publishCreate)
	if err != nil {
		switch {
		case errors.Is(err, publish.ErrChannelNotFound):
			return fmt.Errorf("channel %q is not registered (use --create to add it)", channelName)
		case errors.Is(err, publish.ErrUploadConflict):
			return fmt.Errorf("object already exists, published artifacts are immutable: %w", err)
		default:
			return err
		}
	}

	out := cmd.OutOrStdout()
	if res.Created {
		fmt.Fprintf(out, "created channel %s\n", res.Channel)
	}
	fmt.Fprintf(out, "published %s to %s (latest: %s)\n", res.ObjectKey, res.Channel, res.Latest)
	return nil
}
