// channelctl is the operator CLI for the channel gateway's state
// bucket: list registered channels, inspect a channel's pointer
// history, and publish new artifacts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/channelgw/internal/blobstore"
	"github.com/keithlinneman/channelgw/internal/log"
	"github.com/keithlinneman/channelgw/internal/publish"
	v "github.com/keithlinneman/channelgw/internal/version"
)

var (
	s3Bucket    string
	s3Endpoint  string
	s3PathStyle bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:     "channelctl",
	Version: v.Version,
	Short:   "Manage channels in the gateway's state bucket",
	Long: `channelctl operates directly on the S3 bucket backing the channel
gateway. The running gateway picks up changes on its next manifest
refresh; no gateway restart is needed.

Examples:
  channelctl list-channels
  channelctl show-channel nixos-24.05
  channelctl publish nixos-24.05 ./abc123.tar.xz
  channelctl publish nixos-25.05 ./def456.tar.xz --create`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&s3Bucket, "bucket", "b", "", "state bucket name (env: CHANNELGW_S3_BUCKET)")
	rootCmd.PersistentFlags().StringVar(&s3Endpoint, "endpoint", "", "custom S3 endpoint URL (env: CHANNELGW_S3_ENDPOINT)")
	rootCmd.PersistentFlags().BoolVar(&s3PathStyle, "path-style", false, "use path-style S3 addressing")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	rootCmd.AddCommand(listChannelsCmd)
	rootCmd.AddCommand(showChannelCmd)
	rootCmd.AddCommand(publishCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// getPublisher builds a Publisher against the configured bucket.
// Flags take precedence over environment variables.
func getPublisher(ctx context.Context) (*publish.Publisher, error) {
	bucket := s3Bucket
	if bucket == "" {
		bucket = os.Getenv("CHANNELGW_S3_BUCKET")
	}
	if bucket == "" {
		return nil, fmt.Errorf("state bucket is required (--bucket or CHANNELGW_S3_BUCKET)")
	}
	endpoint := s3Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("CHANNELGW_S3_ENDPOINT")
	}

	store, err := blobstore.NewS3(ctx, blobstore.S3Options{
		Bucket:    bucket,
		Endpoint:  endpoint,
		PathStyle: s3PathStyle,
	})
	if err != nil {
		return nil, err
	}

	return publish.New(store, getLogger()), nil
}

func getLogger() log.Logger {
	if !verbose {
		return log.Nop()
	}
	lg, err := log.New(log.Options{
		App:     v.AppName,
		Version: v.Version,
		Level:   slog.LevelDebug,
		Writer:  os.Stderr,
	})
	if err != nil {
		return log.Nop()
	}
	return lg.With("component", "channelctl")
}
