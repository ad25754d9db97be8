// Package publish implements the out-of-band writer side of the
// gateway: uploading a new artifact and advancing a channel's latest
// pointer. It always works from a fresh read of the persisted state,
// never the server's long-lived registry.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/keithlinneman/channelgw/internal/blobstore"
	"github.com/keithlinneman/channelgw/internal/channel"
	"github.com/keithlinneman/channelgw/internal/log"
	"github.com/keithlinneman/channelgw/internal/xerrors"
)

var (
	// ErrChannelNotFound: the named channel is not in the manifest
	// and createIfMissing was not requested.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrUploadConflict: an object with the derived key already
	// exists. Published artifacts are immutable so this is never
	// overwritten.
	ErrUploadConflict = errors.New("object already exists")

	// ErrInvalidObjectName: the file name does not end in the
	// channel's configured extension.
	ErrInvalidObjectName = errors.New("invalid object name")
)

type Publisher struct {
	store  blobstore.Store
	logger log.Logger
}

func New(store blobstore.Store, logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Publisher{store: store, logger: logger}
}

// Result describes a completed publish.
type Result struct {
	Channel   string
	ObjectKey string
	Latest    string
	Previous  []string
	Created   bool
}

// Publish uploads filePath's contents and advances the channel
// pointer. The object is uploaded before the pointer is written, so a
// failure in between leaves an unreferenced object in the store but
// never a pointer at a missing object. The orphan needs manual
// cleanup.
//
// Concurrent publishes to the same channel can lose an update; that
// coordination is left to the caller.
func (p *Publisher) Publish(ctx context.Context, channelName, filePath string, createIfMissing bool) (*Result, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, xerrors.Wrap(err, "read artifact")
	}

	manifest, err := p.loadManifest(ctx)
	if err != nil {
		return nil, err
	}

	cfg, created, err := p.resolveConfig(ctx, manifest, channelName, createIfMissing)
	if err != nil {
		return nil, err
	}

	objectKey := filepath.Base(filePath)
	if !strings.HasSuffix(objectKey, cfg.FileExtension) || objectKey == cfg.FileExtension {
		return nil, xerrors.Wrapf(ErrInvalidObjectName, "%q must end in %s", objectKey, cfg.FileExtension)
	}
	contentKey := strings.TrimSuffix(objectKey, cfg.FileExtension)

	exists, err := p.store.Head(ctx, objectKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "check for existing object")
	}
	if exists {
		return nil, xerrors.Wrapf(ErrUploadConflict, "key %q", objectKey)
	}

	if err := p.store.Put(ctx, objectKey, data); err != nil {
		return nil, xerrors.Wrap(err, "upload artifact")
	}
	p.logger.Info(ctx, "uploaded artifact", "key", objectKey, "bytes", len(data))

	if cfg.Latest != nil {
		cfg.Previous = append(cfg.Previous, *cfg.Latest)
	}
	if cfg.Previous == nil {
		// keep "previous" an array, not null, in the persisted JSON
		cfg.Previous = []string{}
	}
	cfg.Latest = &contentKey

	if err := p.writeJSON(ctx, channel.ConfigKey(channelName), cfg); err != nil {
		return nil, xerrors.Wrapf(err, "artifact %q was uploaded but the channel pointer was not updated, remove the orphaned object manually", objectKey)
	}

	if created {
		manifest.Channels = append(manifest.Channels, channelName)
		if err := p.writeJSON(ctx, channel.ManifestKey, manifest); err != nil {
			return nil, xerrors.Wrapf(err, "channel %q was written but not added to the manifest", channelName)
		}
	}

	p.logger.Info(ctx, "published", "channel", channelName, "latest", contentKey)
	return &Result{
		Channel:   channelName,
		ObjectKey: objectKey,
		Latest:    contentKey,
		Previous:  cfg.Previous,
		Created:   created,
	}, nil
}

// ListChannels returns the manifest's channel names.
func (p *Publisher) ListChannels(ctx context.Context) ([]string, error) {
	manifest, err := p.loadManifest(ctx)
	if err != nil {
		return nil, err
	}
	return manifest.Channels, nil
}

// ShowChannel returns one channel's persisted configuration.
func (p *Publisher) ShowChannel(ctx context.Context, name string) (*channel.Config, error) {
	manifest, err := p.loadManifest(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(manifest.Channels, name) {
		return nil, xerrors.Wrapf(ErrChannelNotFound, "%q", name)
	}

	raw, err := p.store.Get(ctx, channel.ConfigKey(name))
	if err != nil {
		return nil, xerrors.Wrapf(err, "fetch config for channel %s", name)
	}
	var cfg channel.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, xerrors.Wrapf(err, "parse config for channel %s", name)
	}
	return &cfg, nil
}

func (p *Publisher) loadManifest(ctx context.Context) (*channel.Manifest, error) {
	raw, err := p.store.Get(ctx, channel.ManifestKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "fetch manifest")
	}
	var manifest channel.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, xerrors.Wrap(err, "parse manifest")
	}
	return &manifest, nil
}

func (p *Publisher) resolveConfig(ctx context.Context, manifest *channel.Manifest, name string, create bool) (*channel.Config, bool, error) {
	if slices.Contains(manifest.Channels, name) {
		raw, err := p.store.Get(ctx, channel.ConfigKey(name))
		if err != nil {
			return nil, false, xerrors.Wrapf(err, "fetch config for channel %s", name)
		}
		var cfg channel.Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, false, xerrors.Wrapf(err, "parse config for channel %s", name)
		}
		if err := cfg.Validate(); err != nil {
			return nil, false, xerrors.Wrapf(err, "channel %s", name)
		}
		return &cfg, false, nil
	}

	if !create {
		return nil, false, xerrors.Wrapf(ErrChannelNotFound, "%q (use --create to add it)", name)
	}
	return &channel.Config{FileExtension: channel.DefaultExtension}, true, nil
}

// writeJSON persists v pretty-printed, matching how the state files
// are edited by hand when needed.
func (p *Publisher) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Wrap(err, "encode state")
	}
	return p.store.Put(ctx, key, append(data, '\n'))
}
