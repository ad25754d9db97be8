package channel

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/keithlinneman/channelgw/internal/blobstore"
	"github.com/keithlinneman/channelgw/internal/log"
	"github.com/keithlinneman/channelgw/internal/xerrors"
)

// configFetchConcurrency bounds parallel per-channel config fetches
// during a load.
const configFetchConcurrency = 8

// Loader turns the bucket's persisted state into a Snapshot.
type Loader struct {
	store  blobstore.Store
	logger log.Logger
}

func NewLoader(store blobstore.Store, logger log.Logger) *Loader {
	if logger == nil {
		logger = log.Nop()
	}
	return &Loader{store: store, logger: logger}
}

// Load fetches the manifest and every per-channel config, returning a
// snapshot of exactly the channels that parsed successfully.
//
// A manifest fetch or parse failure fails the whole load; there is no
// partial manifest. A broken or missing per-channel config only
// excludes that channel: the registry keeps serving everything else.
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	manifest, err := l.loadManifest(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	channels := make(map[string]Config, len(manifest.Channels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(configFetchConcurrency)
	for _, name := range manifest.Channels {
		g.Go(func() error {
			cfg, err := l.loadChannel(gctx, name)
			if err != nil {
				l.logger.Warn(gctx, "skipping channel with unusable config",
					"channel", name,
					"reason", err.Error(),
				)
				return nil
			}
			mu.Lock()
			channels[name] = cfg
			mu.Unlock()
			return nil
		})
	}
	// per-channel errors never propagate, so this only fires on
	// context cancellation
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewSnapshot(channels), nil
}

func (l *Loader) loadManifest(ctx context.Context) (Manifest, error) {
	data, err := l.store.Get(ctx, ManifestKey)
	if err != nil {
		return Manifest{}, xerrors.Wrapf(err, "fetch %s", ManifestKey)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, xerrors.Wrapf(err, "parse %s", ManifestKey)
	}
	return manifest, nil
}

func (l *Loader) loadChannel(ctx context.Context, name string) (Config, error) {
	key := ConfigKey(name)

	data, err := l.store.Get(ctx, key)
	if err != nil {
		return Config{}, xerrors.Wrapf(err, "fetch %s", key)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, xerrors.Wrapf(err, "parse %s", key)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
