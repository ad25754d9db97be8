// Package channel holds the channel data model: the manifest listing
// which channels exist, per-channel configuration, and the immutable
// registry snapshot the gateway serves from.
package channel

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/keithlinneman/channelgw/internal/xerrors"
)

// DefaultExtension is the artifact extension assumed when a channel's
// config doesn't name one.
const DefaultExtension = ".tar.xz"

// ManifestKey is the bucket key of the manifest object.
const ManifestKey = "channels.json"

// Manifest is the persisted list of channels. Each name requires a
// corresponding <name>.json config object in the bucket.
type Manifest struct {
	Channels []string `json:"channels"`
}

// Config is the persisted per-channel state.
type Config struct {
	// Latest is the content key (without extension) of the most
	// recently published artifact. nil means nothing was published
	// yet.
	Latest *string `json:"latest"`

	// FileExtension is the artifact suffix for this channel,
	// including the leading period. Multiple periods are allowed
	// (".tar.xz").
	FileExtension string `json:"file_extension"`

	// Previous holds superseded content keys, oldest first.
	// Append-only.
	Previous []string `json:"previous"`
}

// UnmarshalJSON applies the default extension so configs written
// before file_extension existed keep working.
func (c *Config) UnmarshalJSON(data []byte) error {
	type alias Config
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.FileExtension == "" {
		a.FileExtension = DefaultExtension
	}
	*c = Config(a)
	return nil
}

// Validate rejects configs the gateway could not serve.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.FileExtension, ".") {
		return xerrors.Newf("file_extension %q must include the leading period", c.FileExtension)
	}
	return nil
}

// LatestObjectKey returns the full object key of the newest artifact,
// or "" if nothing was published.
func (c Config) LatestObjectKey() string {
	if c.Latest == nil {
		return ""
	}
	return *c.Latest + c.FileExtension
}

// ConfigKey returns the bucket key of a channel's config object.
func ConfigKey(name string) string { return name + ".json" }

// Snapshot is an immutable point-in-time view of every channel that
// loaded successfully. It is shared across goroutines without locking;
// nothing may mutate it after construction.
type Snapshot struct {
	channels map[string]Config
}

// NewSnapshot builds a snapshot from an already-validated channel map.
// The map is owned by the snapshot afterwards.
func NewSnapshot(channels map[string]Config) *Snapshot {
	if channels == nil {
		channels = map[string]Config{}
	}
	return &Snapshot{channels: channels}
}

// Lookup returns the channel's config by exact name.
func (s *Snapshot) Lookup(name string) (Config, bool) {
	c, ok := s.channels[name]
	return c, ok
}

// Names returns all channel names, sorted.
func (s *Snapshot) Names() []string {
	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Extensions returns the set of artifact extensions in use, always
// including the default. The gateway uses this to decide whether an
// unmatched request is a wrong-suffix (400) or unknown-channel (404).
func (s *Snapshot) Extensions() []string {
	seen := map[string]bool{DefaultExtension: true}
	for _, c := range s.channels {
		seen[c.FileExtension] = true
	}
	out := make([]string, 0, len(seen))
	for ext := range seen {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of channels in the snapshot.
func (s *Snapshot) Len() int { return len(s.channels) }
