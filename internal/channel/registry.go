package channel

import (
	"context"
	"sync/atomic"

	"github.com/keithlinneman/channelgw/internal/xerrors"
)

// Registry holds the currently-served snapshot behind an atomic
// pointer. The refresher is the single writer; request handlers read
// without locks and keep whatever snapshot they loaded for the rest
// of the request, so a concurrent swap never tears a response.
type Registry struct {
	active atomic.Pointer[Snapshot]
}

func NewRegistry() *Registry { return &Registry{} }

// Current returns the latest fully-installed snapshot, or nil before
// the first Replace. Never blocks.
func (r *Registry) Current() *Snapshot { return r.active.Load() }

// Replace installs a new snapshot. Readers holding the old snapshot
// are unaffected; it is reclaimed once the last of them drops it.
func (r *Registry) Replace(s *Snapshot) { r.active.Store(s) }

// ReadyErr implements the readiness probe: the gateway is not ready
// until an initial snapshot has been installed.
func (r *Registry) ReadyErr(context.Context) error {
	if r.active.Load() == nil {
		return xerrors.New("channel registry not loaded")
	}
	return nil
}
