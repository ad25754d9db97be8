// Package blobstore abstracts the bucket holding channel
// configuration and published artifacts. The production
// implementation is S3; a memory implementation backs tests.
package blobstore

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrNotFound is returned when an object does not exist.
//
// Implementations must return an error satisfying
// errors.Is(err, ErrNotFound) so callers can tell a missing object
// apart from a transient failure.
var ErrNotFound = errors.New("object not found")

// ErrUnsupportedMethod is returned by Presign for methods other than
// GET and HEAD. Artifacts are immutable once published, so there is
// never a reason to hand out a signed write URL.
var ErrUnsupportedMethod = errors.New("unsupported presign method")

// Store is the set of bucket primitives the gateway and the publish
// workflow need. Get/Put are whole-object operations and are only
// used for small JSON state and artifact uploads.
type Store interface {
	// Get returns the object's bytes, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the object atomically at single-object granularity.
	Put(ctx context.Context, key string, data []byte) error

	// Head reports whether the object exists. A false return with a
	// nil error means definitively absent; transient failures are
	// returned as errors.
	Head(ctx context.Context, key string) (bool, error)

	// Presign returns a time-limited direct-access URL for the
	// object. Only http.MethodGet and http.MethodHead are supported.
	// No existence check is performed: presigning a missing key
	// yields a URL that 404s when followed.
	Presign(ctx context.Context, method string, key string, ttl time.Duration) (string, error)
}

func supportedMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
