// Package gateway serves the Lockable HTTP Tarball Protocol: a
// mutable channel URL that 307s to a presigned URL for the newest
// artifact while advertising, via a Link header, the permanent URL
// clients may cache forever.
//
// See https://nix.dev/manual/nix/2.25/protocols/tarball-fetcher
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/channelgw/internal/blobstore"
	"github.com/keithlinneman/channelgw/internal/channel"
	"github.com/keithlinneman/channelgw/internal/log"
	"github.com/keithlinneman/channelgw/internal/xerrors"
)

// PresignTTL is the validity window of every URL the gateway hands
// out. Clients are expected to follow the redirect immediately.
const PresignTTL = 600 * time.Second

// Metrics is implemented by the metrics package to observe resolution
// outcomes.
type Metrics interface {
	IncPresigns(method string)
	IncPresignFailures()
}

type Options struct {
	Logger   log.Logger
	Registry *channel.Registry
	Store    blobstore.Store

	// BaseURL is the externally-visible root of this gateway,
	// without a trailing slash. Used to build permanent URLs in the
	// Link header.
	BaseURL string

	// Metrics is optional.
	Metrics Metrics
}

type Handler struct {
	logger   log.Logger
	registry *channel.Registry
	store    blobstore.Store
	baseURL  string
	metrics  Metrics
}

func New(opts Options) (*Handler, error) {
	if opts.Registry == nil {
		return nil, xerrors.New("registry is required")
	}
	if opts.Store == nil {
		return nil, xerrors.New("store is required")
	}
	if opts.BaseURL == "" {
		return nil, xerrors.New("base URL is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Handler{
		logger:   opts.Logger,
		registry: opts.Registry,
		store:    opts.Store,
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		metrics:  opts.Metrics,
	}, nil
}

// RegisterRoutes mounts the resolver routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/channel/{file}", h.handleChannel)
	r.Head("/channel/{file}", h.handleChannel)
	r.Get("/permanent/{file}", h.handlePermanent)
	r.Head("/permanent/{file}", h.handlePermanent)
}

// handleChannel resolves /channel/<name><ext> to the channel's newest
// artifact. The extension is the matched channel's own configured
// suffix, never a hardcoded one.
func (h *Handler) handleChannel(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	snap := h.snapshot()

	name, cfg, rerr := resolveChannel(snap, file)
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}

	objectKey := cfg.LatestObjectKey()
	if objectKey == "" {
		// channel exists but nothing was published yet
		h.writeError(w, r, channelNotFound(name))
		return
	}

	signed, rerr := h.presign(r, objectKey)
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}

	w.Header().Set("Link", fmt.Sprintf("<%s/permanent/%s>; rel=\"immutable\"", h.baseURL, objectKey))
	http.Redirect(w, r, signed, http.StatusTemporaryRedirect)
}

// handlePermanent resolves a raw object key. Existence is not checked:
// a stale or fabricated key yields a presigned URL that 404s when the
// client follows it.
func (h *Handler) handlePermanent(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "file")
	snap := h.snapshot()

	if !validObjectKey(snap, key) {
		h.writeError(w, r, invalidObjectName(key))
		return
	}

	signed, rerr := h.presign(r, key)
	if rerr != nil {
		h.writeError(w, r, rerr)
		return
	}

	// this URL already is the permanent one, no Link header needed
	http.Redirect(w, r, signed, http.StatusTemporaryRedirect)
}

func (h *Handler) snapshot() *channel.Snapshot {
	if snap := h.registry.Current(); snap != nil {
		return snap
	}
	// readiness gates traffic until the first load, but don't panic
	// if a request races it
	return channel.NewSnapshot(nil)
}

func (h *Handler) presign(r *http.Request, key string) (string, *RequestError) {
	if h.metrics != nil {
		h.metrics.IncPresigns(r.Method)
	}
	signed, err := h.store.Presign(r.Context(), r.Method, key, PresignTTL)
	if err != nil {
		if errors.Is(err, blobstore.ErrUnsupportedMethod) {
			return "", unsupportedMethod(r.Method, err)
		}
		if h.metrics != nil {
			h.metrics.IncPresignFailures()
		}
		return "", presignFailure(key, err)
	}
	return signed, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, rerr *RequestError) {
	status := rerr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), rerr.Err, "request failed",
			"kind", rerr.Kind,
			"name", rerr.Name,
		)
	}
	http.Error(w, rerr.Error(), status)
}

// resolveChannel finds the channel whose name plus configured
// extension equals the requested file name.
//
// When nothing matches exactly, the failure mode depends on what the
// request looks like: a known channel name with the wrong suffix is an
// invalid object name (400), while a plausible artifact name for an
// unknown channel is not found (404).
func resolveChannel(snap *channel.Snapshot, file string) (string, channel.Config, *RequestError) {
	for _, name := range snap.Names() {
		cfg, _ := snap.Lookup(name)
		if file == name+cfg.FileExtension {
			return name, cfg, nil
		}
	}

	// a channel identified by prefix but requested with another
	// suffix, e.g. nixos-24.05.iso against a .tar.xz channel
	for _, name := range snap.Names() {
		if strings.HasPrefix(file, name+".") {
			return "", channel.Config{}, invalidObjectName(file)
		}
	}

	for _, ext := range snap.Extensions() {
		if strings.HasSuffix(file, ext) && len(file) > len(ext) {
			return "", channel.Config{}, channelNotFound(strings.TrimSuffix(file, ext))
		}
	}

	return "", channel.Config{}, invalidObjectName(file)
}

// validObjectKey accepts keys ending in any extension some channel is
// configured to serve (the default included), with a non-empty base.
func validObjectKey(snap *channel.Snapshot, key string) bool {
	if key == "" || strings.Contains(key, "/") {
		return false
	}
	for _, ext := range snap.Extensions() {
		if strings.HasSuffix(key, ext) && len(key) > len(ext) {
			return true
		}
	}
	return false
}
