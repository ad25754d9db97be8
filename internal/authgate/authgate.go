// Package authgate optionally fronts the resolver with token
// authentication. The client presents an EdDSA JWT as the password
// field of HTTP basic auth, which is what Nix's netrc support can
// carry without any custom headers.
package authgate

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keithlinneman/channelgw/internal/log"
	"github.com/keithlinneman/channelgw/internal/xerrors"
)

// Metrics is implemented by the metrics package.
type Metrics interface {
	IncAuthRejections()
}

// LoadPublicKey reads a PEM-encoded Ed25519 public key from path.
// Any failure is returned to the caller; a gateway configured for
// auth must not silently start without it.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(err, "read auth public key")
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, xerrors.Newf("no PEM block in %s", path)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse auth public key")
	}

	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, xerrors.Newf("auth public key in %s is %T, want Ed25519", path, parsed)
	}
	return key, nil
}

type Options struct {
	Logger  log.Logger
	Key     ed25519.PublicKey
	Metrics Metrics
}

// Middleware returns a handler that rejects any request not carrying
// a valid token before the wrapped handler runs. The basic auth
// username is ignored.
func Middleware(opts Options) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithExpirationRequired(),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, token, ok := r.BasicAuth()
			if !ok {
				reject(w, r, opts, logger, xerrors.New("no basic auth credentials"))
				return
			}

			_, err := parser.Parse(token, func(*jwt.Token) (any, error) {
				return opts.Key, nil
			})
			if err != nil {
				reject(w, r, opts, logger, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, opts Options, logger log.Logger, err error) {
	if opts.Metrics != nil {
		opts.Metrics.IncAuthRejections()
	}
	logger.Debug(r.Context(), "rejected request", "path", r.URL.Path, "reason", err.Error())
	w.Header().Set("WWW-Authenticate", `Basic realm="channelgw"`)
	http.Error(w, "invalid token", http.StatusUnauthorized)
}
