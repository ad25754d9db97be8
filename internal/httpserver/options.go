package httpserver

import (
	"net/http"

	"github.com/keithlinneman/channelgw/internal/gateway"
	"github.com/keithlinneman/channelgw/internal/health"
	"github.com/keithlinneman/channelgw/internal/httpmw"
	"github.com/keithlinneman/channelgw/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Gateway serves the resolver routes.
	Gateway *gateway.Handler

	// AuthMW wraps the resolver routes only; health endpoints stay
	// open so probes work without credentials. nil disables auth.
	AuthMW func(http.Handler) http.Handler

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	ClientIPOpts httpmw.ClientIPOptions

	Health    health.Probe
	Readiness health.Probe

	UseRecoverMW bool
	OnPanic      func()
}
