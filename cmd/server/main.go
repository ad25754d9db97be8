package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/channelgw/internal/authgate"
	"github.com/keithlinneman/channelgw/internal/blobstore"
	"github.com/keithlinneman/channelgw/internal/cfg"
	"github.com/keithlinneman/channelgw/internal/channel"
	"github.com/keithlinneman/channelgw/internal/gateway"
	"github.com/keithlinneman/channelgw/internal/health"
	"github.com/keithlinneman/channelgw/internal/httpmw"
	"github.com/keithlinneman/channelgw/internal/httpserver"
	"github.com/keithlinneman/channelgw/internal/log"
	"github.com/keithlinneman/channelgw/internal/metrics"
	"github.com/keithlinneman/channelgw/internal/opshttp"
	"github.com/keithlinneman/channelgw/internal/otelx"
	"github.com/keithlinneman/channelgw/internal/prof"
	"github.com/keithlinneman/channelgw/internal/ratelimit"
	v "github.com/keithlinneman/channelgw/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix CHANNELGW_ and validate
	cfg.FillFromEnv(flag.CommandLine, "CHANNELGW_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             vi.AppName,
		Version:         vi.Version,
		Commit:          vi.Commit,
		Level:           lvl,
		JsonFormat:      conf.LogJSON,
		StacktraceLevel: stackLvl,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"s3_bucket", conf.S3Bucket,
		"s3_endpoint", conf.S3Endpoint,
		"base_url", conf.BaseURL,
		"refresh_interval", conf.RefreshInterval.String(),
		"auth_enabled", conf.AuthKeyPath != "",
		"trusted_hops", conf.TrustedHops,
	)

	// Setup metrics early so startup phases can report into them
	m := metrics.New()
	m.SetBuildInfoFromVersion(vi.AppName, "server", &vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       vi.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       vi.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   vi.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Blob store for channel state and presigned artifact URLs
	store, err := blobstore.NewS3(ctx, blobstore.S3Options{
		Bucket:    conf.S3Bucket,
		Endpoint:  conf.S3Endpoint,
		PathStyle: conf.S3PathStyle,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create blob store", "bucket", conf.S3Bucket)
		os.Exit(1)
	}

	// the registry must hold a real snapshot before we accept
	// traffic, so the first load is synchronous and fatal on error
	loader := channel.NewLoader(store, L)
	registry := channel.NewRegistry()

	snap, err := loader.Load(ctx)
	if err != nil {
		// systemd will restart, a broken bucket should never serve empty 404s
		L.Error(ctx, err, "initial channel manifest load failed", "bucket", conf.S3Bucket)
		os.Exit(1)
	}
	registry.Replace(snap)
	m.SetChannelCount(snap.Len())
	L.Info(ctx, "loaded channel manifest", "channels", snap.Len())

	refresher := channel.NewRefresher(channel.RefresherOptions{
		Logger:   L,
		Loader:   loader,
		Registry: registry,
		Interval: conf.RefreshInterval,
		Metrics:  m,
	})
	go func() { _ = refresher.Run(ctx) }()

	gw, err := gateway.New(gateway.Options{
		Logger:   L,
		Registry: registry,
		Store:    store,
		BaseURL:  conf.BaseURL,
		Metrics:  m,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create gateway handler")
		os.Exit(1)
	}

	// Auth is enabled by configuring a verification key. A configured
	// key that fails to load aborts startup rather than silently
	// serving unauthenticated.
	var authMW func(http.Handler) http.Handler
	if conf.AuthKeyPath != "" {
		key, err := authgate.LoadPublicKey(conf.AuthKeyPath)
		if err != nil {
			L.Error(ctx, err, "failed to load auth public key", "path", conf.AuthKeyPath)
			os.Exit(1)
		}
		authMW = authgate.Middleware(authgate.Options{
			Logger:  L,
			Key:     key,
			Metrics: m,
		})
		L.Info(ctx, "token auth enabled", "key_path", conf.AuthKeyPath)
	} else {
		L.Info(ctx, "token auth disabled, no key configured")
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// readiness requires a loaded registry and an open shutdown gate
	readiness := health.All(
		gate.Probe(),
		health.CheckFunc(func(ctx context.Context) error {
			if registry.Current() == nil {
				return fmt.Errorf("channel registry not loaded")
			}
			return nil
		}),
	)

	// Setup rate limiter middleware for the resolver routes
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitPerSecond, conf.RateLimitBurst),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	// start the public resolver listener
	gwHTTPStop, err := httpserver.Start(
		ctx,
		&httpserver.Options{
			Logger:       L,
			Port:         conf.HTTPPort,
			Gateway:      gw,
			AuthMW:       authMW,
			MetricsMW:    m.Middleware,
			RateLimitMW:  limiter.Middleware,
			ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
			Health:       health.Fixed(true, ""),
			Readiness:    readiness,
			UseRecoverMW: true,
			OnPanic:      m.IncHttpPanic,
		},
	)
	if err != nil {
		L.Error(ctx, err, "failed to start gateway http listener")
		os.Exit(1)
	}
	defer func() { _ = gwHTTPStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks, pprof
	// inbound is restricted to internal monitoring infrastructure
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until signal so we dont exit
	sigCtx, sigStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer sigStop()
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so load balancers stop routing before we close
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	L.Info(context.Background(), "sleeping 30s for in-flight and load balancer health checks to drain")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(30 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := gwHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "gateway http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
