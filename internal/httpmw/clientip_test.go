package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func extractFor(t *testing.T, remoteAddr, xff string, hops int) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	return extractClientAddr(req, hops)
}

func TestExtractClientAddr(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		xff        string
		hops       int
		want       string
	}{
		{"direct public peer", "203.0.113.9:4321", "", 0, "203.0.113.9"},
		{"public peer ignores forwarded", "203.0.113.9:4321", "198.51.100.1", 1, "203.0.113.9"},
		{"private peer no hops ignores forwarded", "10.0.0.5:4321", "198.51.100.1", 0, "10.0.0.5"},
		{"single load balancer", "10.0.0.5:4321", "198.51.100.1", 1, "198.51.100.1"},
		{"two proxies takes second from end", "10.0.0.5:4321", "198.51.100.1, 10.0.0.2", 2, "198.51.100.1"},
		{"fewer entries than hops fails closed", "10.0.0.5:4321", "198.51.100.1", 2, "10.0.0.5"},
		{"garbage forwarded entry kept out", "10.0.0.5:4321", "not-an-ip", 1, "10.0.0.5"},
		{"empty remote addr", "", "", 0, "0.0.0.0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractFor(t, tc.remoteAddr, tc.xff, tc.hops); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientIP_StoresInContext(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIPFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4321"
	ClientIP(ClientIPOptions{})(handler).ServeHTTP(httptest.NewRecorder(), req)

	if seen != "203.0.113.9" {
		t.Fatalf("context IP = %q", seen)
	}
}

func TestClientIP_StripsUntrustedHeaders(t *testing.T) {
	var sawHeader bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawHeader = r.Header.Get("X-Forwarded-For") != ""
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4321"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	ClientIP(ClientIPOptions{TrustedHops: 1})(handler).ServeHTTP(httptest.NewRecorder(), req)

	if sawHeader {
		t.Fatal("X-Forwarded-For from an untrusted peer reached the handler")
	}
}
