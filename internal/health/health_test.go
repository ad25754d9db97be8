package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/channelgw/internal/xerrors"
)

func TestFixed(t *testing.T) {
	if err := Fixed(true, "").Check(context.Background()); err != nil {
		t.Fatalf("Fixed(true): %v", err)
	}
	err := Fixed(false, "registry empty").Check(context.Background())
	if err == nil || err.Error() != "registry empty" {
		t.Fatalf("Fixed(false): %v", err)
	}
	if err := Fixed(false, "").Check(context.Background()); err == nil || err.Error() != "unhealthy" {
		t.Fatalf("Fixed(false, \"\"): %v", err)
	}
}

func TestAll(t *testing.T) {
	ok := Fixed(true, "")
	bad := CheckFunc(func(context.Context) error { return xerrors.New("bad") })

	if err := All(ok, nil, ok).Check(context.Background()); err != nil {
		t.Fatalf("All(ok): %v", err)
	}
	if err := All(ok, bad).Check(context.Background()); err == nil || err.Error() != "bad" {
		t.Fatalf("All(ok, bad): %v", err)
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("open gate: %v", err)
	}
	g.Set("draining")
	if err := p.Check(context.Background()); err == nil || err.Error() != "draining" {
		t.Fatalf("closed gate: %v", err)
	}
	g.Clear()
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("cleared gate: %v", err)
	}
}

func TestReadyzHandler(t *testing.T) {
	h := ReadyzHandler(Fixed(false, "no snapshot loaded"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/-/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no snapshot loaded") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestHealthzHandler_NilProbe(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthzHandler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/-/healthy", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
