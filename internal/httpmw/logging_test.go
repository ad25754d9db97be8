package httpmw

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/channelgw/internal/log"
)

func newCaptureLogger(t *testing.T, buf *bytes.Buffer) log.Logger {
	t.Helper()
	L, err := log.New(log.Options{
		App:        "test",
		Level:      slog.LevelDebug,
		JsonFormat: true,
		Writer:     buf,
	})
	if err != nil {
		t.Fatalf("log.New: %v", err)
	}
	return L
}

func TestWithLogger_EnrichesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := newCaptureLogger(t, &buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).Info(r.Context(), "inside handler")
	})

	req := httptest.NewRequest(http.MethodGet, "/channel/main.tar.xz", nil)
	req.RemoteAddr = "203.0.113.9:4321"

	Chain(handler,
		RequestID(""),
		ClientIP(ClientIPOptions{}),
		WithLogger(base),
	).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log line: %v (%s)", err, buf.String())
	}
	if entry["url.path"] != "/channel/main.tar.xz" {
		t.Fatalf("url.path = %v", entry["url.path"])
	}
	if entry["client.address"] != "203.0.113.9" {
		t.Fatalf("client.address = %v", entry["client.address"])
	}
	if id, _ := entry["request_id"].(string); id == "" {
		t.Fatal("missing request_id")
	}
}

func TestAccessLog_OneLinePerRequest(t *testing.T) {
	var buf bytes.Buffer
	base := newCaptureLogger(t, &buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTemporaryRedirect)
		w.Write([]byte("redirecting"))
	})

	Chain(handler,
		WithLogger(base),
		AccessLog(),
	).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/channel/main.tar.xz", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["http.response.status_code"] != float64(http.StatusTemporaryRedirect) {
		t.Fatalf("status = %v", entry["http.response.status_code"])
	}
	if entry["http.response.body.size"] != float64(len("redirecting")) {
		t.Fatalf("body size = %v", entry["http.response.body.size"])
	}
}

func TestAccessLog_SkipsHealthEndpoints(t *testing.T) {
	var buf bytes.Buffer
	base := newCaptureLogger(t, &buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Chain(handler, WithLogger(base), AccessLog())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/-/healthy", nil))

	if buf.Len() != 0 {
		t.Fatalf("health probes were logged: %s", buf.String())
	}
}
