package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/keithlinneman/channelgw/internal/xerrors"
)

func newTestLogger(t *testing.T, buf *bytes.Buffer, lvl slog.Level) Logger {
	t.Helper()
	l, err := New(Options{App: "test", Level: lvl, JsonFormat: true, Writer: buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func lastLine(buf *bytes.Buffer) map[string]any {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	_ = json.Unmarshal([]byte(lines[len(lines)-1]), &m)
	return m
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"trace", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseLevel(%q) = %v, %v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseLevel(%q): expected error", tc.in)
		}
	}
}

func TestInfo_EmitsAppAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, slog.LevelInfo)

	l.Info(context.Background(), "hello", "channel", "nixos-24.05")

	m := lastLine(&buf)
	if m["app"] != "test" {
		t.Fatalf("app = %v", m["app"])
	}
	if m["channel"] != "nixos-24.05" {
		t.Fatalf("channel = %v", m["channel"])
	}
	if m["msg"] != "hello" {
		t.Fatalf("msg = %v", m["msg"])
	}
}

func TestDebug_SuppressedAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, slog.LevelInfo)

	l.Debug(context.Background(), "quiet")
	if buf.Len() != 0 {
		t.Fatalf("debug record emitted at info level: %s", buf.String())
	}
}

func TestWith_AccumulatesFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, slog.LevelInfo)

	l2 := l.With("component", "refresher")
	l2.Info(context.Background(), "tick")

	m := lastLine(&buf)
	if m["component"] != "refresher" {
		t.Fatalf("component = %v", m["component"])
	}

	// parent logger must not pick up the child's fields
	buf.Reset()
	l.Info(context.Background(), "tick")
	if _, ok := lastLine(&buf)["component"]; ok {
		t.Fatal("parent logger leaked child fields")
	}
}

func TestError_IncludesChainAndStack(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, slog.LevelInfo)

	err := xerrors.Wrap(xerrors.New("fetch failed"), "loading manifest")
	l.Error(context.Background(), err, "refresh failed")

	m := lastLine(&buf)
	if m["err"] != "loading manifest: fetch failed" {
		t.Fatalf("err = %v", m["err"])
	}
	chain, ok := m["error_chain"].([]any)
	if !ok || len(chain) != 2 {
		t.Fatalf("error_chain = %v", m["error_chain"])
	}
	stack, ok := m["stack"].(string)
	if !ok || !strings.Contains(stack, "TestError_IncludesChainAndStack") {
		t.Fatalf("stack = %v", m["stack"])
	}
}

func TestNop_IsSilentAndChainable(t *testing.T) {
	l := Nop()
	l2 := l.With("k", "v")
	l2.Info(context.Background(), "nothing")
	l2.Error(context.Background(), xerrors.New("x"), "nothing")
	if err := l2.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestFromContext_FallsBackToNop(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext should never return nil")
	}
}

func TestFromContext_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, slog.LevelInfo)

	ctx := WithContext(context.Background(), l)
	FromContext(ctx).Info(ctx, "via context")

	if !strings.Contains(buf.String(), "via context") {
		t.Fatalf("logger from context did not write: %s", buf.String())
	}
}
