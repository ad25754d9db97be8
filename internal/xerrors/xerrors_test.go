package xerrors

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			return false
		}
	}
}

func TestNew_MessageAndStack(t *testing.T) {
	err := New("boom")
	if err.Error() != "boom" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) {
		t.Fatal("New error should carry a stack")
	}
	if !stackContains(hs.StackPCs(), "TestNew_MessageAndStack") {
		t.Fatal("stack should contain calling function")
	}
}

func TestNewf_Formats(t *testing.T) {
	err := Newf("bad port %d", 99999)
	if err.Error() != "bad port 99999" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestWrap_NilIsNil(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}
}

func TestWrap_PreservesChain(t *testing.T) {
	err := Wrap(errSentinel, "loading manifest")
	if !errors.Is(err, errSentinel) {
		t.Fatal("wrapped error should match sentinel via errors.Is")
	}
	want := "loading manifest: sentinel"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrap_RecordsCallerPC(t *testing.T) {
	err := Wrap(errSentinel, "ctx")
	var hp interface{ PC() uintptr }
	if !errors.As(err, &hp) {
		t.Fatal("wrap should record a PC")
	}
	fr, _ := runtime.CallersFrames([]uintptr{hp.PC()}).Next()
	if !strings.Contains(fr.Function, "TestWrap_RecordsCallerPC") {
		t.Fatalf("PC resolves to %s, want this test", fr.Function)
	}
}

func TestEnsureTrace_NoDoubleStack(t *testing.T) {
	inner := New("inner")
	outer := EnsureTrace(inner)
	if outer != inner {
		t.Fatal("EnsureTrace should not re-wrap an error that already has a stack")
	}

	plain := errors.New("plain")
	traced := EnsureTrace(plain)
	var hs interface{ StackPCs() []uintptr }
	if !errors.As(traced, &hs) || len(hs.StackPCs()) == 0 {
		t.Fatal("EnsureTrace should add a stack to a plain error")
	}
}
