package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/keithlinneman/channelgw/internal/blobstore"
	"github.com/keithlinneman/channelgw/internal/channel"
)

func seedManifest(t *testing.T, store *blobstore.Memory, names ...string) {
	t.Helper()
	data, err := json.Marshal(channel.Manifest{Channels: names})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(context.Background(), channel.ManifestKey, data); err != nil {
		t.Fatal(err)
	}
}

func seedChannel(t *testing.T, store *blobstore.Memory, name string, cfg channel.Config) {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(context.Background(), channel.ConfigKey(name), data); err != nil {
		t.Fatal(err)
	}
}

func writeArtifact(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("artifact-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func strptr(s string) *string { return &s }

func storedConfig(t *testing.T, store *blobstore.Memory, name string) channel.Config {
	t.Helper()
	raw, err := store.Get(context.Background(), channel.ConfigKey(name))
	if err != nil {
		t.Fatalf("read back config: %v", err)
	}
	var cfg channel.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func TestPublish_FirstRelease(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory()
	seedManifest(t, store, "nixos-24.05")
	seedChannel(t, store, "nixos-24.05", channel.Config{FileExtension: ".tar.xz"})

	p := New(store, nil)
	res, err := p.Publish(ctx, "nixos-24.05", writeArtifact(t, "abc123.tar.xz"), false)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if res.Latest != "abc123" || res.ObjectKey != "abc123.tar.xz" {
		t.Fatalf("result = %+v", res)
	}

	uploaded, err := store.Get(ctx, "abc123.tar.xz")
	if err != nil {
		t.Fatalf("uploaded object: %v", err)
	}
	if !bytes.Equal(uploaded, []byte("artifact-bytes")) {
		t.Fatal("uploaded bytes differ from the artifact")
	}

	cfg := storedConfig(t, store, "nixos-24.05")
	if cfg.Latest == nil || *cfg.Latest != "abc123" {
		t.Fatalf("latest = %v", cfg.Latest)
	}
	if len(cfg.Previous) != 0 {
		t.Fatalf("previous = %v, want empty", cfg.Previous)
	}
}

func TestPublish_RotatesLatestToPrevious(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory()
	seedManifest(t, store, "nixos-24.05")
	seedChannel(t, store, "nixos-24.05", channel.Config{
		Latest:        strptr("abc123"),
		FileExtension: ".tar.xz",
		Previous:      []string{"old111"},
	})

	p := New(store, nil)
	res, err := p.Publish(ctx, "nixos-24.05", writeArtifact(t, "def456.tar.xz"), false)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	want := []string{"old111", "abc123"}
	if !reflect.DeepEqual(res.Previous, want) {
		t.Fatalf("previous = %v, want %v", res.Previous, want)
	}

	cfg := storedConfig(t, store, "nixos-24.05")
	if *cfg.Latest != "def456" || !reflect.DeepEqual(cfg.Previous, want) {
		t.Fatalf("stored config = %+v", cfg)
	}
}

func TestPublish_UnknownChannel(t *testing.T) {
	store := blobstore.NewMemory()
	seedManifest(t, store)

	p := New(store, nil)
	_, err := p.Publish(context.Background(), "ghost", writeArtifact(t, "abc123.tar.xz"), false)
	if !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("err = %v, want ErrChannelNotFound", err)
	}
}

func TestPublish_CreateIfMissing(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory()
	seedManifest(t, store, "existing")
	seedChannel(t, store, "existing", channel.Config{FileExtension: ".tar.xz"})

	p := New(store, nil)
	res, err := p.Publish(ctx, "fresh", writeArtifact(t, "abc123.tar.xz"), true)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !res.Created {
		t.Fatal("result should report a created channel")
	}

	names, err := p.ListChannels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"existing", "fresh"}) {
		t.Fatalf("manifest = %v", names)
	}

	cfg := storedConfig(t, store, "fresh")
	if cfg.FileExtension != channel.DefaultExtension || *cfg.Latest != "abc123" {
		t.Fatalf("created config = %+v", cfg)
	}
}

func TestPublish_WrongExtension(t *testing.T) {
	store := blobstore.NewMemory()
	seedManifest(t, store, "nixos-24.05")
	seedChannel(t, store, "nixos-24.05", channel.Config{FileExtension: ".tar.xz"})

	p := New(store, nil)
	_, err := p.Publish(context.Background(), "nixos-24.05", writeArtifact(t, "abc123.iso"), false)
	if !errors.Is(err, ErrInvalidObjectName) {
		t.Fatalf("err = %v, want ErrInvalidObjectName", err)
	}
}

func TestPublish_ConflictLeavesPointerUntouched(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory()
	seedManifest(t, store, "nixos-24.05")
	seedChannel(t, store, "nixos-24.05", channel.Config{
		Latest:        strptr("abc123"),
		FileExtension: ".tar.xz",
	})
	// the key the publish would claim is already taken
	if err := store.Put(ctx, "def456.tar.xz", []byte("someone else's artifact")); err != nil {
		t.Fatal(err)
	}
	before, err := store.Get(ctx, channel.ConfigKey("nixos-24.05"))
	if err != nil {
		t.Fatal(err)
	}

	p := New(store, nil)
	_, err = p.Publish(ctx, "nixos-24.05", writeArtifact(t, "def456.tar.xz"), false)
	if !errors.Is(err, ErrUploadConflict) {
		t.Fatalf("err = %v, want ErrUploadConflict", err)
	}

	after, err := store.Get(ctx, channel.ConfigKey("nixos-24.05"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("channel pointer changed on a conflicting publish")
	}
	existing, _ := store.Get(ctx, "def456.tar.xz")
	if !bytes.Equal(existing, []byte("someone else's artifact")) {
		t.Fatal("existing object was overwritten")
	}
}

func TestPublish_UploadPrecedesPointer(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory()
	seedManifest(t, store, "nixos-24.05")
	seedChannel(t, store, "nixos-24.05", channel.Config{FileExtension: ".tar.xz"})

	// fail every Put targeting the channel config: the upload itself
	// must already have happened by then
	store.PutHook = func(key string) error {
		if key == channel.ConfigKey("nixos-24.05") {
			return errors.New("injected pointer write failure")
		}
		return nil
	}

	p := New(store, nil)
	_, err := p.Publish(ctx, "nixos-24.05", writeArtifact(t, "abc123.tar.xz"), false)
	if err == nil {
		t.Fatal("want error from pointer write")
	}

	// the artifact is an orphan, present but unreferenced
	if _, err := store.Get(ctx, "abc123.tar.xz"); err != nil {
		t.Fatalf("artifact should have been uploaded first: %v", err)
	}
	cfg := storedConfig(t, store, "nixos-24.05")
	if cfg.Latest != nil {
		t.Fatalf("latest = %v, want nil (pointer write failed)", cfg.Latest)
	}
}

func TestShowChannel(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemory()
	seedManifest(t, store, "nixos-24.05")
	seedChannel(t, store, "nixos-24.05", channel.Config{
		Latest:        strptr("abc123"),
		FileExtension: ".tar.xz",
		Previous:      []string{"old111"},
	})

	p := New(store, nil)
	cfg, err := p.ShowChannel(ctx, "nixos-24.05")
	if err != nil {
		t.Fatalf("ShowChannel: %v", err)
	}
	if *cfg.Latest != "abc123" || len(cfg.Previous) != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}

	if _, err := p.ShowChannel(ctx, "ghost"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("err = %v, want ErrChannelNotFound", err)
	}
}
