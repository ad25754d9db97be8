package channel

import (
	"context"
	"reflect"
	"testing"

	"github.com/keithlinneman/channelgw/internal/blobstore"
)

func seedManifest(t *testing.T, store *blobstore.Memory, names ...string) {
	t.Helper()
	data := []byte(`{"channels":[`)
	for i, n := range names {
		if i > 0 {
			data = append(data, ',')
		}
		data = append(data, []byte(`"`+n+`"`)...)
	}
	data = append(data, []byte(`]}`)...)
	if err := store.Put(context.Background(), ManifestKey, data); err != nil {
		t.Fatalf("seed manifest: %v", err)
	}
}

func seedChannel(t *testing.T, store *blobstore.Memory, name, body string) {
	t.Helper()
	if err := store.Put(context.Background(), ConfigKey(name), []byte(body)); err != nil {
		t.Fatalf("seed channel %s: %v", name, err)
	}
}

func TestLoad_HappyPath(t *testing.T) {
	store := blobstore.NewMemory()
	seedManifest(t, store, "nixos-24.05")
	seedChannel(t, store, "nixos-24.05", `{"latest":"abc123","file_extension":".tar.xz","previous":[]}`)

	snap, err := NewLoader(store, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, ok := snap.Lookup("nixos-24.05")
	if !ok {
		t.Fatal("channel missing from snapshot")
	}
	if cfg.LatestObjectKey() != "abc123.tar.xz" {
		t.Fatalf("LatestObjectKey = %q", cfg.LatestObjectKey())
	}
}

func TestLoad_MissingManifestIsFatal(t *testing.T) {
	store := blobstore.NewMemory()
	if _, err := NewLoader(store, nil).Load(context.Background()); err == nil {
		t.Fatal("missing manifest should fail the load")
	}
}

func TestLoad_CorruptManifestIsFatal(t *testing.T) {
	store := blobstore.NewMemory()
	_ = store.Put(context.Background(), ManifestKey, []byte(`{"channels": [42`))
	if _, err := NewLoader(store, nil).Load(context.Background()); err == nil {
		t.Fatal("corrupt manifest should fail the load")
	}
}

func TestLoad_BrokenChannelsExcludedNotFatal(t *testing.T) {
	store := blobstore.NewMemory()
	seedManifest(t, store, "good", "missing", "corrupt", "badext")
	seedChannel(t, store, "good", `{"latest":"abc123"}`)
	seedChannel(t, store, "corrupt", `{"latest":`)
	seedChannel(t, store, "badext", `{"latest":"x","file_extension":"iso"}`)

	snap, err := NewLoader(store, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := snap.Names(), []string{"good"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot contains %v, want exactly %v", got, want)
	}
}

func TestLoad_ChannelAbsentFromManifestExcluded(t *testing.T) {
	store := blobstore.NewMemory()
	seedManifest(t, store, "listed")
	seedChannel(t, store, "listed", `{"latest":"a"}`)
	// present in the bucket but not in the manifest
	seedChannel(t, store, "orphan", `{"latest":"b"}`)

	snap, err := NewLoader(store, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := snap.Lookup("orphan"); ok {
		t.Fatal("snapshot must never contain a channel absent from the manifest")
	}
}

func TestLoad_Deterministic(t *testing.T) {
	store := blobstore.NewMemory()
	seedManifest(t, store, "a", "b", "c")
	seedChannel(t, store, "a", `{"latest":"1"}`)
	seedChannel(t, store, "b", `{"latest":"2"}`)
	seedChannel(t, store, "c", `{"latest":"3"}`)

	loader := NewLoader(store, nil)
	first, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(first.Names(), second.Names()) {
		t.Fatalf("loads differ: %v vs %v", first.Names(), second.Names())
	}
	for _, name := range first.Names() {
		c1, _ := first.Lookup(name)
		c2, _ := second.Lookup(name)
		if !reflect.DeepEqual(c1, c2) {
			t.Fatalf("channel %s differs across loads: %+v vs %+v", name, c1, c2)
		}
	}
}
