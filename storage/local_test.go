package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorePutAndList(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	puts := map[string]string{
		"emily2636/abc123.json": `{"url":"u1"}`,
		"emily2636/def456.json": `{"url":"u2"}`,
		"emily2636/index.html":  "<html></html>",
		"othercloset/zzz9.json": `{"url":"u3"}`,
	}
	for key, body := range puts {
		if err := store.Put(ctx, key, []byte(body), "application/json"); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	keys, err := store.ListKeys(ctx, "emily2636/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys under emily2636/, got %d: %v", len(keys), keys)
	}
	for _, key := range keys {
		if key == "othercloset/zzz9.json" {
			t.Fatalf("prefix filter leaked %s", key)
		}
	}
}

func TestLocalStorePutCreatesDirs(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.Put(context.Background(), "deep/nested/key.json", []byte("{}"), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "deep", "nested", "key.json"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("unexpected contents %q", data)
	}
}
