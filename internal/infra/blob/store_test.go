package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPutWritesFileAndBuildsURL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewStore(dir, "http://localhost:8080")

	url, err := store.Put(ctx, "s1", "q1", "map.png", []byte("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080/media/s1/q1-") {
		t.Fatalf("unexpected url: %s", url)
	}
	if !strings.HasSuffix(url, ".png") {
		t.Fatalf("expected .png suffix, got %s", url)
	}

	rel := strings.TrimPrefix(url, "http://localhost:8080/media/")
	data, err := os.ReadFile(filepath.Join(dir, rel))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("content mismatch: %q", data)
	}
}

func TestPutReuploadsGetDistinctNames(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir(), "")

	first, err := store.Put(ctx, "s1", "q1", "a.jpg", []byte("one"), "")
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	second, err := store.Put(ctx, "s1", "q1", "a.jpg", []byte("two"), "")
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if first == second {
		t.Fatalf("re-upload must not clobber the previous blob: %s", first)
	}
}

func TestPutRejectsEmptyContent(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	if _, err := store.Put(context.Background(), "s1", "q1", "a.png", nil, "image/png"); err != ErrEmptyContent {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}
