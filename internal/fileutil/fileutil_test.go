package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRemoveIfExistsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.mp3")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := RemoveIfExists(path)
	if err != nil || !removed {
		t.Fatalf("first removal: removed=%v err=%v", removed, err)
	}
	removed, err = RemoveIfExists(path)
	if err != nil || removed {
		t.Fatalf("second removal: removed=%v err=%v", removed, err)
	}
	if Exists(path) {
		t.Fatal("file still exists")
	}
	if removed, err := RemoveIfExists(""); removed || err != nil {
		t.Fatalf("empty path: removed=%v err=%v", removed, err)
	}
}

func TestSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(path, make([]byte, 12), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := Size(path); got != 12 {
		t.Fatalf("Size = %d, want 12", got)
	}
	if got := Size(filepath.Join(dir, "missing")); got != -1 {
		t.Fatalf("Size(missing) = %d, want -1", got)
	}
	if got := Size(dir); got != -1 {
		t.Fatalf("Size(dir) = %d, want -1", got)
	}
}

func TestWriteFileAtomicCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "cover.jpg")
	if err := WriteFileAtomic(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "jpeg" {
		t.Fatalf("unexpected content %q", data)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected temp file to be gone, found %d entries", len(entries))
	}
}
