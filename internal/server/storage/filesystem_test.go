package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// failingReader returns an error after yielding some bytes, to exercise
// partial-write cleanup.
type failingReader struct {
	data []byte
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, r.data), nil
	}
	return 0, errors.New("stream interrupted")
}

func TestFileSystemStore_Save(t *testing.T) {
	t.Run("saves file under account root", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)
		if err := store.EnsureRoot("acct-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data := bytes.NewReader([]byte("photo bytes"))
		n, err := store.Save("acct-1", "p1.png", data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 11 {
			t.Errorf("expected 11 bytes written, got %d", n)
		}

		content, err := os.ReadFile(filepath.Join(dir, "acct-1", "p1.png"))
		if err != nil {
			t.Fatalf("failed to read saved file: %v", err)
		}
		if string(content) != "photo bytes" {
			t.Errorf("expected 'photo bytes', got %q", content)
		}
	})

	t.Run("removes partial file when the stream fails", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)
		store.EnsureRoot("acct-1")

		_, err := store.Save("acct-1", "broken.png", &failingReader{data: []byte("partial")})
		if err == nil {
			t.Fatal("expected error from interrupted stream")
		}

		if _, err := os.Stat(filepath.Join(dir, "acct-1", "broken.png")); !os.IsNotExist(err) {
			t.Error("partial file should have been removed")
		}
	})

	t.Run("fails when root does not exist", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())
		_, err := store.Save("missing-root", "p.png", bytes.NewReader([]byte("x")))
		if err == nil {
			t.Error("expected error for missing root")
		}
	})
}

func TestFileSystemStore_Open(t *testing.T) {
	t.Run("opens existing file", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)
		store.EnsureRoot("r")
		store.Save("r", "a.png", bytes.NewReader([]byte("data")))

		rc, err := store.Open("r", "a.png")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer rc.Close()

		buf := new(bytes.Buffer)
		buf.ReadFrom(rc)
		if buf.String() != "data" {
			t.Errorf("expected 'data', got %q", buf.String())
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())
		store.EnsureRoot("r")
		if _, err := store.Open("r", "nope.png"); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestFileSystemStore_List(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)
	store.EnsureRoot("r")
	store.Save("r", "a.png", bytes.NewReader([]byte("1")))
	store.Save("r", "b.png", bytes.NewReader([]byte("2")))

	names, err := store.List("r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "a.png" || names[1] != "b.png" {
		t.Errorf("unexpected listing: %v", names)
	}
}

func TestFileSystemStore_Delete(t *testing.T) {
	t.Run("deletes existing file", func(t *testing.T) {
		dir := t.TempDir()
		store := NewFileSystemStore(dir)
		store.EnsureRoot("r")
		store.Save("r", "a.png", bytes.NewReader([]byte("1")))

		if err := store.Delete("r", "a.png"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "r", "a.png")); !os.IsNotExist(err) {
			t.Error("file should have been deleted")
		}
	})

	t.Run("deleting a missing file is not an error", func(t *testing.T) {
		store := NewFileSystemStore(t.TempDir())
		store.EnsureRoot("r")
		if err := store.Delete("r", "missing.png"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestFileSystemStore_RemoveRoot(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)
	store.EnsureRoot("r")
	store.Save("r", "a.png", bytes.NewReader([]byte("1")))
	store.Save("r", "b.png", bytes.NewReader([]byte("2")))

	if err := store.RemoveRoot("r"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "r")); !os.IsNotExist(err) {
		t.Error("storage root should have been removed")
	}
}
