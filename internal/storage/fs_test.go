package storage

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFSStore_PutGet(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key, err := s.Put("banners/1/cover.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := s.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "png-bytes" {
		t.Fatalf("got %q", b)
	}
}

func TestFSStore_RejectsBadKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"", "/", "."} {
		if _, err := s.Put(k, strings.NewReader("x")); !errors.Is(err, ErrBadKey) {
			t.Errorf("Put(%q): got %v, want ErrBadKey", k, err)
		}
	}
	// Traversal is folded under the base directory rather than escaping it.
	if _, err := s.Put("../../escape.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("traversal key should be confined, got %v", err)
	}
	if _, err := s.Get("escape.txt"); err != nil {
		t.Fatalf("confined key not found under base: %v", err)
	}
}

func TestFSStore_Delete(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put("banners/2/a.png", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("banners/2/a.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("banners/2/a.png"); err == nil {
		t.Fatal("blob still readable after delete")
	}
	if err := s.Delete("banners/2/a.png"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := s.Delete(""); !errors.Is(err, ErrBadKey) {
		t.Fatalf("bad key: got %v", err)
	}
}
