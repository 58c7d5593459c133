package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/csr-style-review/internal/core/domain"
)

func TestSaveAndOpenNestedKey(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "exports/run-1/run-1-corrected.txt", strings.NewReader("body")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := store.Open(ctx, "exports/run-1/run-1-corrected.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "body" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestOpenMissingAndInvalidKeys(t *testing.T) {
	store, _ := New(t.TempDir())
	if _, err := store.Open(context.Background(), "exports/none.txt"); !domain.IsKind(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	for _, key := range []string{"", "../escape.txt", "/etc/passwd"} {
		if err := store.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}
