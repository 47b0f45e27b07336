package snippet

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yourorg/ramldoc/internal/fragment"
)

func sampleFiles(content string) []fragment.File {
	return []fragment.File{
		{Name: "op-request.json", Data: []byte(`{"a":"` + content + `"}`)},
		{Name: fragment.ResourceFile, Data: []byte("/a:\n  get:\n    description: " + content + "\n")},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestWriteCreatesOperationDir(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	if err := w.Write(context.Background(), "op", sampleFiles("v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "op", "op-request.json")); got != `{"a":"v1"}` {
		t.Fatalf("unexpected example %s", got)
	}
	if _, err := os.Stat(filepath.Join(root, "op", fragment.ResourceFile)); err != nil {
		t.Fatalf("resource.raml missing: %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".staging-") {
			t.Fatalf("staging dir left behind: %s", e.Name())
		}
	}
}

func TestWriteRollsBackOnFailure(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	w.Retries = 0
	if err := w.Write(context.Background(), "op", sampleFiles("v1")); err != nil {
		t.Fatalf("initial write: %v", err)
	}

	orig := renameFn
	defer func() { renameFn = orig }()
	renameFn = func(oldpath, newpath string) error {
		if filepath.Base(newpath) == fragment.ResourceFile {
			return errors.New("disk full")
		}
		return os.Rename(oldpath, newpath)
	}

	err := w.Write(context.Background(), "op", sampleFiles("v2"))
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if ioErr.Operation != "op" {
		t.Fatalf("IOError must name the operation: %+v", ioErr)
	}
	if got := readFile(t, filepath.Join(root, "op", "op-request.json")); got != `{"a":"v1"}` {
		t.Fatalf("example not rolled back: %s", got)
	}
	if got := readFile(t, filepath.Join(root, "op", fragment.ResourceFile)); !strings.Contains(got, "v1") {
		t.Fatalf("fragment not restored: %s", got)
	}
}

func TestWriteRetriesOnce(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	orig := renameFn
	defer func() { renameFn = orig }()
	calls := 0
	renameFn = func(oldpath, newpath string) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return os.Rename(oldpath, newpath)
	}
	if err := w.Write(context.Background(), "op", sampleFiles("v1")); err != nil {
		t.Fatalf("write should succeed on retry: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "op", "op-request.json")); got != `{"a":"v1"}` {
		t.Fatalf("unexpected example %s", got)
	}

	renameFn = func(string, string) error { return errors.New("permanent") }
	if err := w.Write(context.Background(), "op2", sampleFiles("v1")); err == nil {
		t.Fatalf("expected permanent failure to surface")
	}
}

func TestWriteRejectsBadNames(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)
	if err := w.Write(context.Background(), "../escape", sampleFiles("x")); err == nil {
		t.Fatalf("expected operation name with separator to fail")
	}
	if err := w.Write(context.Background(), "op", []fragment.File{{Name: "a/b.json"}}); err == nil {
		t.Fatalf("expected file name with separator to fail")
	}
}
