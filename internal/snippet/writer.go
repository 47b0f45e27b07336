// Package snippet persists assembled fragments into per-operation directories.
package snippet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourorg/ramldoc/internal/fragment"
)

var renameFn = os.Rename

// IOError reports a failed filesystem step for one operation.
type IOError struct {
	Operation string
	Op        string
	Path      string
	Err       error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("operation %s: %s %s: %v", e.Operation, e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Writer writes file sets below Root/<operation>/.
type Writer struct {
	Root string
	// Retries is how often a failed batch is attempted again.
	Retries int
	Logger  *slog.Logger
}

// NewWriter returns a Writer that retries once.
func NewWriter(root string, logger *slog.Logger) *Writer {
	return &Writer{Root: root, Retries: 1, Logger: logger}
}

// Dir returns the directory of an operation.
func (w *Writer) Dir(operation string) string {
	return filepath.Join(w.Root, operation)
}

// Write stages files and renames them into place. A batch that fails midway
// is rolled back so no file is left half written.
func (w *Writer) Write(ctx context.Context, operation string, files []fragment.File) error {
	if err := checkName(operation); err != nil {
		return &IOError{Operation: operation, Op: "validate", Path: operation, Err: err}
	}
	for _, f := range files {
		if err := checkName(f.Name); err != nil {
			return &IOError{Operation: operation, Op: "validate", Path: f.Name, Err: err}
		}
	}

	var err error
	for attempt := 0; attempt <= w.Retries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = w.writeOnce(operation, files); err == nil {
			return nil
		}
		if w.Logger != nil && attempt < w.Retries {
			w.Logger.Warn("snippet write failed, retrying", "operation", operation, "error", err)
		}
	}
	return err
}

func (w *Writer) writeOnce(operation string, files []fragment.File) error {
	dir := w.Dir(operation)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Operation: operation, Op: "mkdir", Path: dir, Err: err}
	}
	staging, err := os.MkdirTemp(w.Root, ".staging-*")
	if err != nil {
		return &IOError{Operation: operation, Op: "stage", Path: w.Root, Err: err}
	}
	defer os.RemoveAll(staging)

	for _, f := range files {
		if err := writeFile(filepath.Join(staging, f.Name), f.Data); err != nil {
			return &IOError{Operation: operation, Op: "write", Path: f.Name, Err: err}
		}
	}

	type committed struct {
		target, backup string
	}
	var done []committed
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			_ = os.Remove(done[i].target)
			if done[i].backup != "" {
				_ = os.Rename(done[i].backup, done[i].target)
			}
		}
	}
	for _, f := range files {
		target := filepath.Join(dir, f.Name)
		c := committed{target: target}
		if _, err := os.Lstat(target); err == nil {
			c.backup = filepath.Join(staging, f.Name+".bak")
			if err := renameFn(target, c.backup); err != nil {
				rollback()
				return &IOError{Operation: operation, Op: "backup", Path: target, Err: err}
			}
		}
		if err := renameFn(filepath.Join(staging, f.Name), target); err != nil {
			if c.backup != "" {
				_ = os.Rename(c.backup, target)
			}
			rollback()
			return &IOError{Operation: operation, Op: "rename", Path: target, Err: err}
		}
		done = append(done, c)
	}
	if w.Logger != nil {
		w.Logger.Debug("snippets written", "operation", operation, "dir", dir, "files", len(files))
	}
	return nil
}

func writeFile(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err = f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func checkName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("empty name")
	case name == "." || name == "..":
		return errors.New("reserved name")
	case strings.ContainsAny(name, `/\`):
		return errors.New("name must not contain path separators")
	}
	return nil
}
