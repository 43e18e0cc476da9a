// Package testutil provides shared test infrastructure. Tests run against
// the embedded store backend, which exercises the shared schema without
// requiring a database daemon.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dtecho/folio/internal/storage"
)

// OpenStore opens an embedded store in a per-test temp directory and
// closes it when the test finishes.
func OpenStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), storage.Options{
		Path: filepath.Join(t.TempDir(), "folio-test.db"),
	}, TestLogger())
	if err != nil {
		t.Fatalf("testutil: open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
