package export

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/andresmejia3/kiosk/internal/backend"
)

const csvBody = "time,name,status\n2026-10-18 08:00:03,Bob,Present\n"

func newBackend(t *testing.T, status int, body string) *backend.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/export-attendance" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	c, err := backend.New(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestExportSavesCSV(t *testing.T) {
	dir := t.TempDir()
	var progress bytes.Buffer
	e := New(newBackend(t, http.StatusOK, csvBody), dir, zap.NewNop(), WithProgress(&progress))

	path, err := e.Export(context.Background())
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if path != filepath.Join(dir, "attendance.csv") {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != csvBody {
		t.Errorf("saved %q, want %q", data, csvBody)
	}
	if progress.Len() == 0 {
		t.Error("expected progress output")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestExportFailureLogsOnceAndSavesNothing(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"server error", http.StatusInternalServerError},
		{"not found", http.StatusNotFound},
		{"forbidden", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			core, logs := observer.New(zapcore.DebugLevel)
			e := New(newBackend(t, tt.status, "boom"), dir, zap.New(core))

			if _, err := e.Export(context.Background()); err == nil {
				t.Fatal("expected export to fail")
			}

			if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 1 {
				t.Errorf("expected exactly one error log, got %d", n)
			}
			if !backend.IsStatus(logs.All()[0].Context[0].Interface.(error), tt.status) {
				t.Errorf("logged error does not carry status %d", tt.status)
			}

			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("expected no download, found %v", entries)
			}
		})
	}
}

func TestExportOverwritesPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(newBackend(t, http.StatusOK, csvBody), dir, zap.NewNop())
	if _, err := e.Export(context.Background()); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != csvBody {
		t.Errorf("file not replaced: %q", data)
	}
}
