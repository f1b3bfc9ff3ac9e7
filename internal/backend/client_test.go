package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/kiosk/internal/logging"
	"github.com/andresmejia3/kiosk/internal/types"
)

func loadTestData(t *testing.T, filename string) []byte {
	t.Helper()
	path := filepath.Join("testdata", filename)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load test data %s: %v", filename, err)
	}
	return data
}

func setupMockServer(t *testing.T) *httptest.Server {
	t.Helper()

	aliceData := loadTestData(t, "process_image_alice.json")
	attendanceData := loadTestData(t, "get_attendance.json")
	exportData := loadTestData(t, "export_attendance.csv")

	mux := http.NewServeMux()

	mux.HandleFunc("/process-image", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get(RequestIDHeader) == "" {
			http.Error(w, "missing request id", http.StatusBadRequest)
			return
		}
		var req types.ProcessImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !strings.HasPrefix(req.Image, "data:image/png;base64,") {
			http.Error(w, "bad image", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(aliceData)
	})

	mux.HandleFunc("/get-attendance", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(attendanceData)
	})

	mux.HandleFunc("/export-attendance", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=attendance.csv")
		w.Write(exportData)
	})

	return httptest.NewServer(mux)
}

func TestNewRejectsBadURLs(t *testing.T) {
	for _, raw := range []string{"", "localhost:5000", "://nope"} {
		if _, err := New(raw); err == nil {
			t.Errorf("New(%q) should fail", raw)
		}
	}
}

func TestResolveURLKeepsBasePath(t *testing.T) {
	c, err := New("http://kiosk.local/api")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.resolveURL(endpointGetAttendance); got != "http://kiosk.local/api/get-attendance" {
		t.Errorf("resolveURL = %s", got)
	}
}

func TestProcessImage(t *testing.T) {
	server := setupMockServer(t)
	defer server.Close()

	c, err := New(server.URL)
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.ProcessImage(context.Background(), "data:image/png;base64,AAAA")
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	if !res.NewAttendance || len(res.Faces) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f := res.Faces[0]; f.Name != "Alice" || f.Left != 20 || f.Top != 10 || f.Right != 110 || f.Bottom != 90 {
		t.Errorf("unexpected face: %+v", f)
	}
}

func TestGetAttendanceKeepsServerOrder(t *testing.T) {
	server := setupMockServer(t)
	defer server.Close()

	c, _ := New(server.URL)
	entries, err := c.GetAttendance(context.Background())
	if err != nil {
		t.Fatalf("GetAttendance failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "Carol" || entries[1].Name != "Bob" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestGetAttendanceMissingList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, _ := New(server.URL)
	entries, err := c.GetAttendance(context.Background())
	if err != nil {
		t.Fatalf("GetAttendance failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected an empty non-nil list, got %#v", entries)
	}
}

func TestExportAttendance(t *testing.T) {
	server := setupMockServer(t)
	defer server.Close()

	c, _ := New(server.URL)
	dl, err := c.ExportAttendance(context.Background())
	if err != nil {
		t.Fatalf("ExportAttendance failed: %v", err)
	}
	defer dl.Body.Close()

	body, _ := io.ReadAll(dl.Body)
	if !strings.HasPrefix(string(body), "time,name,status\n") {
		t.Errorf("unexpected csv: %q", body)
	}
	if dl.ContentType != "text/csv" || dl.RequestID == "" {
		t.Errorf("unexpected download metadata: %+v", dl)
	}
}

func TestErrorsCarryOperation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/process-image":
			w.Write([]byte(`<html>not json</html>`))
		default:
			http.Error(w, "database is locked", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	c, _ := New(server.URL)
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() error
		op     string
		status int
	}{
		{"attendance 500", func() error { _, err := c.GetAttendance(ctx); return err }, OpGetAttendance, 500},
		{"export 500", func() error { _, err := c.ExportAttendance(ctx); return err }, OpExportAttendance, 500},
		{"malformed json", func() error { _, err := c.ProcessImage(ctx, "x"); return err }, OpProcessImage, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if err == nil {
				t.Fatal("expected an error")
			}
			var opErr *logging.OperationError
			if !errors.As(err, &opErr) {
				t.Fatalf("expected OperationError, got %T", err)
			}
			if opErr.Operation != tt.op || opErr.RequestID == "" {
				t.Errorf("unexpected operation error: %+v", opErr)
			}
			if tt.status != 0 && !IsStatus(err, tt.status) {
				t.Errorf("expected status %d in %v", tt.status, err)
			}
			if tt.status == 0 && !strings.Contains(err.Error(), "could not unmarshal response") {
				t.Errorf("unexpected error text: %v", err)
			}
		})
	}
}

func TestContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c, _ := New(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.ProcessImage(ctx, "x"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
