package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/andresmejia3/kiosk/internal/backend"
)

// FileName is the name the export is saved under.
const FileName = "attendance.csv"

// Downloader opens the attendance export.
type Downloader interface {
	ExportAttendance(ctx context.Context) (*backend.Download, error)
}

// Exporter saves the backend CSV export to disk.
type Exporter struct {
	src      Downloader
	dir      string
	logger   *zap.Logger
	progress io.Writer
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithProgress draws a byte progress bar on w while downloading.
func WithProgress(w io.Writer) Option {
	return func(e *Exporter) { e.progress = w }
}

func New(src Downloader, dir string, logger *zap.Logger, opts ...Option) *Exporter {
	e := &Exporter{
		src:    src,
		dir:    dir,
		logger: logger.Named("export"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Path is where a successful export ends up.
func (e *Exporter) Path() string {
	return filepath.Join(e.dir, FileName)
}

// Export downloads the CSV into Path. Any failure is logged exactly once,
// returned, and leaves no file behind.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	path, err := e.export(ctx)
	if err != nil {
		e.logger.Error("attendance export failed", zap.Error(err))
		return "", err
	}
	e.logger.Info("attendance exported", zap.String("path", path))
	return path, nil
}

func (e *Exporter) export(ctx context.Context) (string, error) {
	dl, err := e.src.ExportAttendance(ctx)
	if err != nil {
		return "", err
	}
	defer dl.Body.Close()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(e.dir, ".attendance-*.csv")
	if err != nil {
		return "", fmt.Errorf("could not create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	var dst io.Writer = tmp
	if e.progress != nil {
		bar := progressbar.NewOptions64(dl.Size,
			progressbar.OptionSetDescription("Exporting"),
			progressbar.OptionSetWriter(e.progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(e.progress) }),
		)
		defer bar.Finish()
		dst = io.MultiWriter(tmp, bar)
	}

	if _, err := io.Copy(dst, dl.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("could not write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("could not write export: %w", err)
	}

	path := e.Path()
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("could not save export: %w", err)
	}
	return path, nil
}
