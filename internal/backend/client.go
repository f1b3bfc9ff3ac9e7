package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andresmejia3/kiosk/internal/logging"
	"github.com/andresmejia3/kiosk/internal/types"
)

const (
	endpointProcessImage     = "process-image"
	endpointGetAttendance    = "get-attendance"
	endpointExportAttendance = "export-attendance"
)

// Operation names attached to errors returned by the client.
const (
	OpProcessImage     = "backend.process_image"
	OpGetAttendance    = "backend.get_attendance"
	OpExportAttendance = "backend.export_attendance"
)

// Client talks to the attendance backend.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a backend client for rawURL, e.g. http://localhost:5000.
func New(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q: scheme and host are required", rawURL)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	c := &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveURL(endpoint string) string {
	return c.baseURL.ResolveReference(&url.URL{Path: endpoint}).String()
}

// ProcessImage submits a PNG data URL for recognition.
func (c *Client) ProcessImage(ctx context.Context, image string) (*types.RecognitionResult, error) {
	requestID := newRequestID()
	result, err := doPostJSON[types.RecognitionResult](ctx, c, endpointProcessImage, requestID, types.ProcessImageRequest{Image: image})
	if err != nil {
		return nil, logging.NewOperationError(OpProcessImage, requestID, err)
	}
	return result, nil
}

// GetAttendance fetches the full attendance list in server order.
func (c *Client) GetAttendance(ctx context.Context) ([]types.AttendanceEntry, error) {
	requestID := newRequestID()
	result, err := doGetJSON[types.AttendanceResponse](ctx, c, endpointGetAttendance, requestID)
	if err != nil {
		return nil, logging.NewOperationError(OpGetAttendance, requestID, err)
	}
	if result.Attendance == nil {
		return []types.AttendanceEntry{}, nil
	}
	return result.Attendance, nil
}

// Download is an open export body. Size is -1 when unknown.
type Download struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	RequestID   string
}

// ExportAttendance opens the CSV export. Any non-2xx status is an error and
// no body is returned.
func (c *Client) ExportAttendance(ctx context.Context) (*Download, error) {
	requestID := newRequestID()
	resp, err := doRequestStream(ctx, c, http.MethodGet, endpointExportAttendance, requestID)
	if err != nil {
		return nil, logging.NewOperationError(OpExportAttendance, requestID, err)
	}
	return &Download{
		Body:        resp.Body,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
		RequestID:   requestID,
	}, nil
}

// IsStatus reports whether err came from a response with the given status code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}
