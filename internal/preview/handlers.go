package preview

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

//go:embed index.html
var indexHTML []byte

const mjpegBoundary = "kioskframe"

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) FramePNG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.deps.Surface.EncodePNG(&buf); err != nil {
		respondError(w, http.StatusInternalServerError, "could not encode frame")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) FrameJPEG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.deps.Surface.EncodeJPEG(&buf, 80); err != nil {
		respondError(w, http.StatusInternalServerError, "could not encode frame")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// StreamMJPEG pushes one JPEG part per paint until the client leaves or the server stops.
func (s *Server) StreamMJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	var buf bytes.Buffer
	for {
		painted := s.deps.Surface.Painted()

		buf.Reset()
		if err := s.deps.Surface.EncodeJPEG(&buf, 80); err != nil {
			s.logger.Warn("mjpeg encode failed", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, buf.Len()); err != nil {
			return
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-painted:
		case <-r.Context().Done():
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) ListAttendance(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"attendance": s.deps.Attendance.Rows(),
	})
}

func (s *Server) RefreshAttendance(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Attendance.Sync(r.Context()); err != nil {
		respondError(w, http.StatusBadGateway, "attendance refresh failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"attendance": s.deps.Attendance.Rows(),
	})
}

func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"notifications": s.deps.Notifications.Active(),
	})
}

// Export saves attendance.csv next to the kiosk. The exporter already logged any failure.
func (s *Server) Export(w http.ResponseWriter, r *http.Request) {
	path, err := s.deps.Exporter.Export(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "export failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		respondJSON(w, http.StatusOK, map[string]any{})
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Stats())
}
