package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/andresmejia3/kiosk/internal/types"
)

// Surface is the canvas the page displays.
type Surface interface {
	EncodePNG(w io.Writer) error
	EncodeJPEG(w io.Writer, quality int) error
	Painted() <-chan struct{}
}

// Attendance is the displayed table.
type Attendance interface {
	Rows() []types.AttendanceRow
	Sync(ctx context.Context) error
}

// Notifications lists live toasts.
type Notifications interface {
	Active() []types.Toast
}

// Exporter saves the attendance export.
type Exporter interface {
	Export(ctx context.Context) (string, error)
}

// Deps are the pipeline parts the page reads from and acts on.
type Deps struct {
	Surface       Surface
	Attendance    Attendance
	Notifications Notifications
	Exporter      Exporter
	Hub           *Hub
	Stats         func() any
}

// Server hosts the kiosk page locally.
type Server struct {
	deps       Deps
	logger     *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	r := chi.NewRouter()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		deps:   deps,
		logger: logger.Named("preview"),
		router: r,
		ctx:    ctx,
		cancel: cancel,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		IdleTimeout:  60 * time.Second,
		// No WriteTimeout: the MJPEG stream and websocket are long lived.
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.Index)
	s.router.Get("/healthz", HealthCheck)
	s.router.Get("/frame.png", s.FramePNG)
	s.router.Get("/frame.jpg", s.FrameJPEG)
	s.router.Get("/stream.mjpeg", s.StreamMJPEG)
	s.router.Get("/attendance", s.ListAttendance)
	s.router.Post("/attendance/refresh", s.RefreshAttendance)
	s.router.Get("/notifications", s.ListNotifications)
	s.router.Post("/export", s.Export)
	s.router.Get("/stats", s.GetStats)
	if s.deps.Hub != nil {
		s.router.Get("/ws", s.deps.Hub.ServeWS)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting preview server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start preview server: %w", err)
	}
	return nil
}

// Shutdown ends open streams, disconnects WebSocket clients and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down preview server")
	s.cancel()
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
