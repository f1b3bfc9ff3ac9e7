package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andresmejia3/kiosk/internal/attendance"
	"github.com/andresmejia3/kiosk/internal/backend"
	"github.com/andresmejia3/kiosk/internal/capture"
	"github.com/andresmejia3/kiosk/internal/config"
	"github.com/andresmejia3/kiosk/internal/export"
	"github.com/andresmejia3/kiosk/internal/notify"
	"github.com/andresmejia3/kiosk/internal/preview"
	"github.com/andresmejia3/kiosk/internal/recognition"
	"github.com/andresmejia3/kiosk/internal/render"
	"github.com/andresmejia3/kiosk/internal/types"
	"github.com/andresmejia3/kiosk/internal/utils"
)

const shutdownTimeout = 5 * time.Second

// Pipeline owns every component of a running kiosk. Everything it starts is
// released before Run returns.
type Pipeline struct {
	cfg    *config.Config
	logger *zap.Logger

	mailbox  *capture.Mailbox
	source   capture.Source
	surface  *render.Surface
	backend  *backend.Client
	view     *attendance.View
	board    *notify.Board
	recog    *recognition.Client
	exporter *export.Exporter
	hub      *preview.Hub
	preview  *preview.Server
	mqtt     *notify.MQTTSink
}

type options struct {
	newSource func(*capture.Mailbox) capture.Source
	terminal  io.Writer
	progress  io.Writer
}

// Option customizes a Pipeline.
type Option func(*options)

// WithSource replaces the ffmpeg camera with another frame source.
func WithSource(fn func(*capture.Mailbox) capture.Source) Option {
	return func(o *options) { o.newSource = fn }
}

// WithTerminal prints the attendance table and notifications to w.
func WithTerminal(w io.Writer) Option {
	return func(o *options) { o.terminal = w }
}

// WithExportProgress draws export progress on w.
func WithExportProgress(w io.Writer) Option {
	return func(o *options) { o.progress = w }
}

func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	client, err := backend.New(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("could not create backend client: %w", err)
	}

	p := &Pipeline{
		cfg:     cfg,
		logger:  logger.Named("pipeline"),
		mailbox: capture.NewMailbox(),
		surface: render.NewSurface(cfg.Camera.Width, cfg.Camera.Height),
		backend: client,
		view:    attendance.NewView(client, logger),
		board:   notify.NewBoard(cfg.Notify.TTL, logger),
	}

	if o.newSource != nil {
		p.source = o.newSource(p.mailbox)
	} else {
		p.source = capture.NewFFmpegSource(utils.CaptureSpec{
			Device:      cfg.Camera.Device,
			InputFormat: cfg.Camera.InputFormat,
			Width:       cfg.Camera.Width,
			Height:      cfg.Camera.Height,
			MJPEG:       cfg.Camera.Codec == config.CodecMJPEG,
		}, p.mailbox, logger)
	}

	var exportOpts []export.Option
	if o.progress != nil {
		exportOpts = append(exportOpts, export.WithProgress(o.progress))
	}
	p.exporter = export.New(client, cfg.Export.Dir, logger, exportOpts...)

	p.recog = recognition.New(recognition.Config{
		Interval:    cfg.Recognition.Interval,
		Timeout:     cfg.Recognition.Timeout,
		MaxInFlight: cfg.Recognition.MaxInFlight,
	}, p.surface, client, p.onNewAttendance, logger)

	if o.terminal != nil {
		w := o.terminal
		p.view.OnReplace(func(rows []types.AttendanceRow) {
			fmt.Fprintln(w)
			attendance.RenderRows(w, rows)
		})
		p.board.AddSink(notify.SinkFunc(func(t types.Toast) error {
			_, err := fmt.Fprintln(w, notify.String(t))
			return err
		}))
	}

	if cfg.Notify.MQTTBroker != "" {
		p.mqtt = notify.NewMQTTSink(cfg.Notify.MQTTBroker, cfg.Notify.MQTTTopic, logger)
		p.board.AddSink(p.mqtt)
	}

	if cfg.Preview.Addr != "" {
		p.hub = preview.NewHub(logger)
		p.view.OnReplace(p.hub.AttendanceReplaced)
		p.board.AddSink(p.hub)
		p.preview = preview.NewServer(cfg.Preview.Addr, preview.Deps{
			Surface:       p.surface,
			Attendance:    p.view,
			Notifications: p.board,
			Exporter:      p.exporter,
			Hub:           p.hub,
			Stats:         func() any { return p.Stats() },
		}, logger)
	}

	return p, nil
}

// onNewAttendance shows the toast for the first recognized face and refreshes the table once.
func (p *Pipeline) onNewAttendance(ctx context.Context, res *types.RecognitionResult) {
	if name, ok := res.FirstName(); ok {
		p.board.Notify(name)
	} else {
		p.logger.Warn("new attendance reported without a recognized face", zap.Uint64("seq", res.Seq))
	}
	p.view.Sync(ctx)
}

// Run starts capture, rendering, recognition and the optional preview host,
// and blocks until ctx is done. A camera that cannot be opened is logged and
// leaves the display blank; the rest keeps running.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	stopMailbox := context.AfterFunc(gctx, p.mailbox.Close)
	defer stopMailbox()

	if err := p.source.Start(gctx); err != nil {
		p.logger.Error("camera unavailable, display stays blank", zap.Error(err))
	}

	g.Go(func() error {
		return p.surface.Run(gctx, p.mailbox)
	})

	g.Go(func() error {
		return p.recog.Run(gctx)
	})

	g.Go(func() error {
		p.view.Sync(gctx)
		return nil
	})

	if p.mqtt != nil {
		g.Go(func() error {
			if err := p.mqtt.Connect(gctx); err != nil {
				p.logger.Warn("mqtt sink unavailable", zap.Error(err))
			}
			return nil
		})
	}

	if p.preview != nil {
		g.Go(func() error {
			if err := p.preview.Start(); err != nil {
				p.logger.Error("preview host stopped", zap.Error(err))
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return p.preview.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	p.teardown()
	return err
}

func (p *Pipeline) teardown() {
	p.mailbox.Close()
	if err := p.source.Close(); err != nil {
		p.logger.Warn("camera close failed", zap.Error(err))
	}
	p.board.Close()
	if p.mqtt != nil {
		p.mqtt.Close()
	}
	p.logger.Info("pipeline stopped")
}

// Export saves attendance.csv. Failures are logged once by the exporter.
func (p *Pipeline) Export(ctx context.Context) (string, error) {
	return p.exporter.Export(ctx)
}

// Refresh syncs the attendance table on demand.
func (p *Pipeline) Refresh(ctx context.Context) error {
	return p.view.Sync(ctx)
}

func (p *Pipeline) Surface() *render.Surface { return p.surface }
func (p *Pipeline) View() *attendance.View { return p.view }
func (p *Pipeline) Board() *notify.Board { return p.board }
func (p *Pipeline) Preview() *preview.Server { return p.preview }
func (p *Pipeline) Recognition() *recognition.Client { return p.recog }

// Stats is a snapshot of every component's counters.
type Stats struct {
	Capture           capture.Stats     `json:"capture"`
	Render            render.Stats      `json:"render"`
	Recognition       recognition.Stats `json:"recognition"`
	AttendanceRows    int               `json:"attendance_rows"`
	AttendanceVersion uint64            `json:"attendance_version"`
	Notifications     uint64            `json:"notifications"`
	ActiveToasts      int               `json:"active_toasts"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Capture:           p.mailbox.Stats(),
		Render:            p.surface.Stats(),
		Recognition:       p.recog.Stats(),
		AttendanceRows:    len(p.view.Rows()),
		AttendanceVersion: p.view.Version(),
		Notifications:     p.board.Total(),
		ActiveToasts:      len(p.board.Active()),
	}
}
