package recognition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/andresmejia3/kiosk/internal/types"
)

// Recognizer submits one encoded frame to the recognition service.
type Recognizer interface {
	ProcessImage(ctx context.Context, image string) (*types.RecognitionResult, error)
}

// Canvas is what the client samples and draws onto.
type Canvas interface {
	DataURL() (string, error)
	QueueOverlay(faces []types.FaceBox)
}

// AttendanceHandler is told about every response that recorded a new attendance.
type AttendanceHandler func(ctx context.Context, res *types.RecognitionResult)

// Config tunes the request cadence.
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxInFlight int // 0 = unbounded
}

// Client samples the canvas on a fixed cadence and applies recognition
// results. Requests may overlap; every request carries a sequence number and
// a response older than the last applied one never reaches the overlay.
type Client struct {
	cfg          Config
	canvas       Canvas
	recognizer   Recognizer
	onAttendance AttendanceHandler
	logger       *zap.Logger

	seq      atomic.Uint64
	inFlight atomic.Int64
	wg       sync.WaitGroup

	mu          sync.Mutex
	lastApplied uint64

	issued  atomic.Uint64
	applied atomic.Uint64
	stale   atomic.Uint64
	failed  atomic.Uint64
	skipped atomic.Uint64
}

func New(cfg Config, canvas Canvas, recognizer Recognizer, onAttendance AttendanceHandler, logger *zap.Logger) *Client {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:          cfg,
		canvas:       canvas,
		recognizer:   recognizer,
		onAttendance: onAttendance,
		logger:       logger.Named("recognition"),
	}
}

// Run issues one request per tick until ctx is done, then waits for every
// in-flight request to finish. In-flight requests are cancelled with ctx.
func (c *Client) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	defer c.wg.Wait()

	c.logger.Info("recognition loop started",
		zap.Duration("interval", c.cfg.Interval),
		zap.Int("max_in_flight", c.cfg.MaxInFlight))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick samples the canvas and submits it without waiting for the answer.
// It reports whether a request was issued.
func (c *Client) Tick(ctx context.Context) bool {
	if c.cfg.MaxInFlight > 0 && c.inFlight.Load() >= int64(c.cfg.MaxInFlight) {
		c.skipped.Add(1)
		c.logger.Debug("tick skipped, too many requests in flight", zap.Int64("in_flight", c.inFlight.Load()))
		return false
	}

	image, err := c.canvas.DataURL()
	if err != nil {
		c.failed.Add(1)
		c.logger.Error("could not encode canvas", zap.Error(err))
		return false
	}

	seq := c.seq.Add(1)
	c.issued.Add(1)
	c.inFlight.Add(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.inFlight.Add(-1)
		c.submit(ctx, seq, image)
	}()
	return true
}

func (c *Client) submit(ctx context.Context, seq uint64, image string) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	res, err := c.recognizer.ProcessImage(reqCtx, image)
	if err != nil {
		c.failed.Add(1)
		if ctx.Err() != nil {
			c.logger.Debug("recognition request cancelled", zap.Uint64("seq", seq))
			return
		}
		c.logger.Error("recognition request failed", zap.Uint64("seq", seq), zap.Error(err))
		return
	}
	res.Seq = seq
	c.apply(ctx, res)
}

// apply draws a fresh result and forwards new attendance. A stale result is
// not drawn, but its attendance event is still forwarded because the backend
// has already recorded it.
func (c *Client) apply(ctx context.Context, res *types.RecognitionResult) {
	c.mu.Lock()
	fresh := res.Seq > c.lastApplied
	if fresh {
		c.lastApplied = res.Seq
		// An empty result still replaces whatever an older one staged.
		c.canvas.QueueOverlay(res.Faces)
	}
	c.mu.Unlock()

	if fresh {
		c.applied.Add(1)
	} else {
		c.stale.Add(1)
		c.logger.Debug("discarded stale recognition response", zap.Uint64("seq", res.Seq))
	}

	if res.NewAttendance && c.onAttendance != nil {
		c.onAttendance(ctx, res)
	}
}

// Stats reports request counters.
type Stats struct {
	Issued   uint64 `json:"issued"`
	Applied  uint64 `json:"applied"`
	Stale    uint64 `json:"stale"`
	Failed   uint64 `json:"failed"`
	Skipped  uint64 `json:"skipped"`
	InFlight int64  `json:"in_flight"`
}

func (c *Client) Stats() Stats {
	return Stats{
		Issued:   c.issued.Load(),
		Applied:  c.applied.Load(),
		Stale:    c.stale.Load(),
		Failed:   c.failed.Load(),
		Skipped:  c.skipped.Load(),
		InFlight: c.inFlight.Load(),
	}
}
