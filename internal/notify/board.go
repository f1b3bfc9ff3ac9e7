package notify

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresmejia3/kiosk/internal/types"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 3 * time.Second

// Message formats the toast text for a newly recorded attendance.
func Message(name string) string {
	return "New attendance recorded for: " + name
}

// Sink receives every toast as it is created.
type Sink interface {
	Deliver(toast types.Toast) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(types.Toast) error

func (f SinkFunc) Deliver(toast types.Toast) error { return f(toast) }

// Board keeps the live toasts. Every toast is independent: no dedup, no
// queueing, each one removes itself after the TTL.
type Board struct {
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	toasts map[string]types.Toast
	timers map[string]*time.Timer
	sinks  []Sink
	closed bool
	total  uint64
}

func NewBoard(ttl time.Duration, logger *zap.Logger) *Board {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Board{
		ttl:    ttl,
		logger: logger.Named("notify"),
		toasts: make(map[string]types.Toast),
		timers: make(map[string]*time.Timer),
	}
}

// AddSink registers a sink for toasts created from now on.
func (b *Board) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Notify shows "New attendance recorded for: <name>" for the board TTL.
func (b *Board) Notify(name string) types.Toast {
	now := time.Now()
	toast := types.Toast{
		ID:        uuid.NewString(),
		Name:      name,
		Message:   Message(name),
		CreatedAt: now,
		ExpiresAt: now.Add(b.ttl),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return toast
	}
	b.toasts[toast.ID] = toast
	b.timers[toast.ID] = time.AfterFunc(b.ttl, func() { b.expire(toast.ID) })
	b.total++
	sinks := slices.Clone(b.sinks)
	b.mu.Unlock()

	b.logger.Info("notification shown", zap.String("toast_id", toast.ID), zap.String("name", name))

	for _, s := range sinks {
		if err := s.Deliver(toast); err != nil {
			b.logger.Warn("notification sink failed", zap.String("toast_id", toast.ID), zap.Error(err))
		}
	}
	return toast
}

func (b *Board) expire(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.toasts, id)
	delete(b.timers, id)
}

// Active returns the live toasts, oldest first.
func (b *Board) Active() []types.Toast {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]types.Toast, 0, len(b.toasts))
	for _, t := range b.toasts {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, c types.Toast) int { return a.CreatedAt.Compare(c.CreatedAt) })
	return out
}

// Total counts every toast ever shown.
func (b *Board) Total() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Close stops every pending expiry and drops the live toasts.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, t := range b.timers {
		t.Stop()
		delete(b.timers, id)
	}
	clear(b.toasts)
	b.closed = true
}

// String renders a toast for terminal output.
func String(t types.Toast) string {
	return fmt.Sprintf("🔔 %s", t.Message)
}
