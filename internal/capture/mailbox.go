package capture

import (
	"sync"
	"sync/atomic"

	"github.com/andresmejia3/kiosk/internal/types"
)

// Mailbox is a single-slot latest-frame buffer.
//
// Publish never blocks: a frame nobody consumed yet is overwritten and counted
// as a drop. Next blocks until a frame newer than the caller's last one exists.
type Mailbox struct {
	mu       sync.Mutex
	cond     *sync.Cond
	frame    *types.Frame
	consumed bool
	seq      uint64
	closed   bool

	published atomic.Uint64
	drops     atomic.Uint64
}

func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish stores frame as the latest one and assigns its sequence number.
// Publishing after Close is a no-op.
func (m *Mailbox) Publish(frame *types.Frame) {
	if frame == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.frame != nil && !m.consumed {
		m.drops.Add(1)
	}

	m.seq++
	frame.Seq = m.seq
	m.frame = frame
	m.consumed = false
	m.published.Add(1)

	m.cond.Broadcast()
}

// Next blocks until a frame with Seq > after is available and returns it.
// It returns nil once the mailbox is closed.
func (m *Mailbox) Next(after uint64) *types.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.closed && (m.frame == nil || m.frame.Seq <= after) {
		m.cond.Wait()
	}
	if m.closed {
		return nil
	}
	m.consumed = true
	return m.frame
}

// Latest returns the most recent frame without waiting, or nil.
func (m *Mailbox) Latest() *types.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// Close wakes every waiter; subsequent Next calls return nil.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Stats reports lifetime counters.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

func (m *Mailbox) Stats() Stats {
	return Stats{Published: m.published.Load(), Dropped: m.drops.Load()}
}
