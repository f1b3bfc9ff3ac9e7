package attendance

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/andresmejia3/kiosk/internal/types"
)

// Fetcher returns the full attendance list in display order.
type Fetcher interface {
	GetAttendance(ctx context.Context) ([]types.AttendanceEntry, error)
}

// View holds the displayed attendance table. Every successful sync replaces
// it wholesale; a failed sync leaves the previous table in place.
type View struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu        sync.RWMutex
	entries   []types.AttendanceEntry
	version   uint64
	syncedAt  time.Time
	listeners []func([]types.AttendanceRow)

	// Syncs can overlap; only a response newer than the applied one wins.
	issued  uint64
	applied uint64
}

func NewView(fetcher Fetcher, logger *zap.Logger) *View {
	return &View{
		fetcher: fetcher,
		logger:  logger.Named("attendance"),
	}
}

// OnReplace registers fn to be called with the new rows after every replace.
func (v *View) OnReplace(fn func([]types.AttendanceRow)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// Sync fetches the attendance list and replaces the table with it.
// Errors are logged and returned; nothing is retried.
func (v *View) Sync(ctx context.Context) error {
	v.mu.Lock()
	v.issued++
	ticket := v.issued
	v.mu.Unlock()

	entries, err := v.fetcher.GetAttendance(ctx)
	if err != nil {
		v.logger.Error("attendance fetch failed", zap.Error(err))
		return err
	}

	if !v.replace(ticket, entries) {
		v.logger.Debug("discarded out-of-order attendance response", zap.Uint64("ticket", ticket))
	}
	return nil
}

// Replace swaps the table contents for entries.
func (v *View) Replace(entries []types.AttendanceEntry) {
	v.mu.Lock()
	v.issued++
	ticket := v.issued
	v.mu.Unlock()
	v.replace(ticket, entries)
}

func (v *View) replace(ticket uint64, entries []types.AttendanceEntry) bool {
	v.mu.Lock()
	if ticket < v.applied {
		v.mu.Unlock()
		return false
	}
	v.applied = ticket
	v.entries = slices.Clone(entries)
	v.version++
	v.syncedAt = time.Now()
	rows := toRows(v.entries)
	listeners := slices.Clone(v.listeners)
	v.mu.Unlock()

	v.logger.Debug("attendance table replaced", zap.Int("rows", len(rows)))
	for _, fn := range listeners {
		fn(slices.Clone(rows))
	}
	return true
}

// Rows returns the current table, one row per entry.
func (v *View) Rows() []types.AttendanceRow {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return toRows(v.entries)
}

// Version counts successful replaces.
func (v *View) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// SyncedAt is the time of the last successful replace.
func (v *View) SyncedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.syncedAt
}

// Render writes the current table to w.
func (v *View) Render(w io.Writer) error {
	return RenderRows(w, v.Rows())
}

// RenderRows writes rows as a tab-aligned TIME / NAME / STATUS table.
func RenderRows(w io.Writer, rows []types.AttendanceRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No attendance recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "TIME\tNAME\tSTATUS")
	fmt.Fprintln(tw, "----\t----\t------")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Time, r.Name, r.Status)
	}
	return tw.Flush()
}

func toRows(entries []types.AttendanceEntry) []types.AttendanceRow {
	rows := make([]types.AttendanceRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, types.AttendanceRow{Time: e.Time, Name: e.Name, Status: types.StatusPresent})
	}
	return rows
}
