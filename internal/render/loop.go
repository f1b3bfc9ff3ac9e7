package render

import (
	"context"

	"github.com/andresmejia3/kiosk/internal/types"
)

// FrameSource hands out frames newer than a sequence number.
// Next blocks and returns nil once the source is closed.
type FrameSource interface {
	Next(after uint64) *types.Frame
}

// Run paints every frame src hands out, as fast as they arrive. Each paint
// schedules the next wait. It returns when src is closed or ctx is done,
// whichever is observed first.
func (s *Surface) Run(ctx context.Context, src FrameSource) error {
	var last uint64
	for {
		frame := src.Next(last)
		if frame == nil || ctx.Err() != nil {
			return nil
		}
		s.Paint(frame)
		last = frame.Seq
	}
}
