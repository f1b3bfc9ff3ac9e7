package render

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"slices"
	"sync"

	"github.com/andresmejia3/kiosk/internal/types"
)

const pngDataURLPrefix = "data:image/png;base64,"

var pngEncoder = png.Encoder{CompressionLevel: png.BestSpeed}

// Surface owns the display canvas. The base layer is replaced by every paint;
// an overlay queued between two paints is composited onto the next one and is
// gone after the paint that follows.
type Surface struct {
	style Style

	mu         sync.Mutex
	canvas     *image.RGBA
	pending    []types.FaceBox
	hasPending bool
	visible    []types.FaceBox
	lastFrame  uint64
	paints     uint64
	overlays   uint64
	painted    chan struct{}
}

func NewSurface(width, height int) *Surface {
	return NewSurfaceWithStyle(width, height, DefaultStyle())
}

func NewSurfaceWithStyle(width, height int, style Style) *Surface {
	return &Surface{
		style:   style,
		canvas:  image.NewRGBA(image.Rect(0, 0, width, height)),
		painted: make(chan struct{}),
	}
}

// Bounds returns the canvas rectangle.
func (s *Surface) Bounds() image.Rectangle {
	return s.canvas.Rect
}

// Paint draws frame as the base layer and composites the pending overlay on
// top of it. Nil or mismatched frames are ignored and report false.
func (s *Surface) Paint(frame *types.Frame) bool {
	if frame == nil || frame.Width != s.canvas.Rect.Dx() || frame.Height != s.canvas.Rect.Dy() {
		return false
	}
	if len(frame.Pix) < len(s.canvas.Pix) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.canvas.Pix, frame.Pix)

	s.visible = nil
	if s.hasPending {
		DrawOverlay(s.canvas, s.pending, s.style)
		s.visible = s.pending
		s.pending = nil
		s.hasPending = false
		if len(s.visible) > 0 {
			s.overlays++
		}
	}

	s.lastFrame = frame.Seq
	s.paints++
	close(s.painted)
	s.painted = make(chan struct{})
	return true
}

// QueueOverlay stages faces for the next paint, replacing anything staged earlier.
func (s *Surface) QueueOverlay(faces []types.FaceBox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = slices.Clone(faces)
	s.hasPending = true
}

// Overlay returns the faces composited onto the currently visible canvas.
func (s *Surface) Overlay() []types.FaceBox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.visible)
}

// Painted returns a channel closed by the next paint.
func (s *Surface) Painted() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.painted
}

// Snapshot copies the visible canvas.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := image.NewRGBA(s.canvas.Rect)
	copy(img.Pix, s.canvas.Pix)
	return img
}

// EncodePNG writes the visible canvas as a lossless PNG.
func (s *Surface) EncodePNG(w io.Writer) error {
	return pngEncoder.Encode(w, s.Snapshot())
}

// EncodeJPEG writes the visible canvas as a JPEG.
func (s *Surface) EncodeJPEG(w io.Writer, quality int) error {
	return jpeg.Encode(w, s.Snapshot(), &jpeg.Options{Quality: quality})
}

// DataURL encodes the visible canvas as a base64 PNG data URL.
func (s *Surface) DataURL() (string, error) {
	var buf bytes.Buffer
	if err := s.EncodePNG(&buf); err != nil {
		return "", err
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Stats reports paint counters.
type Stats struct {
	Paints    uint64 `json:"paints"`
	Overlays  uint64 `json:"overlays"`
	LastFrame uint64 `json:"last_frame"`
}

func (s *Surface) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Paints: s.paints, Overlays: s.overlays, LastFrame: s.lastFrame}
}
