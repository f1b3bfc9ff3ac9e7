package render

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"

	"github.com/andresmejia3/kiosk/internal/types"
)

// Style controls how recognized faces are drawn.
type Style struct {
	Color       color.RGBA
	LineWidth   int
	Face        font.Face
	LabelOffset int // baseline distance below the box bottom
}

// DefaultStyle is a red 2px box with a 16px label 20px below the box.
func DefaultStyle() Style {
	return Style{
		Color:       color.RGBA{R: 255, A: 255},
		LineWidth:   2,
		Face:        inconsolata.Regular8x16,
		LabelOffset: 20,
	}
}

// DrawOverlay paints a box and a name label for every face onto img.
func DrawOverlay(img *image.RGBA, faces []types.FaceBox, style Style) {
	for _, f := range faces {
		r := f.Rect()
		strokeRect(img, r, style.LineWidth, style.Color)
		drawLabel(img, f.Name, image.Pt(r.Min.X, r.Max.Y+style.LabelOffset), style)
	}
}

// strokeRect draws the outline of r with the stroke centered on its edges.
func strokeRect(img *image.RGBA, r image.Rectangle, width int, c color.RGBA) {
	if width <= 0 {
		return
	}
	half := width / 2
	rest := width - half
	outer := image.Rect(r.Min.X-half, r.Min.Y-half, r.Max.X+rest, r.Max.Y+rest)
	inner := image.Rect(r.Min.X+rest, r.Min.Y+rest, r.Max.X-half, r.Max.Y-half)

	if inner.Empty() {
		fillRect(img, outer, c)
		return
	}
	fillRect(img, image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y), c) // top
	fillRect(img, image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y), c) // bottom
	fillRect(img, image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y), c) // left
	fillRect(img, image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y), c) // right
}

func fillRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	// Clip rect to image bounds to prevent panics
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}

	stride := img.Stride
	pix := img.Pix
	imgMinX, imgMinY := img.Rect.Min.X, img.Rect.Min.Y
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		rowStart := (y-imgMinY)*stride + (rect.Min.X-imgMinX)*4
		for x := 0; x < rect.Dx(); x++ {
			off := rowStart + x*4
			pix[off] = c.R
			pix[off+1] = c.G
			pix[off+2] = c.B
			pix[off+3] = c.A
		}
	}
}

func drawLabel(img *image.RGBA, text string, baseline image.Point, style Style) {
	if text == "" || style.Face == nil {
		return
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(style.Color),
		Face: style.Face,
		Dot:  fixed.P(baseline.X, baseline.Y),
	}
	d.DrawString(text)
}
