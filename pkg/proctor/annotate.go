package proctor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	colorOK   = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
	colorBad  = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
	colorText = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// Annotator draws the human-facing overlay. It reads FrameMetrics only and
// never feeds back into detection.
type Annotator struct {
	face font.Face
}

func NewAnnotator() *Annotator {
	return &Annotator{face: basicfont.Face7x13}
}

func (a *Annotator) Annotate(img image.Image, face *image.Rectangle, m FrameMetrics) *image.NRGBA {
	canvas := imaging.Clone(img)
	bounds := canvas.Bounds()

	if face != nil {
		strokeRect(canvas, *face, colorOK, 2)
	}

	status, statusColor := "OK", colorOK
	if m.ViolationCount > 0 {
		status, statusColor = fmt.Sprintf("! %d Issues", m.ViolationCount), colorBad
	}
	a.text(canvas, status, bounds.Dx()-150, 30, statusColor)

	y := 30
	for _, v := range m.CurrentViolations {
		a.text(canvas, "- "+v, 10, y, colorBad)
		y += 20
	}

	stats := fmt.Sprintf("Violations: %d | Rate: %.1f%%", m.ViolationsBreakdown.Total(), m.TotalViolationRate)
	a.text(canvas, stats, 10, bounds.Dy()-40, colorText)

	elapsed := fmt.Sprintf("Time: %.1fs | Frames: %d", m.SessionDuration, m.TotalFrames)
	a.text(canvas, elapsed, 10, bounds.Dy()-20, colorText)

	return canvas
}

func (a *Annotator) text(dst draw.Image, s string, x, y int, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: a.face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func strokeRect(dst draw.Image, r image.Rectangle, c color.Color, thickness int) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}
