// Package overlay draws detection boxes and status text onto frames.
//
// All drawing is clipped to the destination bounds; coordinates outside the
// image are legal and simply draw nothing.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Colors used by the monitor overlays.
var (
	Red   = color.RGBA{R: 255, A: 255}
	Green = color.RGBA{G: 255, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Black = color.RGBA{A: 255}
)

// Box thicknesses for fall and non-fall detections.
const (
	FallThickness   = 3
	PersonThickness = 2
)

var face = basicfont.Face7x13

// TextHeight is the pixel height of one rendered label line.
const TextHeight = 13

// TextWidth returns the rendered width of s in pixels.
func TextWidth(s string) int {
	return font.MeasureString(face, s).Round()
}

// DrawBox outlines r with the given stroke thickness. The stroke is drawn
// inwards from the rectangle edge.
func DrawBox(img *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	if img == nil {
		return
	}
	r = r.Canon()
	if thickness < 1 {
		thickness = 1
	}
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	t := thickness
	if t > r.Dx() {
		t = r.Dx()
	}
	if t > r.Dy() {
		t = r.Dy()
	}

	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

// DrawLabel writes text with its baseline at (x, y) over a black backdrop.
func DrawLabel(img *image.RGBA, x, y int, text string, c color.Color) {
	if img == nil || text == "" {
		return
	}
	w := TextWidth(text)
	back := image.Rect(x-2, y-face.Ascent-2, x+w+2, y+face.Descent+2)
	draw.Draw(img, back.Intersect(img.Bounds()), image.NewUniform(Black), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// LabelAbove places text just above r, or inside its top edge when there is
// no room above.
func LabelAbove(img *image.RGBA, r image.Rectangle, text string, c color.Color) {
	r = r.Canon()
	y := r.Min.Y - 6
	if y-face.Ascent < 0 {
		y = r.Min.Y + face.Ascent + 4
	}
	DrawLabel(img, r.Min.X, y, text, c)
}

// LabelBelow places text just under r.
func LabelBelow(img *image.RGBA, r image.Rectangle, text string, c color.Color) {
	r = r.Canon()
	DrawLabel(img, r.Min.X, r.Max.Y+face.Ascent+4, text, c)
}

// Banner draws the monitor status line and the consecutive-frame counter in
// the top-left corner.
func Banner(img *image.RGBA, confirmed bool, consecutive int) {
	status, c := "Monitoring...", Green
	if confirmed {
		status, c = "FALL DETECTED!", Red
	}
	DrawLabel(img, 10, 24, status, c)
	DrawLabel(img, 10, 46, fmt.Sprintf("Consecutive frames: %d", consecutive), White)
}
