// Package render draws detection boxes and labels onto an image.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/anime-shed/defect-inspector-go/internal/pixbuf"
)

// Annotation is one box to draw.
type Annotation struct {
	ClassID    int
	Label      string
	Confidence float32
	Rect       image.Rectangle
}

// Ultralytics default palette, indexed by class id.
var paletteHex = []string{
	"#FF3838", "#FF9D97", "#FF701F", "#FFB21D", "#CFD231", "#48F90A", "#92CC17",
	"#3DDB86", "#1A9334", "#00D4BB", "#2C99A8", "#00C2FF", "#344593", "#6473FF",
	"#0018EC", "#8438FF", "#520085", "#CB38FF", "#FF95C8", "#FF37C7",
}

var palette = mustPalette(paletteHex)

func mustPalette(hexes []string) []color.RGBA {
	out := make([]color.RGBA, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(fmt.Sprintf("invalid palette color %q: %v", h, err))
		}
		r, g, b := c.RGB255()
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

// ClassColor returns the box color for a class id.
func ClassColor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// textColor picks black or white, whichever reads better on bg.
func textColor(bg color.RGBA) color.Color {
	c, _ := colorful.MakeColor(bg)
	_, _, l := c.Hcl()
	if l > 0.7 {
		return color.Black
	}
	return color.White
}

// LineWidth scales the stroke with the image size, never below 2px.
func LineWidth(width, height int) int {
	lw := int(math.Round(float64(width+height) / 2 * 0.003))
	if lw < 2 {
		return 2
	}
	return lw
}

// Plot returns an RGB copy of src with every annotation drawn on it. The
// output has the same dimensions as the source.
func Plot(src *pixbuf.Buffer, annotations []Annotation) (*pixbuf.Buffer, error) {
	rgb, err := src.EnsureRGB()
	if err != nil {
		return nil, err
	}

	canvas := rgb.ToRGBA()
	lw := LineWidth(rgb.Width, rgb.Height)
	for _, a := range annotations {
		drawAnnotation(canvas, a, lw)
	}

	return pixbuf.FromImage(canvas).EnsureRGB()
}

func drawAnnotation(canvas *image.RGBA, a Annotation, lw int) {
	box := a.Rect.Intersect(canvas.Bounds())
	if box.Empty() {
		return
	}
	col := ClassColor(a.ClassID)
	strokeRect(canvas, box, lw, col)

	label := fmt.Sprintf("%s %.2f", a.Label, a.Confidence)
	face := basicfont.Face7x13
	textW := font.MeasureString(face, label).Ceil()
	textH := face.Metrics().Height.Ceil()
	pad := 2

	// Above the box when it fits, inside otherwise.
	top := box.Min.Y - textH - 2*pad
	if top < canvas.Bounds().Min.Y {
		top = box.Min.Y
	}
	bg := image.Rect(box.Min.X, top, box.Min.X+textW+2*pad, top+textH+2*pad).Intersect(canvas.Bounds())
	draw.Draw(canvas, bg, image.NewUniform(col), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(textColor(col)),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(box.Min.X + pad), Y: fixed.I(top + pad + face.Metrics().Ascent.Ceil())},
	}
	d.DrawString(label)
}

func strokeRect(canvas *image.RGBA, r image.Rectangle, lw int, col color.RGBA) {
	u := image.NewUniform(col)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+lw),
		image.Rect(r.Min.X, r.Max.Y-lw, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+lw, r.Max.Y),
		image.Rect(r.Max.X-lw, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(canvas, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}
