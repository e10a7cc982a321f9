// Package pixbuf holds decoded pixels as a plain width × height × channels
// byte buffer, the shape handed to detectors and produced by renderers.
package pixbuf

import (
	"fmt"
	"image"
	"image/color"
)

// Buffer is an interleaved, row-major pixel buffer with 8 bits per channel.
//
// Supported channel layouts:
//   - 1: gray
//   - 2: gray + alpha
//   - 3: RGB
//   - 4: RGBA (straight alpha)
type Buffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// New allocates a zeroed buffer.
func New(width, height, channels int) *Buffer {
	return &Buffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// Validate checks that the dimensions agree with the backing slice.
func (b *Buffer) Validate() error {
	if b == nil {
		return fmt.Errorf("pixel buffer is nil")
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid pixel buffer size %dx%d", b.Width, b.Height)
	}
	if b.Channels < 1 || b.Channels > 4 {
		return fmt.Errorf("unsupported channel count %d", b.Channels)
	}
	if want := b.Width * b.Height * b.Channels; len(b.Pix) != want {
		return fmt.Errorf("pixel buffer holds %d bytes, expected %d", len(b.Pix), want)
	}
	return nil
}

// Bounds returns the buffer rectangle anchored at the origin.
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// RGB returns the color at (x, y) as 8-bit RGB, replicating gray channels.
func (b *Buffer) RGB(x, y int) (r, g, bl uint8) {
	i := (y*b.Width + x) * b.Channels
	switch b.Channels {
	case 1, 2:
		v := b.Pix[i]
		return v, v, v
	default:
		return b.Pix[i], b.Pix[i+1], b.Pix[i+2]
	}
}

// FromImage copies an image into a buffer. Gray images keep a single
// channel; every other color model becomes RGB with alpha dropped.
func FromImage(img image.Image) *Buffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch src := img.(type) {
	case *image.Gray:
		buf := New(w, h, 1)
		for y := 0; y < h; y++ {
			start := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(buf.Pix[y*w:(y+1)*w], src.Pix[start:start+w])
		}
		return buf
	case *image.Gray16:
		buf := New(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				buf.Pix[y*w+x] = uint8(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y >> 8)
			}
		}
		return buf
	case *image.RGBA:
		if src.Opaque() {
			return fromRGBAPix(src.Pix, src.Stride, src.PixOffset(bounds.Min.X, bounds.Min.Y), w, h)
		}
	case *image.NRGBA:
		return fromRGBAPix(src.Pix, src.Stride, src.PixOffset(bounds.Min.X, bounds.Min.Y), w, h)
	}

	buf := New(w, h, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			d := (y*w + x) * 3
			buf.Pix[d], buf.Pix[d+1], buf.Pix[d+2] = c.R, c.G, c.B
		}
	}
	return buf
}

// fromRGBAPix copies 4-byte pixels, dropping the alpha byte.
func fromRGBAPix(pix []uint8, stride, offset, w, h int) *Buffer {
	buf := New(w, h, 3)
	for y := 0; y < h; y++ {
		row := offset + y*stride
		for x := 0; x < w; x++ {
			s := row + x*4
			d := (y*w + x) * 3
			buf.Pix[d], buf.Pix[d+1], buf.Pix[d+2] = pix[s], pix[s+1], pix[s+2]
		}
	}
	return buf
}

// EnsureRGB returns a 3-channel view of the buffer. Single-channel and
// gray+alpha buffers are expanded by replicating the gray value, RGBA
// drops alpha. A buffer that is already RGB is returned unchanged.
func (b *Buffer) EnsureRGB() (*Buffer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if b.Channels == 3 {
		return b, nil
	}

	out := New(b.Width, b.Height, 3)
	n := b.Width * b.Height
	for i := 0; i < n; i++ {
		s := i * b.Channels
		d := i * 3
		switch b.Channels {
		case 1, 2:
			v := b.Pix[s]
			out.Pix[d], out.Pix[d+1], out.Pix[d+2] = v, v, v
		case 4:
			out.Pix[d], out.Pix[d+1], out.Pix[d+2] = b.Pix[s], b.Pix[s+1], b.Pix[s+2]
		}
	}
	return out, nil
}

// ToRGBA converts the buffer to an opaque *image.RGBA for drawing and encoding.
func (b *Buffer) ToRGBA() *image.RGBA {
	img := image.NewRGBA(b.Bounds())
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			r, g, bl := b.RGB(x, y)
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, bl, 0xff
		}
	}
	return img
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{Width: b.Width, Height: b.Height, Channels: b.Channels, Pix: make([]uint8, len(b.Pix))}
	copy(out.Pix, b.Pix)
	return out
}
