package detector

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"

	"github.com/anime-shed/defect-inspector-go/internal/pixbuf"
)

// fillInput resizes buf to size x size and writes it into dst as planar
// CHW float32 scaled to [0, 1].
func fillInput(buf *pixbuf.Buffer, size int, dst []float32) error {
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return fmt.Errorf("destination tensor only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	resized := resize.Resize(uint(size), uint(size), buf.ToRGBA(), resize.Lanczos3)

	if rgba, ok := resized.(*image.RGBA); ok {
		b := rgba.Bounds()
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[(y-b.Min.Y)*rgba.Stride:]
			for x := 0; x < size; x++ {
				red[i] = float32(row[x*4]) / 255.0
				green[i] = float32(row[x*4+1]) / 255.0
				blue[i] = float32(row[x*4+2]) / 255.0
				i++
			}
		}
		return nil
	}

	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}

// anchorCount is the number of YOLOv8 grid cells across strides 8, 16 and 32.
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		cells := size / stride
		n += cells * cells
	}
	return n
}
