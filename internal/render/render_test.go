package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/defect-inspector-go/internal/pixbuf"
)

func TestPlot_KeepsDimensionsAndChannels(t *testing.T) {
	tests := []struct {
		name     string
		src      *pixbuf.Buffer
		channels int
	}{
		{"rgb", pixbuf.New(640, 480, 3), 3},
		{"gray", pixbuf.New(200, 200, 1), 3},
		{"rgba", pixbuf.New(33, 17, 4), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Plot(tt.src, []Annotation{
				{ClassID: 3, Label: "stain", Confidence: 0.5, Rect: image.Rect(2, 2, 30, 15)},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.src.Width, out.Width)
			assert.Equal(t, tt.src.Height, out.Height)
			assert.Equal(t, tt.channels, out.Channels)
		})
	}
}

func TestPlot_DrawsBoxOutline(t *testing.T) {
	src := pixbuf.New(100, 100, 3)
	out, err := Plot(src, []Annotation{
		{ClassID: 0, Label: "hole", Confidence: 0.9, Rect: image.Rect(20, 40, 80, 90)},
	})
	require.NoError(t, err)

	want := ClassColor(0)
	r, g, b := out.RGB(20, 70)
	assert.Equal(t, [3]uint8{want.R, want.G, want.B}, [3]uint8{r, g, b}, "left edge")

	r, g, b = out.RGB(79, 89)
	assert.Equal(t, [3]uint8{want.R, want.G, want.B}, [3]uint8{r, g, b}, "bottom right corner")

	r, g, b = out.RGB(50, 70)
	assert.Equal(t, [3]uint8{0, 0, 0}, [3]uint8{r, g, b}, "interior untouched")

	// label background sits above the box
	r, g, b = out.RGB(21, 38)
	assert.NotEqual(t, [3]uint8{0, 0, 0}, [3]uint8{r, g, b})
}

func TestPlot_NoAnnotationsCopiesSource(t *testing.T) {
	src := pixbuf.New(4, 4, 3)
	src.Pix[0] = 9

	out, err := Plot(src, nil)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out.Pix)

	out.Pix[0] = 1
	assert.Equal(t, uint8(9), src.Pix[0])
}

func TestPlot_OutOfBoundsBoxIsSkipped(t *testing.T) {
	src := pixbuf.New(10, 10, 3)
	out, err := Plot(src, []Annotation{{Rect: image.Rect(50, 50, 60, 60)}})
	require.NoError(t, err)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestPlot_InvalidSource(t *testing.T) {
	_, err := Plot(&pixbuf.Buffer{Width: 2, Height: 2, Channels: 3}, nil)
	assert.Error(t, err)
}

func TestLineWidth(t *testing.T) {
	assert.Equal(t, 2, LineWidth(100, 100))
	assert.Equal(t, 2, LineWidth(640, 480))
	assert.Equal(t, 6, LineWidth(2000, 2000))
}

func TestClassColor(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0xFF, G: 0x38, B: 0x38, A: 255}, ClassColor(0))
	assert.Equal(t, ClassColor(1), ClassColor(1+len(paletteHex)))
	assert.Equal(t, ClassColor(2), ClassColor(-2))
}

func TestTextColor(t *testing.T) {
	assert.Equal(t, color.White, textColor(color.RGBA{A: 255}))
	assert.Equal(t, color.Black, textColor(color.RGBA{R: 255, G: 255, B: 255, A: 255}))
}
