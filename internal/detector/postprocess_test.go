package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type anchor struct {
	xc, yc, w, h float32
	scores       []float32
}

// headOutput lays anchors out the way a YOLOv8 head does: feature-major.
func headOutput(numClasses int, anchors []anchor) []float32 {
	n := len(anchors)
	out := make([]float32, (4+numClasses)*n)
	for i, a := range anchors {
		out[i] = a.xc
		out[n+i] = a.yc
		out[2*n+i] = a.w
		out[3*n+i] = a.h
		for c, s := range a.scores {
			out[(4+c)*n+i] = s
		}
	}
	return out
}

func TestDecodeOutput(t *testing.T) {
	output := headOutput(2, []anchor{
		{320, 320, 64, 64, []float32{0.9, 0.1}},
		{330, 320, 64, 64, []float32{0.8, 0.05}},
		{100, 100, 20, 40, []float32{0.1, 0.2}},
		{320, 320, 64, 64, []float32{0.3, 0.6}},
	})

	boxes, err := decodeOutput(output, 2, 4, 1280, 960, 640, 0.25, []string{"hole", "stain"})
	require.NoError(t, err)
	require.Len(t, boxes, 3)

	first := boxes[0]
	assert.Equal(t, 0, first.ClassID)
	assert.Equal(t, "hole", first.Label)
	assert.InDelta(t, 0.9, first.Confidence, 1e-6)
	assert.InDelta(t, 576, first.X1, 1e-3)
	assert.InDelta(t, 432, first.Y1, 1e-3)
	assert.InDelta(t, 704, first.X2, 1e-3)
	assert.InDelta(t, 528, first.Y2, 1e-3)

	assert.Equal(t, "stain", boxes[2].Label)
	assert.Equal(t, 1, boxes[2].ClassID)
}

func TestDecodeOutput_ClampsToImage(t *testing.T) {
	output := headOutput(1, []anchor{{5, 635, 40, 40, []float32{0.99}}})

	boxes, err := decodeOutput(output, 1, 1, 640, 640, 640, 0.25, nil)
	require.NoError(t, err)
	require.Len(t, boxes, 1)

	b := boxes[0]
	assert.Equal(t, float32(0), b.X1)
	assert.Equal(t, float32(640), b.Y2)
	assert.Equal(t, "class_0", b.Label)
}

func TestDecodeOutput_Errors(t *testing.T) {
	_, err := decodeOutput(make([]float32, 10), 0, 2, 10, 10, 640, 0.25, nil)
	assert.Error(t, err)

	_, err = decodeOutput(make([]float32, 10), 2, 8400, 10, 10, 640, 0.25, nil)
	assert.Error(t, err)
}

func TestNonMaxSuppression(t *testing.T) {
	boxes := []Box{
		{ClassID: 0, Confidence: 0.8, X1: 298, Y1: 288, X2: 362, Y2: 352},
		{ClassID: 0, Confidence: 0.9, X1: 288, Y1: 288, X2: 352, Y2: 352},
		{ClassID: 1, Confidence: 0.6, X1: 288, Y1: 288, X2: 352, Y2: 352},
		{ClassID: 0, Confidence: 0.5, X1: 0, Y1: 0, X2: 10, Y2: 10},
	}

	kept := nonMaxSuppression(boxes, 0.7)
	require.Len(t, kept, 3)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-6)
	assert.Equal(t, 1, kept[1].ClassID)
	assert.InDelta(t, 0.5, kept[2].Confidence, 1e-6)

	// input order is untouched
	assert.InDelta(t, 0.8, boxes[0].Confidence, 1e-6)
}

func TestIoU(t *testing.T) {
	a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}

	tests := []struct {
		name string
		b    Box
		want float32
	}{
		{"identical", a, 1},
		{"disjoint", Box{X1: 20, Y1: 20, X2: 30, Y2: 30}, 0},
		{"half overlap", Box{X1: 5, Y1: 0, X2: 15, Y2: 10}, 50.0 / 150.0},
		{"degenerate", Box{X1: 3, Y1: 3, X2: 3, Y2: 3}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, iou(a, tt.b), 1e-6)
		})
	}
}

func TestAnchorCount(t *testing.T) {
	assert.Equal(t, 8400, anchorCount(640))
	assert.Equal(t, 2100, anchorCount(320))
}
