package detector

import (
	"fmt"
	"math"
	"sort"
)

// decodeOutput reads a YOLOv8 head of shape (1, 4+numClasses, anchors).
// The tensor is feature-major: feature f of anchor a sits at f*anchors+a.
// Boxes are scaled from model space to a width x height image and clamped.
func decodeOutput(output []float32, numClasses, anchors int, width, height, inputSize int, threshold float32, names []string) ([]Box, error) {
	if numClasses <= 0 || anchors <= 0 {
		return nil, fmt.Errorf("invalid output geometry: %d classes, %d anchors", numClasses, anchors)
	}
	if want := (4 + numClasses) * anchors; len(output) < want {
		return nil, fmt.Errorf("output tensor holds %d floats, needs %d", len(output), want)
	}

	scaleX := float32(width) / float32(inputSize)
	scaleY := float32(height) / float32(inputSize)

	var boxes []Box
	for idx := 0; idx < anchors; idx++ {
		classID := 0
		prob := float32(math.Inf(-1))
		for col := 0; col < numClasses; col++ {
			p := output[anchors*(col+4)+idx]
			if p > prob {
				prob = p
				classID = col
			}
		}
		if prob < threshold {
			continue
		}

		xc := output[idx]
		yc := output[anchors+idx]
		w := output[2*anchors+idx]
		h := output[3*anchors+idx]

		boxes = append(boxes, Box{
			ClassID:    classID,
			Label:      className(names, classID),
			Confidence: prob,
			X1:         clamp((xc-w/2)*scaleX, float32(width)),
			Y1:         clamp((yc-h/2)*scaleY, float32(height)),
			X2:         clamp((xc+w/2)*scaleX, float32(width)),
			Y2:         clamp((yc+h/2)*scaleY, float32(height)),
		})
	}
	return boxes, nil
}

func clamp(v, limit float32) float32 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

func className(names []string, id int) string {
	if id >= 0 && id < len(names) && names[id] != "" {
		return names[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// nonMaxSuppression keeps the highest scoring box of every overlapping
// same-class group. Output is sorted by descending confidence.
func nonMaxSuppression(boxes []Box, threshold float32) []Box {
	sorted := make([]Box, len(boxes))
	copy(sorted, boxes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Box, 0, len(sorted))
	for _, candidate := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == candidate.ClassID && iou(k, candidate) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func area(b Box) float32 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func iou(a, b Box) float32 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	inter := area(Box{X1: x1, Y1: y1, X2: x2, Y2: y2})
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
