package detect

import (
	"fmt"
	"image"
	"math"
)

// Thresholds of the YOLOv8 reference predictor.
const (
	DefaultYOLOScore float32 = 0.25
	DefaultYOLOIoU   float64 = 0.45
)

// YOLOThresholds replaces the unset score and IoU thresholds with the predictor defaults.
func YOLOThresholds(minScore float32, iou float64) (float32, float64) {
	if minScore <= 0 {
		minScore = DefaultYOLOScore
	}
	if iou <= 0 {
		iou = DefaultYOLOIoU
	}
	return minScore, iou
}

// YOLOOutput describes the raw output tensor of a YOLOv8 style detection head.
// The tensor has the shape [1, 4+Classes, Anchors]: for every anchor the box center,
// width and height (in model input pixels) are followed by one score per class.
type YOLOOutput struct {
	Data    []float32
	Classes int
	Anchors int
}

// DecodeYOLO converts the raw model output into detections expressed in frame coordinates.
// scaleX and scaleY map model input pixels to frame pixels. Only the best scoring class
// of an anchor is considered and anchors below minScore are discarded.
func DecodeYOLO(out YOLOOutput, scaleX, scaleY float64, minScore float32, labels []string) ([]Detection, error) {
	rows := 4 + out.Classes
	if out.Classes <= 0 || out.Anchors <= 0 {
		return nil, fmt.Errorf("invalid output shape: %d classes, %d anchors", out.Classes, out.Anchors)
	}
	if len(out.Data) < rows*out.Anchors {
		return nil, fmt.Errorf("output tensor too short: got %d values, want %d", len(out.Data), rows*out.Anchors)
	}

	at := func(row, anchor int) float32 {
		return out.Data[row*out.Anchors+anchor]
	}

	var dets []Detection
	for i := 0; i < out.Anchors; i++ {
		best, score := -1, float32(-1)
		for c := 0; c < out.Classes; c++ {
			if s := at(4+c, i); s > score {
				best, score = c, s
			}
		}
		if score < minScore {
			continue
		}

		cx, cy := float64(at(0, i)), float64(at(1, i))
		w, h := float64(at(2, i)), float64(at(3, i))
		box := image.Rect(
			int(math.Round((cx-w/2)*scaleX)),
			int(math.Round((cy-h/2)*scaleY)),
			int(math.Round((cx+w/2)*scaleX)),
			int(math.Round((cy+h/2)*scaleY)),
		)
		dets = append(dets, Detection{
			Label:   LabelOf(labels, best),
			ClassID: best,
			Score:   score,
			Box:     box,
		})
	}
	return dets, nil
}
