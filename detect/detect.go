// Package detect defines the detection result shared by every model
// backend, together with the post-processing steps applied to raw model
// output: score filtering, box decoding and non-maximum suppression.
package detect

import (
	"fmt"
	"image"
	"sort"
)

// Detection is a single object found in a frame.
type Detection struct {
	Label   string          `json:"label"`
	ClassID int             `json:"class_id"`
	Score   float32         `json:"score"`
	Box     image.Rectangle `json:"box"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%s %.2f %v", d.Label, d.Score, d.Box)
}

// Detector runs a pretrained model over a single frame.
// Implementations must be safe for concurrent use by multiple goroutines.
type Detector interface {
	Detect(img image.Image) ([]Detection, error)
	Close() error
}

// IoU computes the intersection over union of two boxes.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := area(inter)
	union := area(a) + area(b) - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// NMS applies greedy non-maximum suppression on a per class basis:
// detections are visited in decreasing score order and a detection is dropped
// when it overlaps an already kept one of the same class by more than iouThreshold.
// The returned slice is sorted by decreasing score.
func NMS(dets []Detection, iouThreshold float64) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == d.ClassID && IoU(k.Box, d.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}

// Filter returns the detections with a score of at least minScore.
func Filter(dets []Detection, minScore float32) []Detection {
	res := dets[:0:0]
	for _, d := range dets {
		if d.Score >= minScore {
			res = append(res, d)
		}
	}
	return res
}

// Clip restricts every detection box to the bounds rectangle and drops empty boxes.
func Clip(dets []Detection, bounds image.Rectangle) []Detection {
	res := dets[:0:0]
	for _, d := range dets {
		d.Box = d.Box.Intersect(bounds)
		if !d.Box.Empty() {
			res = append(res, d)
		}
	}
	return res
}
