package detect

import (
	"errors"
	"fmt"
	"image"

	pigo "github.com/esimov/pigo/core"
	"github.com/vidscope/vidscope/utils"
)

// FaceCascadeURL points to the pretrained frontal face cascade shipped with pigo.
const FaceCascadeURL = "https://raw.githubusercontent.com/esimov/pigo/master/cascade/facefinder"

// FaceParams holds the tuning knobs of the pigo classifier.
type FaceParams struct {
	MinSize     int     // minimum face size in pixels
	MaxSize     int     // maximum face size in pixels, 0 means the frame's longest edge
	ShiftFactor float64 // how much the detection window moves, relative to its size
	ScaleFactor float64 // detection window growth between scales
	Angle       float64 // 0.0 is 0 radians and 1.0 is 2*pi radians
	IoU         float64 // intersection over union used to cluster detections
	MinScore    float32 // detections with a lower quality are dropped
}

// DefaultFaceParams returns the values used by pigo's own examples.
func DefaultFaceParams() FaceParams {
	return FaceParams{
		MinSize:     20,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		IoU:         0.2,
		MinScore:    5.0,
	}
}

// withDefaults replaces the unset values with the DefaultFaceParams ones.
func (p FaceParams) withDefaults() FaceParams {
	def := DefaultFaceParams()
	if p.MinSize <= 0 {
		p.MinSize = def.MinSize
	}
	if p.ShiftFactor <= 0 {
		p.ShiftFactor = def.ShiftFactor
	}
	if p.ScaleFactor <= 1 {
		p.ScaleFactor = def.ScaleFactor
	}
	if p.IoU <= 0 {
		p.IoU = def.IoU
	}
	if p.MinScore <= 0 {
		p.MinScore = def.MinScore
	}
	return p
}

// FaceDetector finds faces using the pigo pixel intensity comparison cascade.
type FaceDetector struct {
	Params     FaceParams
	classifier *pigo.Pigo
}

var _ Detector = (*FaceDetector)(nil)

// NewFaceDetector unpacks the binary cascade file. This returns the number of cascade trees,
// the tree depth, the threshold and the prediction from tree's leaf nodes.
// Zero valued params fall back to DefaultFaceParams.
func NewFaceDetector(cascade []byte, params FaceParams) (fd *FaceDetector, err error) {
	if len(cascade) < 8 {
		return nil, errors.New("the cascade file is too short")
	}
	defer func() {
		// Unpack does no bounds checking of its own on a truncated file.
		if r := recover(); r != nil {
			fd, err = nil, fmt.Errorf("error unpacking the cascade file: %v", r)
		}
	}()

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the cascade file: %w", err)
	}
	return &FaceDetector{Params: params.withDefaults(), classifier: classifier}, nil
}

// Detect runs the cascade over the grayscale converted frame.
func (fd *FaceDetector) Detect(img image.Image) ([]Detection, error) {
	pixels, cols, rows := grayscale(img)

	maxSize := fd.Params.MaxSize
	if maxSize <= 0 {
		maxSize = utils.Max(cols, rows)
	}
	cParams := pigo.CascadeParams{
		MinSize:     fd.Params.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: fd.Params.ShiftFactor,
		ScaleFactor: fd.Params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	// The result contains quadruplets representing the row, column, scale and detection score.
	faces := fd.classifier.RunCascade(cParams, fd.Params.Angle)
	faces = fd.classifier.ClusterDetections(faces, fd.Params.IoU)

	bounds := image.Rect(0, 0, cols, rows).Add(img.Bounds().Min)
	dets := make([]Detection, 0, len(faces))
	for _, f := range faces {
		dets = append(dets, faceToDetection(f, img.Bounds().Min))
	}
	return Clip(Filter(dets, fd.Params.MinScore), bounds), nil
}

// Close implements Detector. The classifier holds no external resources.
func (fd *FaceDetector) Close() error { return nil }

// faceToDetection converts the pigo center/scale representation into a box.
func faceToDetection(f pigo.Detection, origin image.Point) Detection {
	half := f.Scale / 2
	return Detection{
		Label: "face",
		Score: f.Q,
		Box:   image.Rect(f.Col-half, f.Row-half, f.Col+half, f.Row+half).Add(origin),
	}
}
