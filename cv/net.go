package cv

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/vidscope/vidscope/detect"
	"gocv.io/x/gocv"
)

// InputSize is the square input resolution of the YOLOv8 models.
const InputSize = 640

// NetParams configures the network detector.
type NetParams struct {
	Labels   []string
	MinScore float32
	IoU      float64
	// CUDA runs the inference on the GPU when OpenCV was built with CUDA support.
	CUDA bool
}

// DefaultNetParams returns the thresholds used by the YOLOv8 reference predictor.
func DefaultNetParams() NetParams {
	return NetParams{
		Labels:   detect.COCOLabels,
		MinScore: detect.DefaultYOLOScore,
		IoU:      detect.DefaultYOLOIoU,
	}
}

// NetDetector runs a YOLOv8 ONNX model through the OpenCV dnn module.
type NetDetector struct {
	Params NetParams

	mu     sync.Mutex
	net    gocv.Net
	closed bool
}

var _ detect.Detector = (*NetDetector)(nil)

// NewNetDetector loads an ONNX model from disk.
// Zero thresholds and empty labels fall back to DefaultNetParams.
func NewNetDetector(model string, params NetParams) (*NetDetector, error) {
	net := gocv.ReadNetFromONNX(model)
	if net.Empty() {
		return nil, fmt.Errorf("unable to load the model %s", model)
	}

	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if params.CUDA {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}
	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, fmt.Errorf("unable to set the dnn backend: %w", err)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, fmt.Errorf("unable to set the dnn target: %w", err)
	}
	if len(params.Labels) == 0 {
		params.Labels = detect.COCOLabels
	}
	params.MinScore, params.IoU = detect.YOLOThresholds(params.MinScore, params.IoU)
	return &NetDetector{Params: params, net: net}, nil
}

// Detect runs a forward pass over the frame. The network is not safe for
// concurrent use, so concurrent calls are serialized.
func (nd *NetDetector) Detect(img image.Image) ([]detect.Detection, error) {
	frame, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("unable to convert the frame: %w", err)
	}
	defer frame.Close()

	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(InputSize, InputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	nd.mu.Lock()
	if nd.closed {
		nd.mu.Unlock()
		return nil, errors.New("detect on a closed network")
	}
	nd.net.SetInput(blob, "")
	output := nd.net.Forward("")
	nd.mu.Unlock()
	defer output.Close()

	shape := output.Size()
	if len(shape) != 3 || shape[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	scaleX := float64(b.Dx()) / InputSize
	scaleY := float64(b.Dy()) / InputSize
	dets, err := detect.DecodeYOLO(detect.YOLOOutput{
		Data:    data,
		Classes: shape[1] - 4,
		Anchors: shape[2],
	}, scaleX, scaleY, nd.Params.MinScore, nd.Params.Labels)
	if err != nil {
		return nil, err
	}
	dets = detect.NMS(dets, nd.Params.IoU)
	return detect.Clip(dets, image.Rect(0, 0, b.Dx(), b.Dy())), nil
}

// Close releases the network.
func (nd *NetDetector) Close() error {
	nd.mu.Lock()
	defer nd.mu.Unlock()

	if nd.closed {
		return nil
	}
	nd.closed = true
	return nd.net.Close()
}
