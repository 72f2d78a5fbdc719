package vidscope

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"
)

// StreamInfo describes the geometry and timing of a video stream.
type StreamInfo struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
	// Frames is the announced number of frames, 0 when unknown (e.g. live streams).
	Frames int `json:"frames"`
}

// Duration returns the announced stream length, 0 when unknown.
func (si StreamInfo) Duration() time.Duration {
	if si.FPS <= 0 || si.Frames <= 0 {
		return 0
	}
	return time.Duration(float64(si.Frames) / si.FPS * float64(time.Second))
}

// Timestamp returns the presentation time of the frame with the given index.
func (si StreamInfo) Timestamp(index int) time.Duration {
	if si.FPS <= 0 || math.IsInf(si.FPS, 0) {
		return 0
	}
	return time.Duration(float64(index) / si.FPS * float64(time.Second))
}

// Validate reports an error for streams without usable frame dimensions.
func (si StreamInfo) Validate() error {
	if si.Width <= 0 || si.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", si.Width, si.Height)
	}
	return nil
}

func (si StreamInfo) String() string {
	s := fmt.Sprintf("%dx%d @ %.2f fps", si.Width, si.Height, si.FPS)
	if si.Frames > 0 {
		s += fmt.Sprintf(", %d frames", si.Frames)
	}
	return s
}

// Capture is an open video-capture handle.
type Capture interface {
	// Read returns the next decoded frame, or io.EOF after the last one.
	Read() (image.Image, error)
	Info() StreamInfo
	Close() error
}

// Opener opens a capture handle on a local path or URL.
type Opener func(ctx context.Context, uri string) (Capture, error)

// FrameWriter encodes frames into a video file.
type FrameWriter interface {
	Write(img image.Image) error
	Close() error
}

// WriterOpener creates a FrameWriter producing a video with the given geometry.
type WriterOpener func(ctx context.Context, path string, info StreamInfo) (FrameWriter, error)
