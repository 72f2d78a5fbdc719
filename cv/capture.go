// Package cv provides the OpenCV backed video capture, video writer and
// neural network detector.
package cv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/vidscope/vidscope"
	"gocv.io/x/gocv"
)

// Capture reads the frames of a video file or stream through OpenCV.
type Capture struct {
	vc   *gocv.VideoCapture
	mat  gocv.Mat
	info vidscope.StreamInfo
	mu   sync.Mutex
}

var _ vidscope.Capture = (*Capture)(nil)

// Open opens a video-capture handle on a local file or a URL understood by OpenCV.
func Open(ctx context.Context, uri string) (vidscope.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := gocv.VideoCaptureFile(uri)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", uri, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("unable to open %s", uri)
	}

	return &Capture{
		vc:  vc,
		mat: gocv.NewMat(),
		info: vidscope.StreamInfo{
			Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
			FPS:    vc.Get(gocv.VideoCaptureFPS),
			Frames: int(vc.Get(gocv.VideoCaptureFrameCount)),
		},
	}, nil
}

// Info returns the stream geometry reported by OpenCV.
func (c *Capture) Info() vidscope.StreamInfo {
	return c.info
}

// Read grabs and decodes the next frame. It returns io.EOF once the stream is exhausted.
func (c *Capture) Read() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil, errors.New("read on a closed capture")
	}
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, io.EOF
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("unable to convert the frame: %w", err)
	}
	return img, nil
}

// Close releases the capture handle and the frame buffer.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.mat.Close()
	c.vc = nil
	return err
}
