package cv

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/vidscope/vidscope"
	"gocv.io/x/gocv"
)

// defaultFPS is used when the source does not report its frame rate.
const defaultFPS = 25

// Writer encodes frames into a video file through OpenCV.
type Writer struct {
	vw *gocv.VideoWriter
}

// Create opens a video writer. The codec is chosen from the file extension.
func Create(ctx context.Context, path string, info vidscope.StreamInfo) (vidscope.FrameWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fps := info.FPS
	if fps <= 0 {
		fps = defaultFPS
	}
	vw, err := gocv.VideoWriterFile(path, fourcc(path), fps, info.Width, info.Height, true)
	if err != nil {
		return nil, fmt.Errorf("unable to create the video writer: %w", err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("unable to open %s for writing", path)
	}
	return &Writer{vw: vw}, nil
}

// Write encodes one frame.
func (w *Writer) Write(img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("unable to convert the frame: %w", err)
	}
	defer mat.Close()

	return w.vw.Write(mat)
}

// Close flushes and closes the video file.
func (w *Writer) Close() error {
	return w.vw.Close()
}

func fourcc(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".avi":
		return "MJPG"
	case ".webm":
		return "VP80"
	case ".mkv":
		return "X264"
	default:
		return "mp4v"
	}
}
