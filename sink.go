package vidscope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/vidscope/vidscope/detect"
	"github.com/vidscope/vidscope/utils"
)

// FrameResult is a processed frame. Results reach the sinks in stream order.
type FrameResult struct {
	// Index is the position of the frame in the stream.
	Index int
	// Seq is the position of the frame among the processed ones.
	Seq        int
	Timestamp  time.Duration
	Image      *image.NRGBA
	Detections []detect.Detection
}

// Sink consumes processed frames. Consume is never called concurrently.
type Sink interface {
	Consume(res *FrameResult) error
	Close() error
}

// Starter is implemented by the sinks which need the stream geometry before the first frame.
// The info passed to Start describes the processed frames, so its frame rate
// and frame count already account for the stride.
type Starter interface {
	Start(ctx context.Context, info StreamInfo) error
}

// VideoSink encodes the annotated frames into a new video file.
type VideoSink struct {
	open WriterOpener
	path string
	w    FrameWriter
}

var _ Starter = (*VideoSink)(nil)

// NewVideoSink returns a sink writing to path. The writer is opened by Start.
func NewVideoSink(open WriterOpener, path string) *VideoSink {
	return &VideoSink{open: open, path: path}
}

// Start opens the writer with the geometry of the processed stream.
func (s *VideoSink) Start(ctx context.Context, info StreamInfo) error {
	w, err := s.open(ctx, s.path, info)
	if err != nil {
		return fmt.Errorf("unable to create the destination video: %w", err)
	}
	s.w = w
	return nil
}

func (s *VideoSink) Consume(res *FrameResult) error {
	if s.w == nil {
		return errors.New("the video writer has not been started")
	}
	return s.w.Write(res.Image)
}

func (s *VideoSink) Close() error {
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}

// PreviewSink forwards frames, scaled to the display size, to a preview window.
// Frames are dropped while the window is busy, so a slow display never stalls processing.
type PreviewSink struct {
	width, height int
	frames        chan image.Image
	closeOnce     sync.Once
}

// NewPreviewSink returns a preview sink whose frames fit in width x height.
func NewPreviewSink(width, height int) *PreviewSink {
	return &PreviewSink{
		width:  width,
		height: height,
		frames: make(chan image.Image, 1),
	}
}

// Frames returns the channel the preview window reads from. It is closed by Close.
// Consume must not be called after Close.
func (s *PreviewSink) Frames() <-chan image.Image {
	return s.frames
}

func (s *PreviewSink) Consume(res *FrameResult) error {
	var img image.Image = res.Image
	if b := res.Image.Bounds(); b.Dx() > s.width || b.Dy() > s.height {
		img = imaging.Fit(res.Image, s.width, s.height, imaging.Linear)
	}
	select {
	case s.frames <- img:
	default:
	}
	return nil
}

func (s *PreviewSink) Close() error {
	s.closeOnce.Do(func() { close(s.frames) })
	return nil
}

// SnapshotSink saves every frame holding at least one detection as an image file.
type SnapshotSink struct {
	dir   string
	ext   string
	saved int
}

// NewSnapshotSink creates dir if needed. The image format is chosen by ext (.jpg, .png or .bmp).
func NewSnapshotSink(dir, ext string) (*SnapshotSink, error) {
	ext, err := snapshotExt(ext)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create the snapshot directory: %w", err)
	}
	return &SnapshotSink{dir: dir, ext: ext}, nil
}

// snapshotExt normalizes the extension to a lower-case dotted form, ".jpg" when empty.
func snapshotExt(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".jpg", nil
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	switch ext {
	case ".jpg", ".jpeg", ".png", ".bmp":
		return ext, nil
	}
	return "", fmt.Errorf("%v file type not supported", ext)
}

func (s *SnapshotSink) Consume(res *FrameResult) error {
	if len(res.Detections) == 0 {
		return nil
	}
	name := filepath.Join(s.dir, fmt.Sprintf("frame_%06d%s", res.Index, s.ext))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("unable to create the snapshot file: %w", err)
	}
	if err := utils.EncodeImage(f, res.Image, s.ext); err != nil {
		f.Close()
		return err
	}
	s.saved++
	return f.Close()
}

// Saved returns the number of snapshots written so far.
func (s *SnapshotSink) Saved() int {
	return s.saved
}

func (s *SnapshotSink) Close() error { return nil }

// ResultsSink writes one JSON object per processed frame.
type ResultsSink struct {
	c   io.Closer
	enc *json.Encoder
}

type boxRecord struct {
	Label   string  `json:"label"`
	ClassID int     `json:"class_id"`
	Score   float32 `json:"score"`
	Box     [4]int  `json:"box"`
}

type frameRecord struct {
	Frame      int         `json:"frame"`
	Seq        int         `json:"seq"`
	TimeMS     int64       `json:"time_ms"`
	Detections []boxRecord `json:"detections"`
}

// NewResultsSink writes JSON lines to w. When w is an io.Closer it is closed with the sink.
func NewResultsSink(w io.Writer) *ResultsSink {
	s := &ResultsSink{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok && w != os.Stdout {
		s.c = c
	}
	return s
}

func (s *ResultsSink) Consume(res *FrameResult) error {
	rec := frameRecord{
		Frame:      res.Index,
		Seq:        res.Seq,
		TimeMS:     res.Timestamp.Milliseconds(),
		Detections: make([]boxRecord, 0, len(res.Detections)),
	}
	for _, d := range res.Detections {
		rec.Detections = append(rec.Detections, boxRecord{
			Label:   d.Label,
			ClassID: d.ClassID,
			Score:   d.Score,
			Box:     [4]int{d.Box.Min.X, d.Box.Min.Y, d.Box.Max.X, d.Box.Max.Y},
		})
	}
	return s.enc.Encode(rec)
}

func (s *ResultsSink) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}
