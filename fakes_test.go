package vidscope

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vidscope/vidscope/detect"
)

// mp4Header is the smallest ftyp box recognized as video/mp4 by the content sniffer.
var mp4Header = append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypmp42\x00\x00\x00\x00mp42isom")...)

func sampleVideo() []byte {
	return append(append([]byte{}, mp4Header...), make([]byte, 512)...)
}

// fakeCapture serves solid color frames whose red channel holds the frame index.
type fakeCapture struct {
	info    StreamInfo
	frames  int
	next    int
	failAt  int
	closed  atomic.Bool
	readsMu sync.Mutex
}

func newFakeCapture(frames int, info StreamInfo) *fakeCapture {
	return &fakeCapture{info: info, frames: frames, failAt: -1}
}

func (c *fakeCapture) Read() (image.Image, error) {
	c.readsMu.Lock()
	defer c.readsMu.Unlock()

	if c.next == c.failAt {
		return nil, errors.New("corrupted frame")
	}
	if c.next >= c.frames {
		return nil, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, c.info.Width, c.info.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: uint8(c.next), A: 0xff}), image.Point{}, draw.Src)
	c.next++
	return img, nil
}

// reads returns the number of frames handed out so far.
func (c *fakeCapture) reads() int {
	c.readsMu.Lock()
	defer c.readsMu.Unlock()
	return c.next
}

func (c *fakeCapture) Info() StreamInfo { return c.info }

func (c *fakeCapture) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeCapture) opener() Opener {
	return func(ctx context.Context, uri string) (Capture, error) {
		return c, nil
	}
}

// fakeDetector finds one object per frame and sleeps a random amount of time
// so that the workers finish out of order.
type fakeDetector struct {
	failOn int32
	calls  atomic.Int32
	jitter bool
}

func (d *fakeDetector) Detect(img image.Image) ([]detect.Detection, error) {
	d.calls.Add(1)
	index := img.(*image.NRGBA).Pix[0]
	if d.failOn >= 0 && int32(index) == d.failOn {
		return nil, errors.New("inference failed")
	}
	if d.jitter {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
	}
	label := "person"
	if index%2 == 1 {
		label = "car"
	}
	return []detect.Detection{{
		Label: label,
		Score: 0.9,
		Box:   image.Rect(1, 1, 6, 6),
	}}, nil
}

func (d *fakeDetector) Close() error { return nil }

// slowDetector holds back a single frame.
type slowDetector struct {
	slowOn uint8
	delay  time.Duration
}

func (d *slowDetector) Detect(img image.Image) ([]detect.Detection, error) {
	if img.(*image.NRGBA).Pix[0] == d.slowOn {
		time.Sleep(d.delay)
	}
	return nil, nil
}

func (d *slowDetector) Close() error { return nil }

// funcSink calls fn for every frame it receives.
type funcSink func(res *FrameResult) error

func (fn funcSink) Consume(res *FrameResult) error { return fn(res) }

func (fn funcSink) Close() error { return nil }

// recordSink keeps track of every frame it receives.
type recordSink struct {
	started  bool
	info     StreamInfo
	indices  []int
	closed   int
	failOn   int
	startErr error
}

func newRecordSink() *recordSink {
	return &recordSink{failOn: -1}
}

func (s *recordSink) Start(ctx context.Context, info StreamInfo) error {
	s.started = true
	s.info = info
	return s.startErr
}

func (s *recordSink) Consume(res *FrameResult) error {
	if res.Index == s.failOn {
		return errors.New("disk full")
	}
	s.indices = append(s.indices, res.Index)
	return nil
}

func (s *recordSink) Close() error {
	s.closed++
	return nil
}
