package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"github.com/vidscope/vidscope"
	"github.com/vidscope/vidscope/utils"
)

// Capture decodes a video into rgb24 frames read from the ffmpeg standard output.
type Capture struct {
	info   vidscope.StreamInfo
	pipe   *io.PipeReader
	buf    []uint8
	cancel context.CancelFunc
	done   chan struct{}
	stderr bytes.Buffer

	mu     sync.Mutex
	closed bool
}

var _ vidscope.Capture = (*Capture)(nil)

// Open probes the source and starts decoding it in the background.
func Open(ctx context.Context, uri string) (vidscope.Capture, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, err
	}
	probe, err := ffmpeg.Probe(uri)
	if err != nil {
		return nil, fmt.Errorf("unable to probe %s: %w", uri, err)
	}
	info, err := ParseProbe(probe)
	if err != nil {
		return nil, fmt.Errorf("unable to probe %s: %w", uri, err)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	c := &Capture{
		info:   info,
		pipe:   pr,
		buf:    make([]uint8, info.Width*info.Height*3),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	stream := ffmpeg.Input(uri).
		Output("pipe:", ffmpeg.KwArgs{"format": "rawvideo", "pix_fmt": "rgb24"}).
		WithOutput(pw).
		WithErrorOutput(&c.stderr)
	stream.Context = cctx

	go func() {
		defer close(c.done)
		err := stream.Run()
		if err != nil && cctx.Err() == nil {
			err = fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(c.stderr.String()))
			log.Debug().Err(err).Msg("decoder stopped")
		}
		pw.CloseWithError(err)
	}()

	return c, nil
}

// Info returns the stream geometry reported by ffprobe.
func (c *Capture) Info() vidscope.StreamInfo {
	return c.info
}

// Read returns the next frame, or io.EOF once the decoder has finished.
func (c *Capture) Read() (image.Image, error) {
	_, err := io.ReadFull(c.pipe, c.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, io.EOF
	default:
		return nil, err
	}
	return utils.RGBToNRGBA(c.buf, c.info.Width, c.info.Height)
}

// Close stops the decoder and waits for it to exit.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.pipe.Close()
	<-c.done
	return nil
}

func lastLine(s string) string {
	lines := bytes.Split(bytes.TrimSpace([]byte(s)), []byte("\n"))
	return string(lines[len(lines)-1])
}
