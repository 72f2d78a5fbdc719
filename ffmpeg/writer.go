package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"github.com/vidscope/vidscope"
	"github.com/vidscope/vidscope/utils"
)

const defaultFPS = 25

// Writer encodes rgb24 frames written to the ffmpeg standard input.
type Writer struct {
	pipe   *io.PipeWriter
	buf    []uint8
	done   chan error
	stderr bytes.Buffer
}

// Create starts an encoder writing an H.264 yuv420p video, the most widely playable format.
func Create(ctx context.Context, path string, info vidscope.StreamInfo) (vidscope.FrameWriter, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, err
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	fps := info.FPS
	if fps <= 0 {
		fps = defaultFPS
	}

	pr, pw := io.Pipe()
	w := &Writer{pipe: pw, done: make(chan error, 1)}

	stream := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgb24",
		"s":         fmt.Sprintf("%dx%d", info.Width, info.Height),
		"framerate": fmt.Sprintf("%g", fps),
	}).
		Output(path, ffmpeg.KwArgs{
			"pix_fmt": "yuv420p",
			"vf":      "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		}).
		OverWriteOutput().
		WithInput(pr).
		WithErrorOutput(&w.stderr)
	stream.Context = ctx

	go func() {
		err := stream.Run()
		pr.CloseWithError(err)
		if err != nil {
			err = fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(w.stderr.String()))
		}
		w.done <- err
	}()
	return w, nil
}

// Write sends one frame to the encoder.
func (w *Writer) Write(img image.Image) error {
	w.buf = utils.NRGBAToRGB(utils.ImgToNRGBA(img), w.buf)
	if _, err := w.pipe.Write(w.buf); err != nil {
		return fmt.Errorf("unable to write the frame: %w", err)
	}
	return nil
}

// Close flushes the encoder and waits for the video file to be finalized.
func (w *Writer) Close() error {
	w.pipe.Close()
	return <-w.done
}
