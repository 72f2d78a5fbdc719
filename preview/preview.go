// Package preview shows the annotated frames in a Gio window while the video is being processed.
package preview

import (
	"context"
	"image"
	"image/color"

	"gioui.org/app"
	"gioui.org/io/key"
	"gioui.org/io/system"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"github.com/vidscope/vidscope"
)

const (
	busyTitle = "vidscope: analysing the video..."
	doneTitle = "vidscope: done, you may close this window"
)

var backgroundColor = color.NRGBA{A: 0xff}

// Window is a native window displaying a stream of frames.
type Window struct {
	Width, Height int
}

// New returns a window sized at frac of the 1280x720 reference frame.
func New(frac float64) (*Window, error) {
	w, h, err := vidscope.DisplaySize(frac)
	if err != nil {
		return nil, err
	}
	return &Window{Width: w, Height: h}, nil
}

// Run opens the window and updates its content with the frames received from the channel.
// It returns once the window is closed, either by the user (Escape or the close button)
// or because the context was cancelled. The closed frames channel only marks the end of
// the processing: the last frame stays on screen until the window is closed.
// The caller must run app.Main on the main goroutine.
func (pw *Window) Run(ctx context.Context, frames <-chan image.Image) error {
	w := app.NewWindow(
		app.Title(busyTitle),
		app.Size(unit.Dp(pw.Width), unit.Dp(pw.Height)),
	)

	var (
		ops op.Ops
		img image.Image
		tag = new(int)
	)
	for {
		select {
		case e := <-w.Events():
			switch e := e.(type) {
			case system.FrameEvent:
				gtx := layout.NewContext(&ops, e)
				for _, ev := range gtx.Events(tag) {
					if ke, ok := ev.(key.Event); ok && ke.State == key.Press && ke.Name == key.NameEscape {
						w.Perform(system.ActionClose)
					}
				}
				key.InputOp{Tag: tag, Keys: key.NameEscape}.Add(gtx.Ops)

				paint.Fill(gtx.Ops, backgroundColor)
				if img != nil {
					widget.Image{
						Src: paint.NewImageOp(img),
						Fit: widget.Contain,
					}.Layout(gtx)
				}
				e.Frame(gtx.Ops)
			case system.DestroyEvent:
				return e.Err
			}
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				w.Option(app.Title(doneTitle))
				continue
			}
			img = frame
			w.Invalidate()
		case <-ctx.Done():
			w.Perform(system.ActionClose)
			ctx = context.Background()
		}
	}
}
