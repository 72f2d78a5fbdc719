package vidscope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vidscope/vidscope/utils"
)

// Ops holds the options of a command line run which are not part of the processing itself.
type Ops struct {
	Source   string
	Backend  string
	Fraction float64
	// HTML is the page rendering the source video inline, skipped when empty.
	HTML   string
	Embed  bool
	Stream bool
	// Plot is the detections chart, skipped when empty.
	Plot   string
	Client *http.Client
	// Out receives the status messages and the summary table, os.Stderr when nil.
	Out io.Writer
}

// Execute resolves the video source, renders it inline when requested
// and runs the detection pipeline while reporting the progress on the terminal.
func (p *Processor) Execute(ctx context.Context, op *Ops) (*Summary, error) {
	out := op.Out
	if out == nil {
		out = os.Stderr
	}
	now := time.Now()

	spinner := utils.NewSpinner(statusText("is fetching the video...", utils.DefaultMessage), time.Millisecond*100, true)
	spinner.SetWriter(out)
	spinner.Start()
	defer spinner.Stop()

	src, err := ResolveSource(ctx, op.Source, SourceOptions{
		Stream: op.Stream,
		Client: op.Client,
		Progress: func(read, total int64) {
			msg := fmt.Sprintf("is fetching the video... %s", utils.FormatBytes(read))
			if total > 0 {
				msg = fmt.Sprintf("is fetching the video... %s / %s", utils.FormatBytes(read), utils.FormatBytes(total))
			}
			spinner.SetMessage(statusText(msg, utils.DefaultMessage))
		},
	})
	if err != nil {
		spinner.StopMsg = statusText("fetching the video failed ✘", utils.ErrorMessage)
		p.abortSinks()
		return nil, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn().Err(err).Msg("could not remove the temporary video")
		}
	}()

	if op.HTML != "" {
		if err := writePage(src, op); err != nil {
			spinner.StopMsg = statusText("rendering the video failed ✘", utils.ErrorMessage)
			p.abortSinks()
			return nil, err
		}
	}

	onProgress := p.OnProgress
	p.OnProgress = func(pr Progress) {
		msg := fmt.Sprintf("is analysing frame %d", pr.Index+1)
		if pr.Info.Frames > 0 {
			msg = fmt.Sprintf("is analysing frame %d/%d", pr.Index+1, pr.Info.Frames)
		}
		spinner.SetMessage(statusText(msg, utils.DefaultMessage))
		if onProgress != nil {
			onProgress(pr)
		}
	}
	defer func() { p.OnProgress = onProgress }()

	spinner.SetMessage(statusText("is analysing the video...", utils.DefaultMessage))
	summary, err := p.Process(ctx, src)
	if summary != nil {
		summary.Backend = op.Backend
	}
	switch {
	case errors.Is(err, context.Canceled):
		spinner.StopMsg = statusText("processing cancelled", utils.ErrorMessage)
	case err != nil:
		spinner.StopMsg = statusText("analysing the video failed ✘", utils.ErrorMessage)
	default:
		spinner.StopMsg = statusText("the video has been analysed successfully ✔", utils.SuccessMessage)
	}
	spinner.Stop()

	if summary == nil || summary.FramesProcessed == 0 {
		return summary, err
	}

	fmt.Fprintf(out, "\n%s\n", summary.Table())
	if op.Plot != "" {
		if perr := summary.Plot(op.Plot); perr != nil {
			log.Error().Err(perr).Str("path", op.Plot).Msg("could not save the detections chart")
		} else {
			fmt.Fprintf(out, "\nThe detections chart has been saved as: %s %s\n",
				utils.DecorateText(filepath.Base(op.Plot), utils.SuccessMessage),
				utils.DefaultColor,
			)
		}
	}
	fmt.Fprintf(out, "\nExecution time: %s\n", utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))

	return summary, err
}

// abortSinks closes the sinks when the processing could not even start.
func (p *Processor) abortSinks() {
	if err := p.closeSinks(); err != nil {
		log.Warn().Err(err).Msg("could not close the outputs")
	}
}

// writePage renders the source video as a standalone HTML page.
// Remote videos are referenced by their URL, downloaded ones are embedded.
func writePage(src *Source, op *Ops) error {
	ref := src.URI
	if src.URI == PipeName || (op.Embed && src.Remote && !op.Stream) {
		ref = src.Path
	}
	v, err := NewVideo(ref, op.Fraction)
	if err != nil {
		return err
	}
	// The spooled stdin copy is removed on exit, so it is always embedded.
	v.Embed = op.Embed || src.URI == PipeName
	if v.Embed {
		v.MIMEType = src.ContentType
	}

	f, err := os.Create(op.HTML)
	if err != nil {
		return fmt.Errorf("unable to create the HTML page: %w", err)
	}
	if err := v.WriteHTML(f, filepath.Base(src.URI)); err != nil {
		f.Close()
		return fmt.Errorf("unable to render the video: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info().Str("path", op.HTML).Int("width", v.Width).Int("height", v.Height).Msg("video page written")
	return nil
}

func statusText(msg string, msgType utils.MessageType) string {
	return fmt.Sprintf("%s %s",
		utils.DecorateText("⚡ VIDSCOPE", utils.StatusMessage),
		utils.DecorateText(msg, msgType),
	)
}
