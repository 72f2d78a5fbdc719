package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gioui.org/app"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vidscope/vidscope"
	"github.com/vidscope/vidscope/cv"
	"github.com/vidscope/vidscope/detect"
	"github.com/vidscope/vidscope/ffmpeg"
	"github.com/vidscope/vidscope/imop"
	"github.com/vidscope/vidscope/preview"
	"github.com/vidscope/vidscope/utils"
	"golang.org/x/term"
)

const HelpBanner = `
┬  ┬┬┌┬┐┌─┐┌─┐┌─┐┌─┐┌─┐
└┐┌┘│ ││└─┐│  │ │├─┘├┤
 └┘ ┴─┴┘└─┘└─┘└─┘┴  └─┘

Video object detection pipeline.
    Version: %s

`

// Version indicates the current build version.
var Version string

var (
	openers = map[string]vidscope.Opener{
		vidscope.BackendOpenCV: cv.Open,
		vidscope.BackendFFmpeg: ffmpeg.Open,
	}
	writers = map[string]vidscope.WriterOpener{
		vidscope.BackendOpenCV: cv.Create,
		vidscope.BackendFFmpeg: ffmpeg.Create,
	}
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.LookupEnv)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n\t%s\n",
			utils.DecorateText("Invalid configuration:", utils.ErrorMessage),
			utils.DecorateText(err.Error(), utils.DefaultMessage),
		)
		os.Exit(2)
	}
	initLogger(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.Preview {
		os.Exit(run(ctx, cfg, nil))
	}

	// Gio needs the main goroutine, the processing runs next to the window.
	win, err := preview.New(cfg.Fraction)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	sink := vidscope.NewPreviewSink(win.Width, win.Height)
	ctx, cancel := context.WithCancel(ctx)

	done := make(chan int, 1)
	go func() {
		code := run(ctx, cfg, sink)
		sink.Close()
		done <- code
	}()
	go func() {
		if err := win.Run(ctx, sink.Frames()); err != nil {
			log.Error().Err(err).Msg("preview window failed")
		}
		cancel()
		os.Exit(<-done)
	}()
	app.Main()
}

// run processes the video and returns the process exit code.
func run(ctx context.Context, cfg *vidscope.Config, previewSink *vidscope.PreviewSink) int {
	client := &http.Client{}

	det, err := newDetector(ctx, cfg, client)
	if err != nil {
		printError(err)
		return 1
	}
	if det != nil {
		defer det.Close()
	}

	sinks, err := newSinks(cfg)
	if err != nil {
		printError(err)
		return 1
	}
	if previewSink != nil {
		sinks = append(sinks, previewSink)
	}

	ann := vidscope.NewAnnotator()
	ann.BoxColor = cfg.BoxColor
	ann.Redact = vidscope.RedactMode(cfg.Redact)
	ann.Fill = imop.Mode(cfg.Fill)

	proc := &vidscope.Processor{
		Open:      openers[cfg.Backend],
		Detector:  det,
		Annotator: ann,
		Sinks:     sinks,
		Workers:   cfg.Workers,
		Stride:    cfg.Stride,
		MaxFrames: cfg.MaxFrames,
		Realtime:  cfg.Realtime,
	}
	_, err = proc.Execute(ctx, &vidscope.Ops{
		Source:   cfg.Source,
		Backend:  cfg.Backend,
		Fraction: cfg.Fraction,
		HTML:     cfg.HTML,
		Embed:    cfg.Embed,
		Stream:   cfg.Stream,
		Plot:     cfg.Plot,
		Client:   client,
	})
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, utils.DecorateText("\nProcessing cancelled by the user", utils.ErrorMessage))
		return 130
	case err != nil:
		printError(err)
		return 1
	}

	for _, path := range []string{cfg.Output, cfg.HTML, cfg.Results} {
		if path != "" && path != vidscope.PipeName {
			fmt.Fprintf(os.Stderr, "The output has been saved as: %s %s\n",
				utils.DecorateText(filepath.Base(path), utils.SuccessMessage),
				utils.DefaultColor,
			)
		}
	}
	return 0
}

// newDetector builds the configured detector, fetching its model files on first use.
func newDetector(ctx context.Context, cfg *vidscope.Config, client *http.Client) (detect.Detector, error) {
	switch cfg.Detector {
	case vidscope.DetectorFace:
		path, err := utils.FetchModel(ctx, client, cfg.Cascade, cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("unable to fetch the face cascade: %w", err)
		}
		cascade, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read the face cascade: %w", err)
		}
		params := detect.DefaultFaceParams()
		params.MinScore, params.IoU = float32(cfg.MinScore), cfg.IoU
		return detect.NewFaceDetector(cascade, params)
	case vidscope.DetectorYOLO:
		path, err := utils.FetchModel(ctx, client, cfg.Model, cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("unable to fetch the model: %w", err)
		}
		params := cv.DefaultNetParams()
		params.MinScore, params.IoU = float32(cfg.MinScore), cfg.IoU
		if cfg.Labels != "" {
			if params.Labels, err = loadLabels(ctx, client, cfg); err != nil {
				return nil, err
			}
		}
		return cv.NewNetDetector(path, params)
	}
	return nil, nil
}

func loadLabels(ctx context.Context, client *http.Client, cfg *vidscope.Config) ([]string, error) {
	path, err := utils.FetchModel(ctx, client, cfg.Labels, cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch the labels: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return detect.LoadLabels(f)
}

// newSinks creates the outputs requested on the command line.
func newSinks(cfg *vidscope.Config) ([]vidscope.Sink, error) {
	var sinks []vidscope.Sink
	if cfg.Output != "" {
		sinks = append(sinks, vidscope.NewVideoSink(writers[cfg.Backend], cfg.Output))
	}
	if cfg.Snapshots != "" {
		s, err := vidscope.NewSnapshotSink(cfg.Snapshots, cfg.SnapshotExt)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.Results != "" {
		var w io.Writer
		if cfg.Results == vidscope.PipeName {
			if term.IsTerminal(int(os.Stdout.Fd())) {
				return nil, errors.New("`-` should be used with a pipe for stdout")
			}
			w = os.Stdout
		} else {
			f, err := os.Create(cfg.Results)
			if err != nil {
				return nil, fmt.Errorf("unable to create the results file: %w", err)
			}
			w = f
		}
		sinks = append(sinks, vidscope.NewResultsSink(w))
	}
	return sinks, nil
}

// loadConfig layers the defaults, the optional JSON file, the explicitly set flags and the environment.
func loadConfig(args []string, lookup func(string) (string, bool)) (*vidscope.Config, error) {
	cfg := vidscope.DefaultConfig()
	var path string
	fs := newFlagSet(cfg, &path)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if path == "" {
		path, _ = lookup("VIDSCOPE_CONFIG")
	}

	if path != "" {
		cfg = vidscope.DefaultConfig()
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
		// Parsing again on top of the file keeps only the flags given explicitly.
		if err := newFlagSet(cfg, &path).Parse(args); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFlagSet(cfg *vidscope.Config, path *string) *flag.FlagSet {
	fs := flag.NewFlagSet("vidscope", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), HelpBanner, Version)
		fs.PrintDefaults()
	}

	fs.StringVar(&cfg.Source, "in", cfg.Source, "Source video: file, URL or - for stdin")
	fs.Float64Var(&cfg.Fraction, "frac", cfg.Fraction, "Display size as a fraction of 1280x720")
	fs.StringVar(&cfg.HTML, "html", cfg.HTML, "Write an HTML page rendering the video inline")
	fs.BoolVar(&cfg.Embed, "embed", cfg.Embed, "Embed the video into the HTML page")
	fs.BoolVar(&cfg.Stream, "stream", cfg.Stream, "Open remote videos directly instead of downloading them")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Capture backend: "+strings.Join([]string{vidscope.BackendOpenCV, vidscope.BackendFFmpeg}, "|"))
	fs.StringVar(&cfg.Detector, "detector", cfg.Detector, "Detector: face|yolo|none")
	fs.StringVar(&cfg.Cascade, "cascade", cfg.Cascade, "Face cascade classifier, path or URL")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "YOLOv8 ONNX model, path or URL")
	fs.StringVar(&cfg.Labels, "labels", cfg.Labels, "Class names file, one per line (COCO by default)")
	fs.Float64Var(&cfg.MinScore, "score", cfg.MinScore, "Minimum detection score, 0 for the detector default")
	fs.Float64Var(&cfg.IoU, "iou", cfg.IoU, "IoU threshold of the box clustering, 0 for the detector default")
	fs.IntVar(&cfg.Stride, "stride", cfg.Stride, "Process one frame out of stride")
	fs.IntVar(&cfg.MaxFrames, "max", cfg.MaxFrames, "Maximum number of processed frames, 0 for no limit")
	fs.IntVar(&cfg.Workers, "conc", cfg.Workers, "Number of frames processed concurrently, 0 for the number of CPUs")
	fs.StringVar(&cfg.Output, "out", cfg.Output, "Annotated video destination")
	fs.StringVar(&cfg.Snapshots, "snapshots", cfg.Snapshots, "Directory receiving the frames with detections")
	fs.StringVar(&cfg.SnapshotExt, "snapext", cfg.SnapshotExt, "Snapshot image format: jpg|png|bmp")
	fs.StringVar(&cfg.Results, "results", cfg.Results, "JSON lines detection log, - for stdout")
	fs.StringVar(&cfg.Plot, "plot", cfg.Plot, "Detections over time chart (png, svg or pdf)")
	fs.BoolVar(&cfg.Preview, "preview", cfg.Preview, "Show the annotated frames in a window")
	fs.BoolVar(&cfg.Realtime, "realtime", cfg.Realtime, "Read the frames at the video frame rate")
	fs.StringVar(&cfg.Redact, "redact", cfg.Redact, "Hide the detected regions: blur|pixelate")
	fs.StringVar(&cfg.Fill, "fill", cfg.Fill, "Tint the boxes with a blend mode: normal|darken|lighten|multiply|screen|overlay")
	fs.StringVar(&cfg.BoxColor, "color", cfg.BoxColor, "Box color as hex value, one color per class when empty")
	fs.StringVar(&cfg.CacheDir, "cache", cfg.CacheDir, "Model cache directory")
	fs.StringVar(path, "c", *path, "JSON configuration file")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	return fs
}

func initLogger(verbose bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s%s",
		utils.DecorateText("\nError processing the video: ", utils.ErrorMessage),
		utils.DecorateText(fmt.Sprintf("\n\tReason: %v\n", err), utils.DefaultMessage),
	)
}
