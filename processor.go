package vidscope

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vidscope/vidscope/detect"
	"github.com/vidscope/vidscope/utils"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"
)

// maxWorkers sets the maximum number of concurrently running workers.
const maxWorkers = 20

// inFlightPerWorker bounds the decoded frames waiting for their turn in the sinks.
const inFlightPerWorker = 2

// ErrNoFrames is returned when the capture handle did not deliver a single frame.
var ErrNoFrames = errors.New("no frames could be read from the video")

// Progress is reported after every processed frame.
type Progress struct {
	Seq        int
	Index      int
	Detections int
	Info       StreamInfo
}

// Processor feeds the frames of a video-capture handle to a detector.
// Frames are read sequentially, detected concurrently by Workers goroutines
// and delivered to the sinks in their original order.
type Processor struct {
	// Open creates the capture handle.
	Open Opener
	// Detector may be nil, in which case the frames are passed through untouched.
	Detector  detect.Detector
	Annotator *Annotator
	Sinks     []Sink
	// Workers is the number of concurrent detections, runtime.NumCPU() when not set.
	Workers int
	// Stride keeps one frame out of Stride. Values below 2 keep every frame.
	Stride int
	// MaxFrames stops the processing after that many processed frames, 0 means no limit.
	MaxFrames int
	// Realtime paces the frame reads at the stream frame rate.
	Realtime bool
	// OnProgress is invoked from the collecting goroutine after every processed frame.
	OnProgress func(Progress)
}

type frameJob struct {
	index, seq int
	img        image.Image
}

// Process runs the whole pipeline over the source and closes the sinks when done.
// On failure or cancellation the summary of the frames processed so far is returned with the error.
func (p *Processor) Process(ctx context.Context, src *Source) (*Summary, error) {
	start := time.Now()
	defer func() {
		log.Debug().Dur("elapsed", time.Since(start)).Msg("processing finished")
	}()

	sinksClosed := false
	closeSinks := func() error {
		if sinksClosed {
			return nil
		}
		sinksClosed = true
		return p.closeSinks()
	}
	defer closeSinks()

	if p.Open == nil {
		return nil, errors.New("no capture backend configured")
	}
	capture, err := p.Open(ctx, src.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open the video capture for %s: %w", src.URI, err)
	}
	defer func() {
		if err := capture.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close the video capture")
		}
	}()

	info := capture.Info()
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("unable to use the video capture for %s: %w", src.URI, err)
	}
	log.Debug().Str("source", src.URI).Stringer("stream", info).Msg("video capture opened")

	summary := newSummary(src.URI, info)

	workers := p.Workers
	if workers <= 0 || workers > maxWorkers {
		workers = runtime.NumCPU()
	}
	stride := utils.Max(p.Stride, 1)

	out := info
	if stride > 1 {
		out.FPS /= float64(stride)
		out.Frames = (info.Frames + stride - 1) / stride
	}
	if p.MaxFrames > 0 && (out.Frames == 0 || out.Frames > p.MaxFrames) {
		out.Frames = p.MaxFrames
	}
	for _, s := range p.Sinks {
		if st, ok := s.(Starter); ok {
			if err := st.Start(ctx, out); err != nil {
				return nil, err
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan frameJob, workers)
	results := make(chan *FrameResult, workers)
	// A slot is taken before a frame is queued and given back once the sinks received it.
	slots := make(chan struct{}, inFlightPerWorker*workers)

	var framesRead int
	g.Go(func() error {
		defer close(jobs)
		n, err := p.read(gctx, capture, info, stride, slots, jobs)
		framesRead = n
		return err
	})

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			defer wg.Done()
			return p.detect(gctx, info, jobs, results)
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	g.Go(func() error {
		return p.collect(gctx, summary, slots, results)
	})

	err = g.Wait()
	summary.FramesRead = framesRead
	summary.Elapsed = time.Since(start)

	if cerr := closeSinks(); cerr != nil && err == nil {
		err = cerr
	}
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	if err != nil {
		return summary, err
	}
	if summary.FramesProcessed == 0 {
		return summary, ErrNoFrames
	}
	return summary, nil
}

func (p *Processor) closeSinks() error {
	var errs []error
	for _, s := range p.Sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// read pulls frames from the capture handle and sends every stride-th one to the workers.
func (p *Processor) read(ctx context.Context, capture Capture, info StreamInfo, stride int, slots chan<- struct{}, jobs chan<- frameJob) (int, error) {
	var limiter ratelimit.Limiter
	if p.Realtime && info.FPS > 0 {
		limiter = ratelimit.New(utils.Max(1, int(math.Round(info.FPS))))
	}

	seq := 0
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return index, err
		}
		if p.MaxFrames > 0 && seq >= p.MaxFrames {
			return index, nil
		}
		if limiter != nil {
			limiter.Take()
		}

		img, err := capture.Read()
		if errors.Is(err, io.EOF) {
			return index, nil
		}
		if err != nil {
			return index, fmt.Errorf("unable to read frame %d: %w", index, err)
		}
		if index%stride != 0 {
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return index + 1, ctx.Err()
		}
		select {
		case jobs <- frameJob{index: index, seq: seq, img: img}:
			seq++
		case <-ctx.Done():
			return index + 1, ctx.Err()
		}
	}
}

// detect runs the detector and the annotator over the received frames.
func (p *Processor) detect(ctx context.Context, info StreamInfo, jobs <-chan frameJob, results chan<- *FrameResult) error {
	for job := range jobs {
		frame := utils.ImgToNRGBA(job.img)

		var dets []detect.Detection
		if p.Detector != nil {
			var err error
			dets, err = p.Detector.Detect(frame)
			if err != nil {
				return fmt.Errorf("object detection failed on frame %d: %w", job.index, err)
			}
		}
		if p.Annotator != nil && len(dets) > 0 {
			p.Annotator.Annotate(frame, dets)
		}

		res := &FrameResult{
			Index:      job.index,
			Seq:        job.seq,
			Timestamp:  info.Timestamp(job.index),
			Image:      frame,
			Detections: dets,
		}
		select {
		case results <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// collect restores the frame order and hands the results to the sinks.
func (p *Processor) collect(ctx context.Context, summary *Summary, slots <-chan struct{}, results <-chan *FrameResult) error {
	pending := make(map[int]*FrameResult)
	next := 0

	for res := range results {
		pending[res.Seq] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			summary.add(r)
			for _, s := range p.Sinks {
				if err := s.Consume(r); err != nil {
					return err
				}
			}
			<-slots
			log.Debug().
				Int("frame", r.Index).
				Int("detections", len(r.Detections)).
				Msg("frame processed")

			if p.OnProgress != nil {
				p.OnProgress(Progress{
					Seq:        r.Seq,
					Index:      r.Index,
					Detections: len(r.Detections),
					Info:       summary.Info,
				})
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
