package vidscope

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// FrameCount is the number of detections found in a processed frame.
type FrameCount struct {
	Index int           `json:"frame"`
	Time  time.Duration `json:"time"`
	Count int           `json:"count"`
}

// Summary collects the outcome of a processing run.
type Summary struct {
	Source          string         `json:"source"`
	Backend         string         `json:"backend,omitempty"`
	Info            StreamInfo     `json:"stream"`
	FramesRead      int            `json:"frames_read"`
	FramesProcessed int            `json:"frames_processed"`
	Detections      int            `json:"detections"`
	PerLabel        map[string]int `json:"per_label"`
	PerFrame        []FrameCount   `json:"per_frame"`
	Elapsed         time.Duration  `json:"elapsed"`
}

// FrameStats describes the distribution of the detections per processed frame.
type FrameStats struct {
	Mean   float64
	Median float64
	Max    float64
	P95    float64
}

func newSummary(source string, info StreamInfo) *Summary {
	return &Summary{
		Source:   source,
		Info:     info,
		PerLabel: make(map[string]int),
	}
}

func (s *Summary) add(res *FrameResult) {
	s.FramesProcessed++
	s.Detections += len(res.Detections)
	for _, d := range res.Detections {
		s.PerLabel[d.Label]++
	}
	s.PerFrame = append(s.PerFrame, FrameCount{
		Index: res.Index,
		Time:  res.Timestamp,
		Count: len(res.Detections),
	})
}

// ProcessingFPS returns the number of processed frames per second of wall time.
func (s *Summary) ProcessingFPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.FramesProcessed) / s.Elapsed.Seconds()
}

// Labels returns the detected labels, most frequent first.
func (s *Summary) Labels() []string {
	labels := make([]string, 0, len(s.PerLabel))
	for l := range s.PerLabel {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		ci, cj := s.PerLabel[labels[i]], s.PerLabel[labels[j]]
		if ci != cj {
			return ci > cj
		}
		return labels[i] < labels[j]
	})
	return labels
}

// Stats computes the distribution of the number of detections per processed frame.
func (s *Summary) Stats() (FrameStats, error) {
	var fs FrameStats
	if len(s.PerFrame) == 0 {
		return fs, errors.New("no processed frames")
	}
	data := make(stats.Float64Data, len(s.PerFrame))
	for i, f := range s.PerFrame {
		data[i] = float64(f.Count)
	}

	var err error
	if fs.Mean, err = data.Mean(); err != nil {
		return fs, err
	}
	if fs.Median, err = data.Median(); err != nil {
		return fs, err
	}
	if fs.Max, err = data.Max(); err != nil {
		return fs, err
	}
	if fs.P95, err = data.Percentile(95); err != nil {
		return fs, err
	}
	return fs, nil
}

// Table renders the summary as a text table.
func (s *Summary) Table() string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(s.Source)
	t.AppendHeader(table.Row{"Label", "Detections", "Share"})
	for _, l := range s.Labels() {
		n := s.PerLabel[l]
		t.AppendRow(table.Row{l, n, fmt.Sprintf("%.1f%%", 100*float64(n)/float64(s.Detections))})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"stream", s.Info.String(), ""})
	t.AppendRow(table.Row{"frames read", s.FramesRead, ""})
	t.AppendRow(table.Row{"frames processed", s.FramesProcessed, fmt.Sprintf("%.1f fps", s.ProcessingFPS())})
	if fs, err := s.Stats(); err == nil {
		t.AppendRow(table.Row{
			"per frame",
			fmt.Sprintf("mean %.2f, median %.1f", fs.Mean, fs.Median),
			fmt.Sprintf("p95 %.1f, max %.0f", fs.P95, fs.Max),
		})
	}
	t.AppendFooter(table.Row{"Total", s.Detections, ""})
	return t.Render()
}

// Plot saves a chart of the detections over time. The image format
// is chosen by the file extension (png, svg, pdf, ...).
func (s *Summary) Plot(path string) error {
	if len(s.PerFrame) == 0 {
		return errors.New("nothing to plot: no processed frames")
	}
	pts := make(plotter.XYs, len(s.PerFrame))
	useTime := s.Info.FPS > 0
	for i, f := range s.PerFrame {
		pts[i].X = float64(f.Index)
		if useTime {
			pts[i].X = f.Time.Seconds()
		}
		pts[i].Y = float64(f.Count)
	}

	p := plot.New()
	p.Title.Text = "Detections per frame"
	p.X.Label.Text = "frame"
	if useTime {
		p.X.Label.Text = "time (s)"
	}
	p.Y.Label.Text = "detections"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	p.Add(plotter.NewGrid(), line)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("unable to save the plot: %w", err)
	}
	return nil
}
