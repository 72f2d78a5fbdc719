package vidscope

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vidscope/vidscope/detect"
	"github.com/vidscope/vidscope/imop"
	"github.com/vidscope/vidscope/utils"
)

// Capture backends.
const (
	BackendOpenCV = "opencv"
	BackendFFmpeg = "ffmpeg"
)

// Detectors.
const (
	DetectorNone = "none"
	DetectorFace = "face"
	DetectorYOLO = "yolo"
)

// Config holds every setting of a run. The zero value is not usable, start from DefaultConfig.
// MinScore and IoU of 0 keep the detector defaults.
type Config struct {
	Source      string  `json:"source"`
	Fraction    float64 `json:"fraction"`
	HTML        string  `json:"html"`
	Embed       bool    `json:"embed"`
	Stream      bool    `json:"stream"`
	Backend     string  `json:"backend"`
	Detector    string  `json:"detector"`
	Cascade     string  `json:"cascade"`
	Model       string  `json:"model"`
	Labels      string  `json:"labels"`
	MinScore    float64 `json:"min_score"`
	IoU         float64 `json:"iou"`
	Stride      int     `json:"stride"`
	MaxFrames   int     `json:"max_frames"`
	Workers     int     `json:"workers"`
	Output      string  `json:"output"`
	Snapshots   string  `json:"snapshots"`
	SnapshotExt string  `json:"snapshot_ext"`
	Results     string  `json:"results"`
	Plot        string  `json:"plot"`
	Preview     bool    `json:"preview"`
	Realtime    bool    `json:"realtime"`
	Redact      string  `json:"redact"`
	Fill        string  `json:"fill"`
	BoxColor    string  `json:"box_color"`
	CacheDir    string  `json:"cache_dir"`
	Verbose     bool    `json:"verbose"`
}

// DefaultConfig returns the settings used when nothing else is specified.
func DefaultConfig() *Config {
	return &Config{
		Source:      DefaultSource,
		Fraction:    DefaultFraction,
		Backend:     BackendOpenCV,
		Detector:    DetectorFace,
		Cascade:     detect.FaceCascadeURL,
		Stride:      1,
		SnapshotExt: ".jpg",
		CacheDir:    defaultCacheDir(),
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "vidscope")
	}
	return filepath.Join(dir, "vidscope")
}

// LoadFile overrides the configuration with the values found in a JSON file.
// Keys missing from the file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read the config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("unable to parse the config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides the configuration with VIDSCOPE_* environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := map[string]*string{
		"VIDSCOPE_SOURCE":    &c.Source,
		"VIDSCOPE_BACKEND":   &c.Backend,
		"VIDSCOPE_DETECTOR":  &c.Detector,
		"VIDSCOPE_CASCADE":   &c.Cascade,
		"VIDSCOPE_MODEL":     &c.Model,
		"VIDSCOPE_LABELS":    &c.Labels,
		"VIDSCOPE_OUTPUT":    &c.Output,
		"VIDSCOPE_CACHE_DIR": &c.CacheDir,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("VIDSCOPE_FRACTION"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid VIDSCOPE_FRACTION: %w", err)
		}
		c.Fraction = f
	}
	if v, ok := lookup("VIDSCOPE_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid VIDSCOPE_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v, ok := lookup("VIDSCOPE_STREAM"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid VIDSCOPE_STREAM: %w", err)
		}
		c.Stream = b
	}
	return nil
}

// Validate checks the ranges and the names used in the configuration.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Source) == "" {
		errs = append(errs, errors.New("no source video given"))
	}
	if c.Fraction <= 0 {
		errs = append(errs, fmt.Errorf("display fraction should be greater than zero, got %v", c.Fraction))
	}
	switch c.Backend {
	case BackendOpenCV, BackendFFmpeg:
	default:
		errs = append(errs, fmt.Errorf("unknown capture backend %q", c.Backend))
	}
	switch c.Detector {
	case DetectorNone, DetectorFace:
	case DetectorYOLO:
		if c.Model == "" {
			errs = append(errs, errors.New("the yolo detector needs a model file"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown detector %q", c.Detector))
	}
	if c.Detector == DetectorFace && c.Cascade == "" {
		errs = append(errs, errors.New("the face detector needs a cascade file"))
	}
	if c.MinScore < 0 || (c.Detector == DetectorYOLO && c.MinScore > 1) {
		errs = append(errs, fmt.Errorf("invalid minimum score %v", c.MinScore))
	}
	if c.IoU < 0 || c.IoU > 1 {
		errs = append(errs, fmt.Errorf("IoU threshold should be in [0, 1], got %v", c.IoU))
	}
	if c.Stride < 1 {
		errs = append(errs, fmt.Errorf("stride should be at least 1, got %d", c.Stride))
	}
	if c.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("max frames should not be negative, got %d", c.MaxFrames))
	}
	if c.Workers < 0 || c.Workers > maxWorkers {
		errs = append(errs, fmt.Errorf("workers should be in [0, %d], got %d", maxWorkers, c.Workers))
	}
	switch RedactMode(c.Redact) {
	case RedactNone, RedactBlur, RedactPixelate:
	default:
		errs = append(errs, fmt.Errorf("unknown redact mode %q", c.Redact))
	}
	if c.Fill != "" && !imop.Mode(c.Fill).Valid() {
		errs = append(errs, fmt.Errorf("unknown fill blend mode %q", c.Fill))
	}
	if _, err := snapshotExt(c.SnapshotExt); err != nil {
		errs = append(errs, fmt.Errorf("invalid snapshot format: %w", err))
	}
	if c.BoxColor != "" {
		if _, err := utils.ParseHexColor(c.BoxColor); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Embed && c.HTML == "" {
		errs = append(errs, errors.New("embedding needs an HTML output file"))
	}
	return errors.Join(errs...)
}
