// Package ffmpeg decodes and encodes videos by piping raw rgb24 frames
// to and from the ffmpeg command line tools.
package ffmpeg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/vidscope/vidscope"
)

// ParseProbe extracts the geometry of the first video stream from the JSON printed by ffprobe.
func ParseProbe(probe string) (vidscope.StreamInfo, error) {
	var info vidscope.StreamInfo
	if !gjson.Valid(probe) {
		return info, errors.New("invalid ffprobe output")
	}
	stream := gjson.Get(probe, `streams.#(codec_type=="video")`)
	if !stream.Exists() {
		return info, errors.New("no video stream found")
	}

	info.Width = int(stream.Get("width").Int())
	info.Height = int(stream.Get("height").Int())

	fps, err := ParseRate(stream.Get("avg_frame_rate").String())
	if err != nil || fps == 0 {
		fps, err = ParseRate(stream.Get("r_frame_rate").String())
		if err != nil {
			return info, err
		}
	}
	info.FPS = fps

	if n := stream.Get("nb_frames"); n.Exists() {
		info.Frames = int(n.Int())
	}
	if info.Frames == 0 && fps > 0 {
		duration := stream.Get("duration")
		if !duration.Exists() {
			duration = gjson.Get(probe, "format.duration")
		}
		if d := duration.Float(); d > 0 {
			info.Frames = int(math.Round(d * fps))
		}
	}
	return info, nil
}

// ParseRate evaluates frame rates written as fractions, like 30000/1001.
// A zero denominator, as in 0/0, yields a zero rate.
func ParseRate(rate string) (float64, error) {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return 0, nil
	}
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", rate, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", rate, err)
	}
	if d == 0 {
		return 0, nil
	}
	return n / d, nil
}
