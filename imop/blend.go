// Package imop implements the blend modes used for mixing a flat color with its backdrop.
// The image/draw core package implements only the source-over-destination and source
// operations, this package covers the separable blend modes on top of them.
//
// It is used to tint the detection boxes in a distinct color
// while keeping the underlying frame visible.
package imop

import (
	"image"
	"image/color"
	"math"

	"github.com/vidscope/vidscope/utils"
)

// Mode is a separable blend mode.
type Mode string

const (
	Normal   Mode = "normal"
	Darken   Mode = "darken"
	Lighten  Mode = "lighten"
	Multiply Mode = "multiply"
	Screen   Mode = "screen"
	Overlay  Mode = "overlay"
)

// Modes lists the supported blend modes.
var Modes = []Mode{Normal, Darken, Lighten, Multiply, Screen, Overlay}

// Valid reports whether the blend mode is supported.
func (m Mode) Valid() bool {
	for _, mode := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Blend mixes the normalized source and backdrop channel values.
// Unknown modes fall back to Normal.
func (m Mode) Blend(src, dst float64) float64 {
	switch m {
	case Darken:
		return utils.Min(src, dst)
	case Lighten:
		return utils.Max(src, dst)
	case Multiply:
		return src * dst
	case Screen:
		return 1 - (1-src)*(1-dst)
	case Overlay:
		if dst <= 0.5 {
			return 2 * src * dst
		}
		return 1 - 2*(1-src)*(1-dst)
	default:
		return src
	}
}

// Tint blends col over the pixels of dst inside r. The blended color is composed
// over the backdrop with the given opacity, the alpha channel of dst is left untouched.
func Tint(dst *image.NRGBA, r image.Rectangle, col color.Color, mode Mode, opacity float64) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() || opacity <= 0 {
		return
	}
	opacity = utils.Min(opacity, 1)

	c := color.NRGBAModel.Convert(col).(color.NRGBA)
	src := [3]float64{
		float64(c.R) / 255,
		float64(c.G) / 255,
		float64(c.B) / 255,
	}

	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := dst.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x, i = x+1, i+4 {
			for ch := 0; ch < 3; ch++ {
				b := float64(dst.Pix[i+ch]) / 255
				v := opacity*mode.Blend(src[ch], b) + (1-opacity)*b
				dst.Pix[i+ch] = uint8(math.Round(utils.Clamp(v, 0, 1) * 255))
			}
		}
	}
}
