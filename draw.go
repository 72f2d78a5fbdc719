package vidscope

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/vidscope/vidscope/detect"
	"github.com/vidscope/vidscope/imop"
	"github.com/vidscope/vidscope/utils"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RedactMode defines how detected regions are obscured.
type RedactMode string

const (
	RedactNone     RedactMode = ""
	RedactBlur     RedactMode = "blur"
	RedactPixelate RedactMode = "pixelate"
)

// goldenAngle spreads consecutive class hues around the color wheel.
const goldenAngle = 137.50776405003785

// Annotator draws detection boxes and labels over the frames.
type Annotator struct {
	// BoxColor is a hex color used for every box. When empty each class
	// gets its own color.
	BoxColor   string
	Thickness  int
	ShowLabels bool
	ShowScores bool
	Redact     RedactMode
	// RedactStrength is the blur sigma or the pixelation block size.
	RedactStrength float64
	// Fill tints the inside of the boxes with their color using this blend mode, none when empty.
	Fill        imop.Mode
	FillOpacity float64
}

// NewAnnotator returns an annotator drawing 2px boxes with labels and scores.
func NewAnnotator() *Annotator {
	return &Annotator{
		Thickness:      2,
		ShowLabels:     true,
		ShowScores:     true,
		RedactStrength: 12,
		FillOpacity:    0.35,
	}
}

// ColorOf returns the box color of a detection.
func (a *Annotator) ColorOf(d detect.Detection) color.Color {
	if a.BoxColor != "" {
		return utils.HexToRGBA(a.BoxColor)
	}
	return classColor(d.ClassID)
}

// classColor picks a saturated, well separated hue for every class id.
func classColor(id int) color.Color {
	hue := math.Mod(float64(id)*goldenAngle, 360)
	r, g, b := colorful.Hsv(hue, 0.85, 0.95).RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// Annotate draws the detections on img in place.
// Regions are redacted first, so boxes and labels stay readable.
func (a *Annotator) Annotate(img *image.NRGBA, dets []detect.Detection) {
	for _, d := range dets {
		a.redact(img, d.Box)
	}
	for _, d := range dets {
		col := a.ColorOf(d)
		if a.Fill != "" {
			imop.Tint(img, d.Box, col, a.Fill, a.FillOpacity)
		}
		drawRect(img, d.Box, col, a.Thickness)
		if a.ShowLabels {
			a.drawLabel(img, d, col)
		}
	}
}

func (a *Annotator) redact(img *image.NRGBA, r image.Rectangle) {
	r = r.Intersect(img.Bounds())
	if r.Empty() || a.Redact == RedactNone {
		return
	}

	region := imaging.Crop(img, r)
	switch a.Redact {
	case RedactBlur:
		region = imaging.Blur(region, a.RedactStrength)
	case RedactPixelate:
		block := utils.Max(1, int(a.RedactStrength))
		w, h := utils.Max(1, r.Dx()/block), utils.Max(1, r.Dy()/block)
		region = imaging.Resize(region, w, h, imaging.Box)
		region = imaging.Resize(region, r.Dx(), r.Dy(), imaging.NearestNeighbor)
	default:
		return
	}
	draw.Draw(img, r, region, image.Point{}, draw.Src)
}

func (a *Annotator) drawLabel(img *image.NRGBA, d detect.Detection, col color.Color) {
	text := d.Label
	if a.ShowScores {
		text = fmt.Sprintf("%s %.2f", d.Label, d.Score)
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Metrics().Height.Ceil() + 2

	// Put the label above the box, or inside it at the top edge of the frame.
	top := d.Box.Min.Y - height
	if top < img.Bounds().Min.Y {
		top = d.Box.Min.Y
	}
	bg := image.Rect(d.Box.Min.X, top, d.Box.Min.X+width, top+height).Intersect(img.Bounds())
	draw.Draw(img, bg, image.NewUniform(col), image.Point{}, draw.Src)

	fd := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor(col)),
		Face: face,
		Dot:  fixed.P(d.Box.Min.X+2, top+face.Metrics().Ascent.Ceil()+1),
	}
	fd.DrawString(text)
}

// textColor returns black or white, whichever reads better on the background.
func textColor(bg color.Color) color.Color {
	c, ok := colorful.MakeColor(bg)
	if !ok {
		return color.White
	}
	if _, _, l := c.Hsl(); l > 0.55 {
		return color.Black
	}
	return color.White
}

// drawRect draws the outline of r with the given thickness, growing inwards.
func drawRect(img *image.NRGBA, r image.Rectangle, col color.Color, thickness int) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	t := utils.Clamp(thickness, 1, utils.Max(1, utils.Min(r.Dx(), r.Dy())/2))
	src := image.NewUniform(col)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e, src, image.Point{}, draw.Src)
	}
}
