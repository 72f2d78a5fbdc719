package vidscope

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vidscope/vidscope/detect"
	"github.com/vidscope/vidscope/imop"
)

var gray = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}

func grayFrame(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(gray), image.Point{}, draw.Src)
	return img
}

func TestDraw_ShouldOutlineDetections(t *testing.T) {
	img := grayFrame(64, 64)
	a := NewAnnotator()
	a.BoxColor = "#ff0000"
	a.ShowLabels = false

	a.Annotate(img, []detect.Detection{{Label: "face", Box: image.Rect(10, 10, 30, 30)}})

	red := color.NRGBA{R: 0xff, A: 0xff}
	assert.Equal(t, red, img.NRGBAAt(10, 20))
	assert.Equal(t, red, img.NRGBAAt(11, 20))
	assert.Equal(t, red, img.NRGBAAt(29, 20))
	assert.Equal(t, red, img.NRGBAAt(20, 10))
	assert.Equal(t, red, img.NRGBAAt(20, 29))
	assert.Equal(t, gray, img.NRGBAAt(20, 20))
	assert.Equal(t, gray, img.NRGBAAt(9, 20))
	assert.Equal(t, gray, img.NRGBAAt(30, 20))
}

func TestDraw_ShouldDrawLabelAboveTheBox(t *testing.T) {
	img := grayFrame(128, 64)
	a := NewAnnotator()
	a.BoxColor = "#ff0000"

	a.Annotate(img, []detect.Detection{{Label: "person", Score: 0.87, Box: image.Rect(10, 40, 60, 60)}})

	// The two pixel wide left margin of the label keeps the background color.
	assert.Equal(t, color.NRGBA{R: 0xff, A: 0xff}, img.NRGBAAt(11, 30))
	assert.Equal(t, gray, img.NRGBAAt(11, 10))

	var text bool
	for x := 12; x < 60; x++ {
		for y := 26; y < 40; y++ {
			if img.NRGBAAt(x, y) == (color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}) {
				text = true
			}
		}
	}
	assert.True(t, text, "the label text should be drawn in white over the red background")
}

func TestDraw_ShouldPixelateRegions(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), A: 0xff})
		}
	}
	a := NewAnnotator()
	a.Redact = RedactPixelate
	a.RedactStrength = 4
	a.Thickness = 1
	a.ShowLabels = false

	a.Annotate(img, []detect.Detection{{Box: image.Rect(0, 0, 8, 8)}})

	assert.Equal(t, img.NRGBAAt(2, 2), img.NRGBAAt(3, 3))
	assert.Equal(t, img.NRGBAAt(2, 2), img.NRGBAAt(2, 3))
	assert.NotEqual(t, img.NRGBAAt(2, 2), img.NRGBAAt(5, 5))
	// Outside of the box nothing changes.
	assert.Equal(t, color.NRGBA{R: 160, G: 160, A: 0xff}, img.NRGBAAt(10, 10))
}

func TestDraw_ShouldBlurRegions(t *testing.T) {
	img := grayFrame(32, 32)
	img.SetNRGBA(12, 12, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})

	a := NewAnnotator()
	a.Redact = RedactBlur
	a.RedactStrength = 3
	a.ShowLabels = false

	a.Annotate(img, []detect.Detection{{Box: image.Rect(4, 4, 20, 20)}})

	assert.NotEqual(t, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, img.NRGBAAt(12, 12))
	assert.Greater(t, img.NRGBAAt(13, 12).R, gray.R)
}

func TestDraw_ShouldTintBoxes(t *testing.T) {
	img := grayFrame(32, 32)
	a := NewAnnotator()
	a.BoxColor = "#000000"
	a.Fill = imop.Multiply
	a.FillOpacity = 1
	a.ShowLabels = false

	a.Annotate(img, []detect.Detection{{Box: image.Rect(8, 8, 24, 24)}})

	assert.Equal(t, color.NRGBA{A: 0xff}, img.NRGBAAt(16, 16))
	assert.Equal(t, gray, img.NRGBAAt(4, 4))
}

func TestDraw_Colors(t *testing.T) {
	a := NewAnnotator()
	person := detect.Detection{ClassID: 0}
	bicycle := detect.Detection{ClassID: 1}

	assert.NotEqual(t, a.ColorOf(person), a.ColorOf(bicycle))
	assert.Equal(t, a.ColorOf(person), a.ColorOf(detect.Detection{ClassID: 0, Label: "other"}))

	a.BoxColor = "#00ff00"
	assert.Equal(t, color.RGBA{G: 0xff, A: 0xff}, a.ColorOf(person))
	assert.Equal(t, a.ColorOf(person), a.ColorOf(bicycle))

	assert.Equal(t, color.Black, textColor(color.White))
	assert.Equal(t, color.White, textColor(color.Black))
}
