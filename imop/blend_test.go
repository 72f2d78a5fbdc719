package imop

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlend_Basic(t *testing.T) {
	assert := assert.New(t)

	assert.True(Multiply.Valid())
	assert.True(Normal.Valid())
	assert.False(Mode("blend_mode_not_supported").Valid())

	assert.Equal(0.25, Multiply.Blend(0.5, 0.5))
	assert.Equal(0.75, Screen.Blend(0.5, 0.5))
	assert.Equal(0.2, Darken.Blend(0.2, 0.8))
	assert.Equal(0.8, Lighten.Blend(0.2, 0.8))
	assert.Equal(0.3, Mode("unknown").Blend(0.3, 0.9))
}

func TestBlend_Modes(t *testing.T) {
	// Note: the expected values match the results obtained in Photoshop
	// by overlapping two layers and applying the blend mode.
	pinkFront := color.RGBA{R: 214, G: 20, B: 65, A: 255}
	orangeBack := color.RGBA{R: 250, G: 121, B: 17, A: 255}

	tests := []struct {
		mode     Mode
		expected []uint8
	}{
		{Normal, []uint8{214, 20, 65, 255}},
		{Darken, []uint8{214, 20, 17, 255}},
		{Lighten, []uint8{250, 121, 65, 255}},
		{Multiply, []uint8{210, 9, 4, 255}},
		{Screen, []uint8{254, 132, 78, 255}},
	}

	rect := image.Rect(0, 0, 1, 1)
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			backdrop := image.NewNRGBA(rect)
			draw.Draw(backdrop, rect, &image.Uniform{orangeBack}, image.Point{}, draw.Src)

			Tint(backdrop, rect, pinkFront, tt.mode, 1)
			assert.EqualValues(t, tt.expected, backdrop.Pix)
		})
	}
}

func TestTint_Opacity(t *testing.T) {
	rect := image.Rect(0, 0, 2, 2)
	img := image.NewNRGBA(rect)
	draw.Draw(img, rect, &image.Uniform{color.NRGBA{R: 250, G: 120, B: 18, A: 255}}, image.Point{}, draw.Src)

	Tint(img, rect, color.NRGBA{R: 210, G: 20, B: 66, A: 255}, Normal, 0.5)
	assert.InDelta(t, 230, img.Pix[0], 1)
	assert.InDelta(t, 70, img.Pix[1], 1)
	assert.InDelta(t, 42, img.Pix[2], 1)
	assert.Equal(t, uint8(255), img.Pix[3])

	before := append([]uint8(nil), img.Pix...)
	Tint(img, rect, color.Black, Normal, 0)
	assert.Equal(t, before, img.Pix)
}

func TestTint_ClipsToBounds(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))

	Tint(img, image.Rect(2, 2, 10, 10), color.White, Normal, 1)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255}, img.NRGBAAt(3, 3))
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(1, 1))

	Tint(img, image.Rect(-5, -5, -1, -1), color.White, Normal, 1)
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(0, 0))
}
