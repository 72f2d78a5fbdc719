package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/color/palette"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeNRGBAImage(rect image.Rectangle, colors []color.Color) *image.NRGBA {
	img := image.NewNRGBA(rect)
	fillDrawImage(img, colors)
	return img
}

func makeYCbCrImage(rect image.Rectangle, colors []color.Color, sr image.YCbCrSubsampleRatio) *image.YCbCr {
	img := image.NewYCbCr(rect, sr)
	j := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			iy := img.YOffset(x, y)
			ic := img.COffset(x, y)
			c := color.NRGBAModel.Convert(colors[j]).(color.NRGBA)
			img.Y[iy], img.Cb[ic], img.Cr[ic] = color.RGBToYCbCr(c.R, c.G, c.B)
			j = (j + 1) % len(colors)
		}
	}
	return img
}

func fillDrawImage(img *image.NRGBA, colors []color.Color) {
	colorsNRGBA := make([]color.NRGBA, len(colors))
	for i, c := range colors {
		nrgba := color.NRGBAModel.Convert(c).(color.NRGBA)
		nrgba.A = uint8(i % 256)
		colorsNRGBA[i] = nrgba
	}
	rect := img.Bounds()
	i := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetNRGBA(x, y, colorsNRGBA[i])
			i = (i + 1) % len(colorsNRGBA)
		}
	}
}

func TestImage_ImgToNRGBA(t *testing.T) {
	rect := image.Rect(-1, -1, 15, 15)
	colors := palette.Plan9
	testCases := []struct {
		name string
		img  image.Image
	}{
		{name: "NRGBA", img: makeNRGBAImage(rect, colors)},
		{name: "YCbCr-444", img: makeYCbCrImage(rect, colors, image.YCbCrSubsampleRatio444)},
		{name: "YCbCr-420", img: makeYCbCrImage(rect, colors, image.YCbCrSubsampleRatio420)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r0 := image.NewNRGBA(tc.img.Bounds())
			for y := rect.Min.Y; y < rect.Max.Y; y++ {
				for x := rect.Min.X; x < rect.Max.X; x++ {
					r0.Set(x, y, tc.img.At(x, y))
				}
			}
			r1 := ImgToNRGBA(tc.img)

			assert.Equal(t, image.Pt(0, 0), r1.Bounds().Min)
			assert.Equal(t, r0.Pix, r1.Pix)
		})
	}
}

func TestImage_ImgToNRGBAReturnsSameImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	assert.Same(t, img, ImgToNRGBA(img))
}

func TestImage_ImgToNRGBAFromOpaqueRGBA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.Set(1, 0, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	dst := ImgToNRGBA(img)
	assert.Equal(t, []uint8{10, 20, 30, 255, 200, 100, 50, 255}, dst.Pix)
}

func TestImage_RGBRoundTrip(t *testing.T) {
	pixels := []uint8{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}
	img, err := RGBToNRGBA(pixels, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 10, G: 11, B: 12, A: 255}, img.NRGBAAt(1, 1))
	assert.Equal(t, pixels, NRGBAToRGB(img, nil))

	_, err = RGBToNRGBA(pixels[:5], 2, 2)
	assert.Error(t, err)
}

func TestImage_EncodeImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for _, ext := range []string{".jpg", ".PNG", ".bmp", ""} {
		var buf bytes.Buffer
		assert.NoError(t, EncodeImage(&buf, img, ext), ext)
		assert.NotZero(t, buf.Len(), ext)
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeImage(&buf, img, ".jpeg"))
	_, err := jpeg.Decode(&buf)
	assert.NoError(t, err)

	assert.Error(t, EncodeImage(&buf, img, ".tiff"))
}
