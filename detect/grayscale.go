package detect

import (
	"image"

	"github.com/vidscope/vidscope/utils"
)

// rgbToGrayscale converts an image to grayscale mode and
// returns the pixel values as an one dimensional array.
func rgbToGrayscale(src *image.NRGBA) []uint8 {
	width, height := src.Bounds().Dx(), src.Bounds().Dy()
	gray := make([]uint8, width*height)

	for y := 0; y < height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+width*4]
		for x := 0; x < width; x++ {
			r, g, b := row[x*4], row[x*4+1], row[x*4+2]
			gray[y*width+x] = uint8(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
		}
	}

	return gray
}

// grayscale returns the luminance of any image together with its dimensions.
func grayscale(img image.Image) (pixels []uint8, cols, rows int) {
	src := utils.ImgToNRGBA(img)
	return rgbToGrayscale(src), src.Bounds().Dx(), src.Bounds().Dy()
}
