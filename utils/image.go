package utils

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
)

// ImgToNRGBA converts any image type to *image.NRGBA with min-point at (0, 0).
// Images that already satisfy this are returned as they are, without copying.
func ImgToNRGBA(img image.Image) *image.NRGBA {
	srcBounds := img.Bounds()
	if srcBounds.Min.X == 0 && srcBounds.Min.Y == 0 {
		if src0, ok := img.(*image.NRGBA); ok {
			return src0
		}
	}
	srcMinX := srcBounds.Min.X
	srcMinY := srcBounds.Min.Y

	dstBounds := srcBounds.Sub(srcBounds.Min)
	dstW := dstBounds.Dx()
	dstH := dstBounds.Dy()
	dst := image.NewNRGBA(dstBounds)

	switch src := img.(type) {
	case *image.NRGBA:
		rowSize := srcBounds.Dx() * 4
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			si := src.PixOffset(srcMinX, srcMinY+dstY)
			copy(dst.Pix[di:di+rowSize], src.Pix[si:si+rowSize])
		}
	case *image.RGBA:
		// Video frames are opaque, so premultiplied and straight alpha agree.
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			si := src.PixOffset(srcMinX, srcMinY+dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				c := color.NRGBAModel.Convert(color.RGBA{
					R: src.Pix[si+0],
					G: src.Pix[si+1],
					B: src.Pix[si+2],
					A: src.Pix[si+3],
				}).(color.NRGBA)
				dst.Pix[di+0] = c.R
				dst.Pix[di+1] = c.G
				dst.Pix[di+2] = c.B
				dst.Pix[di+3] = c.A
				di += 4
				si += 4
			}
		}
	case *image.YCbCr:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				srcX := srcMinX + dstX
				srcY := srcMinY + dstY
				siy := src.YOffset(srcX, srcY)
				sic := src.COffset(srcX, srcY)
				r, g, b := color.YCbCrToRGB(src.Y[siy], src.Cb[sic], src.Cr[sic])
				dst.Pix[di+0] = r
				dst.Pix[di+1] = g
				dst.Pix[di+2] = b
				dst.Pix[di+3] = 0xff
				di += 4
			}
		}
	default:
		for dstY := 0; dstY < dstH; dstY++ {
			di := dst.PixOffset(0, dstY)
			for dstX := 0; dstX < dstW; dstX++ {
				c := color.NRGBAModel.Convert(img.At(srcMinX+dstX, srcMinY+dstY)).(color.NRGBA)
				dst.Pix[di+0] = c.R
				dst.Pix[di+1] = c.G
				dst.Pix[di+2] = c.B
				dst.Pix[di+3] = c.A
				di += 4
			}
		}
	}

	return dst
}

// RGBToNRGBA converts a packed rgb24 buffer into an opaque image.
func RGBToNRGBA(pixels []uint8, width, height int) (*image.NRGBA, error) {
	if len(pixels) < width*height*3 {
		return nil, fmt.Errorf("pixel buffer too short: got %d bytes, want %d", len(pixels), width*height*3)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < width*height*3; i, j = i+3, j+4 {
		dst.Pix[j+0] = pixels[i+0]
		dst.Pix[j+1] = pixels[i+1]
		dst.Pix[j+2] = pixels[i+2]
		dst.Pix[j+3] = 0xff
	}
	return dst, nil
}

// NRGBAToRGB packs an image into an rgb24 buffer, dropping the alpha channel.
// The buf slice is reused when it is large enough.
func NRGBAToRGB(src *image.NRGBA, buf []uint8) []uint8 {
	width, height := src.Bounds().Dx(), src.Bounds().Dy()
	if cap(buf) < width*height*3 {
		buf = make([]uint8, width*height*3)
	}
	buf = buf[:width*height*3]

	i := 0
	for y := 0; y < height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+width*4]
		for x := 0; x < width*4; x += 4 {
			buf[i+0] = row[x+0]
			buf[i+1] = row[x+1]
			buf[i+2] = row[x+2]
			i += 3
		}
	}
	return buf
}

// EncodeImage encodes an image into the format given by the file extension.
// An empty extension falls back to jpeg.
func EncodeImage(w io.Writer, img image.Image, ext string) error {
	switch strings.ToLower(ext) {
	case "", ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case ".png":
		return png.Encode(w, img)
	case ".bmp":
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("unsupported image format: %s", ext)
	}
}
