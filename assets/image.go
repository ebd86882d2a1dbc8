package assets

import (
	"bufio"
	"image"
	_ "image/png"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Image is decoded pixel data in the layout the renderer takes: rows top to
// bottom, four bytes per pixel in R, G, B, A order, no padding.
type Image struct {
	Pixels []byte
	Width  int
	Height int
}

// LoadImage decodes a PNG, BMP or WebP file.
func LoadImage(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	defer file.Close()

	img, err := DecodeImage(bufio.NewReader(file))
	if err != nil {
		return nil, errors.Wrapf(err, "image %s", path)
	}
	return img, nil
}

func DecodeImage(r io.Reader) (*Image, error) {
	decoded, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	bounds := decoded.Bounds()
	if bounds.Empty() {
		return nil, errors.Newf("%s image has no pixels", format)
	}

	return fromImage(decoded), nil
}

// fromImage converts any image to packed RGBA, reusing the pixel slice when
// the image is already an *image.RGBA with no row padding.
func fromImage(src image.Image) *Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if rgba, ok := src.(*image.RGBA); ok && rgba.Stride == width*4 && bounds.Min == (image.Point{}) {
		return &Image{Pixels: rgba.Pix, Width: width, Height: height}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return &Image{Pixels: dst.Pix, Width: width, Height: height}
}

// Fit scales the image down with nearest-neighbour sampling so neither side
// exceeds maxSide. Smaller images are returned unchanged.
func (img *Image) Fit(maxSide int) *Image {
	if maxSide <= 0 || (img.Width <= maxSide && img.Height <= maxSide) {
		return img
	}

	width, height := maxSide, maxSide
	if img.Width > img.Height {
		height = max(1, img.Height*maxSide/img.Width)
	} else {
		width = max(1, img.Width*maxSide/img.Height)
	}

	src := &image.RGBA{
		Pix:    img.Pixels,
		Stride: img.Width * 4,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	return &Image{Pixels: dst.Pix, Width: width, Height: height}
}
