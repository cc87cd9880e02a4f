package objective

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
)

// LoadTarget decodes the image at path, resizes it to shape with an
// anti-aliasing filter and returns its first three channels flattened in
// row-major (y, x, channel) order.
func LoadTarget(path string, shape Shape) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ResourceNotFoundError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to open target: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode target %s: %w", path, err)
	}

	return flatten(Resize(img, shape.Width, shape.Height), shape), nil
}

// Resize scales img to width x height using Catmull-Rom resampling. An image
// already at the requested size is only converted to NRGBA.
func Resize(img image.Image, width, height int) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if b.Dx() == width && b.Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// FromImage converts an image of the domain size into a flat candidate.
// Alpha is dropped.
func FromImage(img image.Image) ([]float64, error) {
	b := img.Bounds()
	if b.Dx() != DomainShape.Width || b.Dy() != DomainShape.Height {
		return nil, &ShapeError{Got: b.Dx() * b.Dy() * DomainShape.Channels, Want: DomainShape}
	}

	nrgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	return flatten(nrgba, DomainShape), nil
}

// ToImage renders a flat candidate as an opaque image. Values are clamped to
// [0, 255] and rounded.
func ToImage(x []float64) (*image.NRGBA, error) {
	s := DomainShape
	if len(x) != s.Size() {
		return nil, &ShapeError{Got: len(x), Want: s}
	}

	img := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for px := 0; px < s.Width; px++ {
			img.SetNRGBA(px, y, color.NRGBA{
				R: toByte(x[s.Offset(y, px, 0)]),
				G: toByte(x[s.Offset(y, px, 1)]),
				B: toByte(x[s.Offset(y, px, 2)]),
				A: 255,
			})
		}
	}
	return img, nil
}

// DiffImage renders the per-pixel L1 error of x against the target as a
// false-color image: black is exact, red is the largest possible error.
func (im *Image) DiffImage(x []float64) (*image.NRGBA, error) {
	s := im.shape
	if len(x) != s.Size() {
		return nil, &ShapeError{Got: len(x), Want: s}
	}

	img := image.NewNRGBA(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for px := 0; px < s.Width; px++ {
			var sum float64
			for c := 0; c < s.Channels; c++ {
				i := s.Offset(y, px, c)
				sum += math.Abs(x[i] - im.target[i])
			}
			// Normalize to 0-255 over all channels
			img.SetNRGBA(px, y, color.NRGBA{R: toByte(sum / float64(s.Channels)), A: 255})
		}
	}
	return img, nil
}

func flatten(img *image.NRGBA, shape Shape) []float64 {
	out := make([]float64, shape.Size())
	for y := 0; y < shape.Height; y++ {
		for x := 0; x < shape.Width; x++ {
			i := img.PixOffset(x, y)
			for c := 0; c < shape.Channels; c++ {
				out[shape.Offset(y, x, c)] = float64(img.Pix[i+c])
			}
		}
	}
	return out
}

// toByte clamps v to [0, 255] and rounds it. NaN maps to 0.
func toByte(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}
