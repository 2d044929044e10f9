package enroll

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Augmentation parameters. The fixed set targets robustness of the averaged
// template against natural capture variance (pose and lighting wobble), not
// exhaustive data augmentation.
const (
	rotationDegrees  = 10.0
	darkenFactor     = 0.8
	brightenFactor   = 1.2
	augmentedPerFace = 6 // original + mirror + two rotations + two brightness scalings
)

// Augment derives the fixed perturbation set from a face image: the original,
// its horizontal mirror, ±10 degree rotations and two brightness scalings.
// Every derived image goes back through the external extractor; derivatives
// that yield no embedding are simply dropped by the aggregator.
func Augment(img image.Image) []image.Image {
	out := make([]image.Image, 0, augmentedPerFace)
	out = append(out,
		img,
		mirror(img),
		rotate(img, -rotationDegrees),
		rotate(img, rotationDegrees),
		scaleBrightness(img, darkenFactor),
		scaleBrightness(img, brightenFactor),
	)
	return out
}

func mirror(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			dst.Set(bounds.Dx()-1-x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return dst
}

// rotate spins the image by the given angle around its center, keeping the
// original dimensions. Corners rotated out of frame are cropped, matching the
// small-angle use this is built for.
func rotate(img image.Image, degrees float64) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(w)/2, float64(h)/2

	// Affine transform rotating around the image center (source to
	// destination coordinates, row-major 2x3).
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	draw.BiLinear.Transform(dst, m, img, bounds, draw.Src, nil)
	return dst
}

func scaleBrightness(img image.Image, factor float64) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			dst.SetRGBA(x, y, color.RGBA{
				R: clamp8(float64(r>>8) * factor),
				G: clamp8(float64(g>>8) * factor),
				B: clamp8(float64(b>>8) * factor),
				A: uint8(a >> 8),
			})
		}
	}
	return dst
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
