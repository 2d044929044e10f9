package detect

import (
	"image"
	"image/color"
	"image/draw"
)

// Enhance crops the face region out of img and applies a linear contrast
// stretch so the darkest pixel maps to 0 and the brightest to 255. The
// result feeds augmentation and re-extraction during enrollment.
func Enhance(img image.Image, bbox image.Rectangle) image.Image {
	region := bbox.Intersect(img.Bounds())
	if region.Empty() {
		region = img.Bounds()
	}

	face := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(face, face.Bounds(), img, region.Min, draw.Src)

	minL, maxL := 255, 0
	for y := 0; y < face.Bounds().Dy(); y++ {
		for x := 0; x < face.Bounds().Dx(); x++ {
			l := luma(face.RGBAAt(x, y))
			if l < minL {
				minL = l
			}
			if l > maxL {
				maxL = l
			}
		}
	}
	if maxL <= minL {
		return face // flat region, nothing to stretch
	}

	scale := 255.0 / float64(maxL-minL)
	for y := 0; y < face.Bounds().Dy(); y++ {
		for x := 0; x < face.Bounds().Dx(); x++ {
			px := face.RGBAAt(x, y)
			face.SetRGBA(x, y, color.RGBA{
				R: stretch(px.R, minL, scale),
				G: stretch(px.G, minL, scale),
				B: stretch(px.B, minL, scale),
				A: px.A,
			})
		}
	}
	return face
}

func stretch(v uint8, minL int, scale float64) uint8 {
	out := (float64(v) - float64(minL)) * scale
	if out < 0 {
		return 0
	}
	if out > 255 {
		return 255
	}
	return uint8(out)
}

// Variance returns the grayscale pixel variance of an image, the quality
// signal consumed by the matching engine's adaptive threshold. Sharp,
// well-lit frames score high; flat or blurry frames score low.
func Variance(img image.Image) float64 {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	if n == 0 {
		return 0
	}

	var sum, sumSq float64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := float64(grayAt(img, x, y))
			sum += g
			sumSq += g * g
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

func grayAt(img image.Image, x, y int) uint8 {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8((299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000)
}

func luma(c color.RGBA) int {
	return (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
}
