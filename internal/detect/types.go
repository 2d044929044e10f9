// Package detect adapts the external face detection and embedding-extraction
// capability. The core never decodes, detects or displays images itself; it
// consumes Detections produced here (or by any other Extractor) as opaque
// inputs.
package detect

import (
	"context"
	"image"
)

// Detection is one detected face: its bounding box in the source image and
// the fixed-length embedding extracted from it.
type Detection struct {
	BBox      image.Rectangle
	Embedding []float32
}

// Extractor is the detect-and-embed capability. Implementations return zero
// or more detections per image; zero detections is a normal result, not an
// error.
type Extractor interface {
	DetectAndEmbed(ctx context.Context, img image.Image) ([]Detection, error)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, img image.Image) ([]Detection, error)

func (f ExtractorFunc) DetectAndEmbed(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}
