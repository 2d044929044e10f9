package match

import (
	"context"
	"image"

	"go.uber.org/zap"

	"github.com/tomas/secureface/internal/detect"
)

// matchedConfidence is the boundary between a "matched" and an "unknown"
// face in gallery classification.
const matchedConfidence = 0.5

// GalleryImage is one input to BatchScoreGallery. A nil Image marks a frame
// that failed to decode upstream; it is counted as an error and skipped.
type GalleryImage struct {
	Name  string
	Image image.Image
}

// Annotation describes one scored face for the presentation layer.
type Annotation struct {
	BBox       image.Rectangle
	PersonID   string
	PersonName string
	Confidence float64
	Matched    bool
}

// ImageReport holds the annotations of a single processed gallery image.
type ImageReport struct {
	Name  string
	Faces []Annotation
}

// GalleryReport accumulates counters over a whole batch, plus the per-image
// annotations.
type GalleryReport struct {
	Processed int
	Matches   int
	Unknown   int
	Errors    int
	Images    []ImageReport
}

// BatchScoreGallery runs the external detect-and-embed capability over each
// image and matches every detected face. Undecodable images and extractor
// failures increment Errors and the batch continues - one bad file never
// aborts the rest. Faces above the 0.5 confidence boundary count as matches,
// the rest as unknown.
func (e *Engine) BatchScoreGallery(ctx context.Context, images []GalleryImage, extractor detect.Extractor) GalleryReport {
	log := e.log.Named("gallery")
	var report GalleryReport

	for _, gi := range images {
		if ctx.Err() != nil {
			break
		}
		if gi.Image == nil {
			report.Errors++
			log.Error("failed to decode image", zap.String("image", gi.Name))
			continue
		}

		detections, err := extractor.DetectAndEmbed(ctx, gi.Image)
		if err != nil {
			report.Errors++
			log.Error("failed to process image", zap.String("image", gi.Name), zap.Error(err))
			continue
		}

		queries := make([][]float32, len(detections))
		for i := range detections {
			queries[i] = detections[i].Embedding
		}
		results := e.MatchMany(queries)

		ir := ImageReport{Name: gi.Name, Faces: make([]Annotation, 0, len(results))}
		matched := 0
		for i, res := range results {
			ann := Annotation{
				BBox:       detections[i].BBox,
				Confidence: res.Confidence,
			}
			if res.Person != nil && res.Confidence > matchedConfidence {
				ann.PersonID = res.Person.ID
				ann.PersonName = res.Person.Name
				ann.Matched = true
				report.Matches++
				matched++
			} else {
				report.Unknown++
			}
			ir.Faces = append(ir.Faces, ann)
		}

		report.Processed++
		report.Images = append(report.Images, ir)
		log.Info("processed image", zap.String("image", gi.Name),
			zap.Int("faces", len(detections)), zap.Int("matches", matched))
	}

	return report
}
