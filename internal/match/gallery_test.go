package match

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/tomas/secureface/internal/detect"
)

func galleryFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{200, 100, 50, 255})
		}
	}
	return img
}

func TestBatchScoreGalleryCounters(t *testing.T) {
	// One decodable image with a face that matches person a at full
	// confidence, plus one undecodable image.
	e := twoPersonEngine(t)

	extractor := detect.ExtractorFunc(func(ctx context.Context, img image.Image) ([]detect.Detection, error) {
		return []detect.Detection{
			{BBox: image.Rect(0, 0, 2, 2), Embedding: []float32{0.01, 0.01}},
		}, nil
	})

	report := e.BatchScoreGallery(context.Background(), []GalleryImage{
		{Name: "good.jpg", Image: galleryFrame()},
		{Name: "broken.jpg", Image: nil},
	}, extractor)

	if report.Processed != 1 || report.Matches != 1 || report.Unknown != 0 || report.Errors != 1 {
		t.Errorf("report = %+v, want processed:1 matches:1 unknown:0 errors:1", report)
	}
	if len(report.Images) != 1 || len(report.Images[0].Faces) != 1 {
		t.Fatalf("annotations = %+v", report.Images)
	}
	face := report.Images[0].Faces[0]
	if !face.Matched || face.PersonID != "a" {
		t.Errorf("annotation = %+v, want match on person a", face)
	}
}

func TestBatchScoreGalleryUnknownFaces(t *testing.T) {
	e := twoPersonEngine(t)

	extractor := detect.ExtractorFunc(func(ctx context.Context, img image.Image) ([]detect.Detection, error) {
		// Far from every template: no match.
		return []detect.Detection{
			{BBox: image.Rect(0, 0, 2, 2), Embedding: []float32{5, 5}},
		}, nil
	})

	report := e.BatchScoreGallery(context.Background(), []GalleryImage{
		{Name: "stranger.jpg", Image: galleryFrame()},
	}, extractor)

	if report.Processed != 1 || report.Unknown != 1 || report.Matches != 0 {
		t.Errorf("report = %+v, want one unknown face", report)
	}
	if report.Images[0].Faces[0].Matched {
		t.Error("unknown face flagged as matched")
	}
}

func TestBatchScoreGalleryExtractorFailureContinues(t *testing.T) {
	e := twoPersonEngine(t)

	calls := 0
	extractor := detect.ExtractorFunc(func(ctx context.Context, img image.Image) ([]detect.Detection, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("decoder exploded")
		}
		return nil, nil
	})

	report := e.BatchScoreGallery(context.Background(), []GalleryImage{
		{Name: "bad.jpg", Image: galleryFrame()},
		{Name: "empty.jpg", Image: galleryFrame()},
	}, extractor)

	if report.Errors != 1 {
		t.Errorf("errors = %d, want 1", report.Errors)
	}
	if report.Processed != 1 {
		t.Errorf("processed = %d, want 1 (batch must continue past failures)", report.Processed)
	}
}

func TestBatchScoreGalleryHonorsContext(t *testing.T) {
	e := twoPersonEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := detect.ExtractorFunc(func(ctx context.Context, img image.Image) ([]detect.Detection, error) {
		t.Error("extractor called after cancellation")
		return nil, nil
	})

	report := e.BatchScoreGallery(ctx, []GalleryImage{{Name: "x.jpg", Image: galleryFrame()}}, extractor)
	if report.Processed != 0 {
		t.Errorf("processed = %d after cancel, want 0", report.Processed)
	}
}
