// Package enroll turns a burst of raw single-face captures into one robust
// per-person template with a quality score, ready to persist.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomas/secureface/internal/detect"
	"github.com/tomas/secureface/internal/logging"
	"github.com/tomas/secureface/internal/store"
	"github.com/tomas/secureface/internal/vault"
)

// ErrInsufficientData is returned when the capture stream exhausts before the
// target number of accepted frames. Nothing is persisted in that case.
var ErrInsufficientData = errors.New("enroll: insufficient training data")

// CaptureSource yields raw frames from an external capture device. Next
// returns io.EOF when the stream is exhausted.
type CaptureSource interface {
	Next(ctx context.Context) (image.Image, error)
}

// Aggregator runs the enrollment pipeline: accept single-face frames, enhance
// the face region, augment it, re-extract embeddings from every derivative
// and fold everything into one averaged template.
type Aggregator struct {
	extractor detect.Extractor
	log       *zap.Logger
}

func NewAggregator(extractor detect.Extractor, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		extractor: extractor,
		log:       logging.OrNop(logger).Named("training"),
	}
}

// Progress reports accepted capture counts to the caller, e.g. for a CLI
// progress bar. May be nil.
type Progress func(accepted, target int)

// Enroll consumes captures from src until targetSamples frames with exactly
// one detected face have been processed, then builds the person record. A
// frame with zero or multiple faces is discarded without counting. Enrollment
// fails with ErrInsufficientData when the stream exhausts early or when fewer
// than targetSamples embeddings survive derivative extraction. The context is
// checked between capture attempts so enrollment can be stopped cooperatively.
func (a *Aggregator) Enroll(ctx context.Context, src CaptureSource, id, name string, targetSamples int, progress Progress) (store.PersonRecord, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if targetSamples <= 0 {
		return store.PersonRecord{}, fmt.Errorf("enroll: target sample count must be positive, got %d", targetSamples)
	}

	a.log.Info("starting capture", zap.String("id", id), zap.String("name", name),
		zap.Int("target_samples", targetSamples))

	var collected [][]float32
	accepted := 0

	for accepted < targetSamples {
		if err := ctx.Err(); err != nil {
			return store.PersonRecord{}, fmt.Errorf("enroll: capture stopped: %w", err)
		}

		frame, err := src.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.log.Warn("capture source failed", zap.Error(err))
			}
			break
		}

		detections, err := a.extractor.DetectAndEmbed(ctx, frame)
		if err != nil {
			a.log.Warn("detection failed, skipping frame", zap.Error(err))
			continue
		}
		if len(detections) != 1 {
			// Zero or multiple faces: discarded, not counted.
			continue
		}

		face := detect.Enhance(frame, detections[0].BBox)
		collected = append(collected, a.embedDerivatives(ctx, face)...)

		accepted++
		a.log.Info("captured frame", zap.Int("accepted", accepted), zap.Int("target", targetSamples))
		if progress != nil {
			progress(accepted, targetSamples)
		}
	}

	// Accepted frames alone are not enough: every derivative of a frame may
	// have been dropped by the extractor, and a template averaged from too few
	// (or zero) embeddings must never be persisted.
	if accepted < targetSamples || len(collected) < targetSamples {
		a.log.Error("insufficient training data",
			zap.Int("accepted", accepted), zap.Int("target", targetSamples),
			zap.Int("embeddings", len(collected)))
		return store.PersonRecord{}, fmt.Errorf("%w: %d/%d accepted captures, %d embeddings",
			ErrInsufficientData, accepted, targetSamples, len(collected))
	}

	template, quality := aggregate(collected)
	rec := store.PersonRecord{
		ID:                  id,
		Name:                name,
		Template:            template,
		QualityScore:        quality,
		TrainingSampleCount: len(collected),
		CreatedAt:           time.Now().UTC(),
		IntegrityHash:       vault.HashTemplate(template),
	}

	a.log.Info("completed training", zap.String("id", id), zap.String("name", name),
		zap.Float64("quality_score", quality), zap.Int("samples", len(collected)))
	return rec, nil
}

// embedDerivatives re-extracts an embedding from every augmented derivative
// of the face. Derivatives where the extractor finds nothing are dropped, not
// errors - a rotated or darkened face may legitimately stop being detectable.
func (a *Aggregator) embedDerivatives(ctx context.Context, face image.Image) [][]float32 {
	var out [][]float32
	for _, derived := range Augment(face) {
		detections, err := a.extractor.DetectAndEmbed(ctx, derived)
		if err != nil || len(detections) == 0 {
			continue
		}
		out = append(out, detections[0].Embedding)
	}
	return out
}

// aggregate folds the collected embeddings into the element-wise mean and
// derives the quality score 1/(1+mean(element-wise variance)). The score is
// in (0,1], monotonically decreasing with capture inconsistency, and later
// dampens match confidence for this person.
func aggregate(embeddings [][]float32) ([]float32, float64) {
	if len(embeddings) == 0 {
		return nil, 0
	}
	dim := len(embeddings[0])

	mean := make([]float64, dim)
	for _, e := range embeddings {
		for i, v := range e {
			mean[i] += float64(v)
		}
	}
	for i := range mean {
		mean[i] /= float64(len(embeddings))
	}

	var varianceSum float64
	for _, e := range embeddings {
		for i, v := range e {
			d := float64(v) - mean[i]
			varianceSum += d * d
		}
	}
	meanVariance := varianceSum / float64(len(embeddings)) / float64(dim)

	template := make([]float32, dim)
	for i, v := range mean {
		template[i] = float32(v)
	}
	return template, 1.0 / (1.0 + meanVariance)
}
