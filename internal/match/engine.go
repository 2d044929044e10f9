// Package match ranks query embeddings against the stored templates with a
// tolerance-driven, quality-weighted confidence model.
package match

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/tomas/secureface/internal/logging"
	"github.com/tomas/secureface/internal/store"
)

// Tolerance bounds. Values between 0.4 and 0.6 are recommended; anything set
// through SetTolerance is hard-clamped into [MinTolerance, MaxTolerance].
const (
	MinTolerance     = 0.1
	MaxTolerance     = 1.0
	DefaultTolerance = 0.5

	// cosineBoostThreshold and cosineBoost shape the confidence of a
	// candidate whose cosine similarity confirms the Euclidean match.
	cosineBoostThreshold = 0.7
	cosineBoost          = 1.2

	// relaxFactor widens the tolerance during a second-chance re-query.
	relaxFactor = 1.5
)

// Metric selects the similarity measure for Similarity.
type Metric string

const (
	// MetricEuclidean returns raw Euclidean distance: 0 is identical,
	// unbounded above, lower is more similar.
	MetricEuclidean Metric = "euclidean"
	// MetricCosine returns 1 - cosine distance: bounded [-1, 1], higher is
	// more similar.
	MetricCosine Metric = "cosine"
)

// Result is the transient outcome of one query. Person is nil when no stored
// template fell inside the tolerance.
type Result struct {
	Person     *store.PersonRecord
	Confidence float64
}

// Statistics is a read-only aggregation over the database snapshot and the
// engine configuration.
type Statistics struct {
	TotalPersons      int
	AvgQualityScore   float64
	DatabaseIntegrity bool
	CurrentTolerance  float64
}

// Engine matches query embeddings against a template store. Tolerance is
// engine-scoped state guarded by a mutex, never a process-wide global; one
// engine per store is the supported configuration.
type Engine struct {
	store *store.Store
	log   *zap.Logger

	mu        sync.Mutex
	tolerance float64
}

// NewEngine creates a matching engine over the store. A non-positive
// tolerance falls back to the default.
func NewEngine(s *store.Store, tolerance float64, logger *zap.Logger) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Engine{
		store:     s,
		log:       logging.OrNop(logger),
		tolerance: clampTolerance(tolerance),
	}
}

func clampTolerance(v float64) float64 {
	return math.Max(MinTolerance, math.Min(MaxTolerance, v))
}

// SetTolerance replaces the accept/reject boundary, clamped to [0.1, 1.0].
func (e *Engine) SetTolerance(v float64) {
	e.mu.Lock()
	e.tolerance = clampTolerance(v)
	v = e.tolerance
	e.mu.Unlock()
	e.log.Named("config").Info("matching tolerance set", zap.Float64("tolerance", v))
}

// Tolerance returns the current accept/reject boundary.
func (e *Engine) Tolerance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tolerance
}

// EuclideanDistance returns the L2 distance between two equal-length
// embeddings. A length mismatch is a programming error and panics.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("match: embedding length mismatch %d != %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Similarity computes the similarity of two embeddings under the given
// metric. Euclidean: raw distance, lower is more similar. Cosine: 1 - cosine
// distance, higher is more similar.
func Similarity(a, b []float32, metric Metric) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("match: embedding length mismatch %d != %d", len(a), len(b)))
	}
	switch metric {
	case MetricCosine:
		return 1 - store.CosineDistance(a, b)
	default:
		return EuclideanDistance(a, b)
	}
}

// MatchOne scores the query against every stored template. A record is a
// candidate only when its Euclidean distance is below the tolerance; candidate
// confidence is 1 - d/tolerance, boosted by 1.2x when cosine similarity also
// confirms the match (> 0.7), capped at 1. The boost applies per candidate
// before selection. Ties keep the first-encountered record - deterministic
// but arbitrary. The winning candidate's confidence is finally dampened by
// its own quality score. No candidate yields a nil person with confidence 0.
func (e *Engine) MatchOne(query []float32) Result {
	e.mu.Lock()
	tol := e.tolerance
	e.mu.Unlock()
	return e.matchWithTolerance(query, tol)
}

func (e *Engine) matchWithTolerance(query []float32, tolerance float64) Result {
	persons := e.store.ListPersons()

	var best *store.PersonRecord
	bestConfidence := 0.0

	for i := range persons {
		p := &persons[i]
		d := EuclideanDistance(query, p.Template)
		if d >= tolerance {
			continue
		}

		confidence := math.Max(0, 1-d/tolerance)
		if Similarity(query, p.Template, MetricCosine) > cosineBoostThreshold {
			confidence *= cosineBoost
		}
		confidence = math.Min(1, confidence)

		if confidence > bestConfidence {
			best = p
			bestConfidence = confidence
		}
	}

	if best == nil {
		return Result{}
	}
	return Result{Person: best, Confidence: bestConfidence * best.QualityScore}
}

// MatchMany scores each query independently. No cross-query interaction and
// no deduplication: two queries may both match the same person.
func (e *Engine) MatchMany(queries [][]float32) []Result {
	results := make([]Result, len(queries))
	for i, q := range queries {
		results[i] = e.MatchOne(q)
	}
	return results
}

// AdaptiveThreshold scales the current tolerance by the estimated image
// quality: sharp, high-variance frames get a threshold close to the
// configured tolerance, flat frames a tighter one. Advisory only - the caller
// may feed the result into SetTolerance, the engine never applies it itself.
func (e *Engine) AdaptiveThreshold(imageVariance float64) float64 {
	quality := math.Min(1, imageVariance/1000.0)
	return e.Tolerance() * (0.8 + 0.4*quality)
}

// RequeryRelaxed is the second-chance pass for borderline rejections: it
// temporarily widens the tolerance by 1.5x, matches, and restores the
// original tolerance unconditionally, panic included. The save/restore runs
// under the engine mutex so concurrent tolerance mutators never observe a
// half-restored value. The relaxed match is returned only when its confidence
// reaches minConfidence; otherwise the result is a no-match.
func (e *Engine) RequeryRelaxed(query []float32, minConfidence float64) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	original := e.tolerance
	e.tolerance = clampTolerance(original * relaxFactor)
	defer func() {
		e.tolerance = original
	}()

	res := e.matchWithTolerance(query, e.tolerance)
	if res.Person != nil && res.Confidence >= minConfidence {
		return res
	}
	return Result{}
}

// Refresh reloads the store snapshot from disk.
func (e *Engine) Refresh() {
	e.store.Load()
	e.log.Named("database").Info("face database refreshed")
}

// Statistics aggregates over the current database snapshot and engine
// configuration. The average quality of an empty database is 0.
func (e *Engine) Statistics() Statistics {
	persons := e.store.ListPersons()

	avg := 0.0
	if len(persons) > 0 {
		for i := range persons {
			avg += persons[i].QualityScore
		}
		avg /= float64(len(persons))
	}

	return Statistics{
		TotalPersons:      len(persons),
		AvgQualityScore:   avg,
		DatabaseIntegrity: e.store.ValidateIntegrity(),
		CurrentTolerance:  e.Tolerance(),
	}
}
