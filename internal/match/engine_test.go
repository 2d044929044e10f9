package match

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomas/secureface/internal/store"
	"github.com/tomas/secureface/internal/vault"
)

func testKey() []byte {
	key := make([]byte, vault.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func testStore(t *testing.T, persons ...store.PersonRecord) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s := store.New(filepath.Join(dir, "db.enc"), filepath.Join(dir, "backups"), testKey(), nil)
	s.Load()
	for _, p := range persons {
		if err := s.AddPerson(p); err != nil {
			t.Fatalf("AddPerson(%s): %v", p.ID, err)
		}
	}
	return s
}

func person(id, name string, template []float32, quality float64) store.PersonRecord {
	return store.PersonRecord{
		ID:            id,
		Name:          name,
		Template:      template,
		QualityScore:  quality,
		CreatedAt:     time.Now().UTC(),
		IntegrityHash: vault.HashTemplate(template),
	}
}

func TestSetToleranceClamps(t *testing.T) {
	e := NewEngine(testStore(t), DefaultTolerance, nil)

	tests := []struct {
		set  float64
		want float64
	}{
		{0.45, 0.45},
		{0.05, 0.1},
		{-3, 0.1},
		{2.5, 1.0},
		{1.0, 1.0},
	}
	for _, tt := range tests {
		e.SetTolerance(tt.set)
		if got := e.Tolerance(); got != tt.want {
			t.Errorf("SetTolerance(%v): tolerance = %v, want %v", tt.set, got, tt.want)
		}
	}
}

func TestSimilarityMetrics(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	if got := Similarity(a, a, MetricEuclidean); got != 0 {
		t.Errorf("euclidean self-similarity = %v, want 0", got)
	}
	if got := Similarity(a, b, MetricEuclidean); math.Abs(got-math.Sqrt2) > 1e-9 {
		t.Errorf("euclidean = %v, want sqrt(2)", got)
	}
	if got := Similarity(a, a, MetricCosine); math.Abs(got-1) > 1e-9 {
		t.Errorf("cosine self-similarity = %v, want 1", got)
	}
	if got := Similarity(a, b, MetricCosine); math.Abs(got) > 1e-9 {
		t.Errorf("cosine orthogonal = %v, want 0", got)
	}
}

func TestSimilarityPanicsOnLengthMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on mismatched embedding lengths")
		}
	}()
	Similarity([]float32{1, 2}, []float32{1}, MetricEuclidean)
}

// The concrete two-person scenario: A at [0,0] quality 0.9, B at [10,10]
// quality 0.5, tolerance 0.5.
func twoPersonEngine(t *testing.T) *Engine {
	s := testStore(t,
		person("a", "A", []float32{0, 0}, 0.9),
		person("b", "B", []float32{10, 10}, 0.5),
	)
	return NewEngine(s, 0.5, nil)
}

func TestMatchOneScenario(t *testing.T) {
	e := twoPersonEngine(t)

	res := e.MatchOne([]float32{0.1, 0.1})
	if res.Person == nil || res.Person.ID != "a" {
		t.Fatalf("matched %+v, want person a", res.Person)
	}
	// d ~ sqrt(0.02) ~ 0.1414 over float32 inputs; cosine similarity against
	// the zero vector cannot fire the boost, so confidence = (1 - d/0.5) * 0.9.
	d := EuclideanDistance([]float32{0.1, 0.1}, []float32{0, 0})
	want := (1 - d/0.5) * 0.9
	if math.Abs(res.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", res.Confidence, want)
	}

	res = e.MatchOne([]float32{5, 5})
	if res.Person != nil || res.Confidence != 0 {
		t.Errorf("distant query matched %+v with confidence %v, want no match", res.Person, res.Confidence)
	}
}

func TestMatchOneConfidenceDecreasesWithDistance(t *testing.T) {
	e := twoPersonEngine(t)

	prev := math.Inf(1)
	for _, offset := range []float32{0.05, 0.1, 0.15, 0.2, 0.25} {
		res := e.MatchOne([]float32{offset, offset})
		if res.Person == nil {
			t.Fatalf("offset %v unexpectedly rejected", offset)
		}
		if res.Confidence >= prev {
			t.Errorf("confidence at offset %v is %v, not strictly below %v", offset, res.Confidence, prev)
		}
		prev = res.Confidence
	}
}

func TestMatchOneCosineBoost(t *testing.T) {
	// Templates away from the origin so cosine similarity is meaningful.
	s := testStore(t, person("a", "A", []float32{1, 1}, 1.0))
	e := NewEngine(s, 0.5, nil)

	// Query collinear with the template: cosine similarity 1 > 0.7, distance
	// sqrt(2)*0.2 ~ 0.283, base confidence 1 - 0.283/0.5 ~ 0.434 boosted 1.2x.
	query := []float32{1.2, 1.2}
	d := EuclideanDistance(query, []float32{1, 1})
	want := math.Min(1, (1-d/0.5)*1.2)

	res := e.MatchOne(query)
	if res.Person == nil {
		t.Fatal("expected a match")
	}
	if math.Abs(res.Confidence-want) > 1e-9 {
		t.Errorf("boosted confidence = %v, want %v", res.Confidence, want)
	}
}

func TestMatchOneCapsAtOne(t *testing.T) {
	s := testStore(t, person("a", "A", []float32{1, 1}, 1.0))
	e := NewEngine(s, 0.5, nil)

	// Identical query: distance 0, base confidence 1, boost would push it to
	// 1.2 - must be capped at 1 before quality weighting.
	res := e.MatchOne([]float32{1, 1})
	if res.Confidence != 1.0 {
		t.Errorf("confidence = %v, want exactly 1.0", res.Confidence)
	}
}

func TestMatchOneTieKeepsFirst(t *testing.T) {
	// Two equidistant templates: the first-encountered record wins.
	s := testStore(t,
		person("first", "F", []float32{0, 0.2}, 1.0),
		person("second", "S", []float32{0.2, 0}, 1.0),
	)
	e := NewEngine(s, 0.5, nil)

	res := e.MatchOne([]float32{0.1, 0.1})
	if res.Person == nil || res.Person.ID != "first" {
		t.Errorf("tie broke to %+v, want first-encountered record", res.Person)
	}
}

func TestMatchOneEmptyDatabase(t *testing.T) {
	e := NewEngine(testStore(t), 0.5, nil)
	res := e.MatchOne([]float32{1, 2})
	if res.Person != nil || res.Confidence != 0 {
		t.Errorf("empty database returned %+v / %v", res.Person, res.Confidence)
	}
}

func TestMatchMany(t *testing.T) {
	e := twoPersonEngine(t)

	results := e.MatchMany([][]float32{{0.1, 0.1}, {5, 5}, {0.05, 0.05}})
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Person == nil || results[0].Person.ID != "a" {
		t.Error("first query should match a")
	}
	if results[1].Person != nil {
		t.Error("second query should not match")
	}
	if results[2].Person == nil || results[2].Person.ID != "a" {
		t.Error("third query should match a independently")
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	e := NewEngine(testStore(t), 0.5, nil)

	tests := []struct {
		variance float64
		want     float64
	}{
		{0, 0.5 * 0.8},
		{500, 0.5 * (0.8 + 0.4*0.5)},
		{1000, 0.5 * 1.2},
		{5000, 0.5 * 1.2}, // quality factor saturates at 1
	}
	for _, tt := range tests {
		if got := e.AdaptiveThreshold(tt.variance); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("AdaptiveThreshold(%v) = %v, want %v", tt.variance, got, tt.want)
		}
	}

	if e.Tolerance() != 0.5 {
		t.Error("AdaptiveThreshold must never mutate the engine tolerance")
	}
}

func TestRequeryRelaxedAcceptsBorderline(t *testing.T) {
	// Distance ~0.566 rejects at tolerance 0.5 but passes at 0.75.
	s := testStore(t, person("a", "A", []float32{0, 0}, 1.0))
	e := NewEngine(s, 0.5, nil)

	query := []float32{0.4, 0.4}
	if res := e.MatchOne(query); res.Person != nil {
		t.Fatal("strict pass unexpectedly matched")
	}

	res := e.RequeryRelaxed(query, 0.1)
	if res.Person == nil || res.Person.ID != "a" {
		t.Fatalf("relaxed re-query missed: %+v", res.Person)
	}
	if e.Tolerance() != 0.5 {
		t.Errorf("tolerance = %v after re-query, want restored 0.5", e.Tolerance())
	}
}

func TestRequeryRelaxedRejectsLowConfidence(t *testing.T) {
	s := testStore(t, person("a", "A", []float32{0, 0}, 1.0))
	e := NewEngine(s, 0.5, nil)

	res := e.RequeryRelaxed([]float32{0.4, 0.4}, 0.99)
	if res.Person != nil || res.Confidence != 0 {
		t.Errorf("below min confidence must return no-match, got %+v / %v", res.Person, res.Confidence)
	}
	if e.Tolerance() != 0.5 {
		t.Errorf("tolerance = %v, want restored 0.5", e.Tolerance())
	}
}

func TestRequeryRelaxedRestoresOnPanic(t *testing.T) {
	s := testStore(t, person("a", "A", []float32{0, 0}, 1.0))
	e := NewEngine(s, 0.5, nil)

	func() {
		defer func() { recover() }()
		// Length mismatch panics inside the relaxed match.
		e.RequeryRelaxed([]float32{1, 2, 3}, 0.5)
	}()

	if e.Tolerance() != 0.5 {
		t.Errorf("tolerance = %v after panic, want restored 0.5", e.Tolerance())
	}
	// The engine must still be usable (the mutex was released).
	e.SetTolerance(0.6)
	if e.Tolerance() != 0.6 {
		t.Error("engine unusable after recovered panic")
	}
}

func TestStatistics(t *testing.T) {
	e := NewEngine(testStore(t), 0.5, nil)
	stats := e.Statistics()
	if stats.TotalPersons != 0 || stats.AvgQualityScore != 0 {
		t.Errorf("empty stats = %+v", stats)
	}
	if !stats.DatabaseIntegrity {
		t.Error("empty database must report integral")
	}

	e2 := twoPersonEngine(t)
	stats = e2.Statistics()
	if stats.TotalPersons != 2 {
		t.Errorf("total persons = %d, want 2", stats.TotalPersons)
	}
	if math.Abs(stats.AvgQualityScore-0.7) > 1e-9 {
		t.Errorf("avg quality = %v, want 0.7", stats.AvgQualityScore)
	}
	if stats.CurrentTolerance != 0.5 {
		t.Errorf("tolerance = %v, want 0.5", stats.CurrentTolerance)
	}
}
