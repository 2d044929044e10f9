package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWMaxNeighbors is the M parameter of the HNSW graph.
const HNSWMaxNeighbors = 16

// Neighbor is one nearest-neighbor result from the template index.
type Neighbor struct {
	ID       string
	Name     string
	Distance float64 // cosine distance, lower is more similar
}

// TemplateIndex wraps an HNSW graph over the stored templates, keyed by
// person ID. It is rebuilt from the database on every load and save; the
// collection is small enough that rebuilds are cheap.
type TemplateIndex struct {
	graph   *hnsw.Graph[string]
	idToRec map[string]*PersonRecord
	mu      sync.RWMutex
	path    string // optional save/load path
}

// NewTemplateIndex creates a new empty template index.
func NewTemplateIndex() *TemplateIndex {
	return &TemplateIndex{
		idToRec: make(map[string]*PersonRecord),
	}
}

// BuildFromPersons rebuilds the index from the person records.
func (t *TemplateIndex) BuildFromPersons(persons []PersonRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(persons) == 0 {
		t.graph = nil
		t.idToRec = make(map[string]*PersonRecord)
		return nil
	}

	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	t.idToRec = make(map[string]*PersonRecord, len(persons))
	for i := range persons {
		rec := &persons[i]
		if len(rec.Template) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(rec.ID, rec.Template))
		t.idToRec[rec.ID] = rec
	}

	t.graph = g
	return nil
}

// Search finds the k nearest stored templates to the query embedding.
func (t *TemplateIndex) Search(query []float32, k int) ([]Neighbor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.graph == nil {
		return nil, nil
	}

	neighbors := t.graph.Search(query, k)
	out := make([]Neighbor, 0, len(neighbors))
	for _, n := range neighbors {
		rec, ok := t.idToRec[n.Key]
		if !ok || len(rec.Template) == 0 {
			continue
		}
		out = append(out, Neighbor{
			ID:       n.Key,
			Name:     rec.Name,
			Distance: CosineDistance(query, rec.Template),
		})
	}
	return out, nil
}

// Count returns the number of indexed templates.
func (t *TemplateIndex) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.idToRec)
}

// SetPath sets the path for saving the index.
func (t *TemplateIndex) SetPath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.path = path
}

// Save persists the index to disk. With no path set this is a no-op; an empty
// index removes any stale file.
func (t *TemplateIndex) Save() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.path == "" {
		return nil
	}
	if t.graph == nil {
		os.Remove(t.path)
		return nil
	}

	f, err := os.Create(t.path)
	if err != nil {
		return fmt.Errorf("failed to create template index file: %w", err)
	}
	defer f.Close()

	return t.graph.Export(f)
}
