package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is a brute-force, cosine-similarity in-memory Index, used
// in tests and local/dev runs where standing up Qdrant isn't warranted.
// Score semantics match QdrantIndex exactly (§4.3): cosine in [-1, 1],
// descending.
type MemoryIndex struct {
	mu     sync.RWMutex
	points map[string][]float32
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{points: make(map[string][]float32)}
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, topK int) (QueryResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.points))
	for id, v := range m.points {
		matches = append(matches, Match{ID: id, Score: cosine(vector, v)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return QueryResult{Count: len(m.points), Matches: matches}, nil
}

func (m *MemoryIndex) Insert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p.Values
	}
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
