package cachedecision

import (
	"context"
	"testing"

	"github.com/quietloop/semcache/internal/cacheerr"
	"github.com/quietloop/semcache/internal/contentstore"
	"github.com/quietloop/semcache/internal/vectorindex"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

type fakeIndex struct {
	result vectorindex.QueryResult
	err    error
}

func (f fakeIndex) Query(ctx context.Context, vector []float32, topK int) (vectorindex.QueryResult, error) {
	return f.result, f.err
}

func (f fakeIndex) Insert(ctx context.Context, points []vectorindex.Point) error { return nil }

func TestHandle_EmbedUnavailablePropagates(t *testing.T) {
	d := New(fakeEmbedder{err: cacheerr.New(cacheerr.EmbedUnavailable, nil)}, fakeIndex{}, contentstore.NewMemoryStore(), 0.8)
	_, err := d.Handle(context.Background(), "hello", false)
	if !cacheerr.Is(err, cacheerr.EmbedUnavailable) {
		t.Fatalf("expected EMBED_UNAVAILABLE, got %v", err)
	}
}

func TestHandle_NoCacheBypassesQuery(t *testing.T) {
	// The store holds content for "x", so consulting the query would yield a Hit.
	store := contentstore.NewMemoryStore()
	store.Put(context.Background(), "x", "cached answer")
	idx := fakeIndex{result: vectorindex.QueryResult{Count: 1, Matches: []vectorindex.Match{{ID: "x", Score: 1.0}}}}
	d := New(fakeEmbedder{vec: []float32{1, 0}}, idx, store, 0.8)

	dec, err := d.Handle(context.Background(), "hello", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Disposition != Miss {
		t.Fatalf("expected Miss on bypass, got %v", dec.Disposition)
	}
}

func TestHandle_EmptyIndexIsMiss(t *testing.T) {
	d := New(fakeEmbedder{vec: []float32{1, 0}}, fakeIndex{result: vectorindex.QueryResult{Count: 0}}, contentstore.NewMemoryStore(), 0.8)
	dec, err := d.Handle(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Disposition != Miss {
		t.Fatalf("expected Miss on empty index, got %v", dec.Disposition)
	}
}

func TestHandle_BelowThresholdIsMiss(t *testing.T) {
	idx := fakeIndex{result: vectorindex.QueryResult{Count: 1, Matches: []vectorindex.Match{{ID: "x", Score: 0.79}}}}
	d := New(fakeEmbedder{vec: []float32{1, 0}}, idx, contentstore.NewMemoryStore(), 0.8)
	dec, err := d.Handle(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Disposition != Miss {
		t.Fatalf("expected Miss below threshold, got %v", dec.Disposition)
	}
}

func TestHandle_ThresholdEqualIsHit(t *testing.T) {
	store := contentstore.NewMemoryStore()
	store.Put(context.Background(), "x", "cached answer")
	idx := fakeIndex{result: vectorindex.QueryResult{Count: 1, Matches: []vectorindex.Match{{ID: "x", Score: 0.8}}}}
	d := New(fakeEmbedder{vec: []float32{1, 0}}, idx, store, 0.8)

	dec, err := d.Handle(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Disposition != Hit || dec.Content != "cached answer" {
		t.Fatalf("expected Hit with cached content, got %+v", dec)
	}
}

func TestHandle_OrphanVectorDegradesToMissWithID(t *testing.T) {
	idx := fakeIndex{result: vectorindex.QueryResult{Count: 1, Matches: []vectorindex.Match{{ID: "orphan-1", Score: 0.95}}}}
	d := New(fakeEmbedder{vec: []float32{1, 0}}, idx, contentstore.NewMemoryStore(), 0.8)

	dec, err := d.Handle(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Disposition != Miss || dec.OrphanID != "orphan-1" {
		t.Fatalf("expected orphan miss carrying id, got %+v", dec)
	}
}

func TestHandle_IndexUnavailableFailsRequest(t *testing.T) {
	d := New(fakeEmbedder{vec: []float32{1, 0}}, fakeIndex{err: cacheerr.New(cacheerr.IndexUnavailable, nil)}, contentstore.NewMemoryStore(), 0.8)
	_, err := d.Handle(context.Background(), "hello", false)
	if !cacheerr.Is(err, cacheerr.IndexUnavailable) {
		t.Fatalf("expected INDEX_UNAVAILABLE error, got %v", err)
	}
}
