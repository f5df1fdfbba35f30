// Package cachedecision implements CacheDecision (§4.1): the
// deterministic miss/hit decision tree that sits between the request
// and the upstream call. Unlike the teacher's race-based semantic
// dispatch, every step here runs in order — there is no call racing
// the provider.
package cachedecision

import (
	"context"

	"github.com/quietloop/semcache/internal/cacheerr"
	"github.com/quietloop/semcache/internal/contentstore"
	"github.com/quietloop/semcache/internal/embedding"
	"github.com/quietloop/semcache/internal/vectorindex"
)

// Disposition is the outcome of a cache decision.
type Disposition int

const (
	// Miss means the request must go upstream. OrphanID is set when the
	// miss was caused by a vector match whose content record is gone —
	// the background writer should repair it by rebinding that id
	// instead of inserting a new vector (§4.1).
	Miss Disposition = iota
	// Hit means Content is the cached completion to serve.
	Hit
)

// Decision is the result of Handle.
type Decision struct {
	Disposition Disposition
	Content     string
	Vector      []float32 // the request's own embedding, for a background Insert on miss
	OrphanID    string
}

// Decider runs CacheDecision against the configured collaborators.
type Decider struct {
	Embedder  embedding.Embedder
	Index     vectorindex.Index
	Store     contentstore.Store
	Threshold float32
}

// New creates a Decider.
func New(embedder embedding.Embedder, index vectorindex.Index, store contentstore.Store, threshold float32) *Decider {
	return &Decider{Embedder: embedder, Index: index, Store: store, Threshold: threshold}
}

// Handle runs the decision tree for a single request. flattened is the
// already-flattened prompt (§3 Flatten); noCache is the request's
// bypass flag (§4.1 invariant 5).
func (d *Decider) Handle(ctx context.Context, flattened string, noCache bool) (Decision, error) {
	vector, err := d.Embedder.Embed(ctx, flattened)
	if err != nil {
		// EMBED_UNAVAILABLE is not degraded to a miss: without a vector
		// there is nothing to query or to insert, so the failure
		// propagates to the caller as-is (§7).
		return Decision{}, err
	}

	if noCache {
		return Decision{Disposition: Miss, Vector: vector}, nil
	}

	result, err := d.Index.Query(ctx, vector, 1)
	if err != nil {
		// INDEX_UNAVAILABLE fails the request as a 502; bypassing to
		// upstream on an unavailable index is a deployment policy choice,
		// not something the core does on its own (§7).
		return Decision{}, err
	}

	if result.Count == 0 {
		return Decision{Disposition: Miss, Vector: vector}, nil
	}

	top := result.Matches[0]
	if top.Score < d.Threshold {
		return Decision{Disposition: Miss, Vector: vector}, nil
	}

	text, ok, err := d.Store.Get(ctx, top.ID)
	if err != nil {
		if cacheerr.Is(err, cacheerr.StoreUnavailable) {
			return Decision{Disposition: Miss, Vector: vector}, nil
		}
		return Decision{}, err
	}
	if !ok {
		// Orphan vector: the index has a match with no backing content.
		// Degrade to a miss and carry the id forward so the background
		// writer can repair it instead of inserting a duplicate (§4.1).
		return Decision{Disposition: Miss, Vector: vector, OrphanID: top.ID}, nil
	}

	return Decision{Disposition: Hit, Content: text}, nil
}
