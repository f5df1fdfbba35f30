// Package backgroundwriter implements BackgroundWriter (§4.9): after a
// streaming MISS hands off to the client, it waits for StreamTee's
// Capture side to finish, parses it, and — if admissible — commits
// content before vector. It never blocks the Responder's own flow; the
// server tracks it in a WaitGroup so shutdown can await it (§5).
package backgroundwriter

import (
	"context"

	"github.com/quietloop/semcache/internal/chunkparser"
	"github.com/quietloop/semcache/internal/contentstore"
	"github.com/quietloop/semcache/internal/idgen"
	"github.com/quietloop/semcache/internal/metrics"
	"github.com/quietloop/semcache/internal/streamtee"
	"github.com/quietloop/semcache/internal/vectorindex"
)

// Writer commits completed captures into the cache.
type Writer struct {
	Store   contentstore.Store
	Index   vectorindex.Index
	Metrics *metrics.Metrics
}

// New creates a Writer. m may be nil, in which case no counters are recorded.
func New(store contentstore.Store, index vectorindex.Index, m *metrics.Metrics) *Writer {
	return &Writer{Store: store, Index: index, Metrics: m}
}

// CommitStream waits for tee's Capture to finish and admits it into the
// cache. vector is the request's own embedding, computed earlier by
// CacheDecision; orphanID, if non-empty, means this capture is repairing
// an existing orphan vector match rather than minting a new entry (§4.1).
func (w *Writer) CommitStream(ctx context.Context, tee *streamtee.Tee, vector []float32, orphanID string) {
	tee.Wait()

	if tee.CaptureOverflowed() {
		if w.Metrics != nil {
			w.Metrics.CaptureOverflows.Inc()
		}
		w.discard()
		return
	}

	text, logicalEnd, err := chunkparser.Parse(tee.CaptureBytes())
	if err != nil {
		if w.Metrics != nil {
			w.Metrics.ParseFailures.Inc()
		}
		w.discard()
		return
	}

	// A clean transport EOF always admits. Absent that, a finish_reason
	// "stop" (or a [DONE] sentinel) reached before the connection dropped
	// still marks the completion's logical end (§4.7) — the capture is
	// admissible even though the stream itself never closed cleanly.
	if !tee.CaptureDone() && !logicalEnd {
		w.discard()
		return
	}

	w.Commit(ctx, vector, text, orphanID)
}

// Commit applies the admission policy (§4.9) to an already-extracted
// text and, if admissible, persists content before vector. An empty text
// is discarded with no error.
func (w *Writer) Commit(ctx context.Context, vector []float32, text string, orphanID string) {
	if text == "" {
		w.discard()
		return
	}

	id := orphanID
	if id == "" {
		id = idgen.New()
	}

	if err := w.Store.Put(ctx, id, text); err != nil {
		w.discard()
		return
	}

	if orphanID != "" {
		// Repairing an existing orphan: the vector is already indexed,
		// only the content record was missing.
		w.admit()
		return
	}

	if err := w.Index.Insert(ctx, []vectorindex.Point{{ID: id, Values: vector}}); err != nil {
		w.discard()
		return
	}

	w.admit()
}

func (w *Writer) admit() {
	if w.Metrics != nil {
		w.Metrics.BackgroundCommitted.Inc()
	}
}

func (w *Writer) discard() {
	if w.Metrics != nil {
		w.Metrics.BackgroundDiscarded.Inc()
	}
}
