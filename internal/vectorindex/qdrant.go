package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/quietloop/semcache/internal/cacheerr"
)

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// QdrantIndex is a REST client for Qdrant, the VectorIndex collaborator's
// reference implementation.
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// NewQdrantIndex creates a Qdrant-backed Index.
func NewQdrantIndex(baseURL, apiKey, collection string) *QdrantIndex {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &QdrantIndex{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Transport: transport},
	}
}

// EnsureCollection creates the collection if it doesn't already exist.
// Deployment wiring, not a §6 operation — called once at startup.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, vectorSize int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return fmt.Errorf("marshaling collection config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		q.baseURL+"/collections/"+q.collection, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("creating collection request: %w", err)
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// 200 = created, 409 = already exists — both are fine.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("unexpected status creating collection: %d", resp.StatusCode)
	}
	return nil
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type searchResponse struct {
	Result []struct {
		ID    string  `json:"id"`
		Score float32 `json:"score"`
	} `json:"result"`
}

// Query searches the collection for the topK nearest vectors.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int) (QueryResult, error) {
	body := searchRequest{Vector: vector, Limit: topK, WithPayload: false}

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return QueryResult{}, cacheerr.New(cacheerr.IndexUnavailable, fmt.Errorf("marshaling search request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		q.baseURL+"/collections/"+q.collection+"/points/search", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return QueryResult{}, cacheerr.New(cacheerr.IndexUnavailable, fmt.Errorf("creating search request: %w", err))
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return QueryResult{}, cacheerr.New(cacheerr.IndexUnavailable, fmt.Errorf("searching qdrant: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return QueryResult{}, cacheerr.New(cacheerr.IndexUnavailable, fmt.Errorf("qdrant search error (status %d): %s", resp.StatusCode, respBody))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return QueryResult{}, cacheerr.New(cacheerr.IndexUnavailable, fmt.Errorf("decoding search response: %w", err))
	}

	matches := make([]Match, 0, len(sr.Result))
	for _, r := range sr.Result {
		matches = append(matches, Match{ID: r.ID, Score: r.Score})
	}
	return QueryResult{Count: len(matches), Matches: matches}, nil
}

type upsertRequest struct {
	Points []point `json:"points"`
}

type point struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// Insert upserts points into the collection; at-least-once, idempotent
// on id.
func (q *QdrantIndex) Insert(ctx context.Context, points []Point) error {
	ps := make([]point, len(points))
	for i, p := range points {
		ps[i] = point{ID: p.ID, Vector: p.Values}
	}
	body := upsertRequest{Points: ps}

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return cacheerr.New(cacheerr.IndexUnavailable, fmt.Errorf("marshaling upsert request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		q.baseURL+"/collections/"+q.collection+"/points", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return cacheerr.New(cacheerr.IndexUnavailable, fmt.Errorf("creating upsert request: %w", err))
	}
	q.setHeaders(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return cacheerr.New(cacheerr.IndexUnavailable, fmt.Errorf("upserting to qdrant: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return cacheerr.New(cacheerr.IndexUnavailable, fmt.Errorf("qdrant upsert error (status %d)", resp.StatusCode))
	}
	return nil
}

func (q *QdrantIndex) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
}
