package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quietloop/semcache/internal/cacheerr"
)

func TestClient_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Input == "" {
			t.Error("expected non-empty input")
		}
		json.NewEncoder(w).Encode(embeddingResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
			}{{Embedding: []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "text-embedding-3-small")
	vec, err := c.Embed(context.Background(), "user: hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("vec = %v, want len 3", vec)
	}
}

func TestClient_Embed_TransportErrorIsEmbedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "text-embedding-3-small")
	_, err := c.Embed(context.Background(), "hi")
	if !cacheerr.Is(err, cacheerr.EmbedUnavailable) {
		t.Fatalf("expected EMBED_UNAVAILABLE, got %v", err)
	}
}
