// Package embedding implements the Embedder collaborator (§4.2, §6): it
// turns a flattened prompt into a fixed-width real vector.
package embedding

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

// Embedder turns text into an embedding vector. Implementations fail
// with a cacheerr.EmbedUnavailable error on transport failures — the
// core propagates that as a 502-class error rather than serve stale
// cache (§4.2).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client calls an OpenAI-compatible embeddings endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewClient creates an embedding client.
func NewClient(baseURL, apiKey, model string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Transport: transport},
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body := embeddingRequest{Input: text, Model: c.model}

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, cacheerr.New(cacheerr.EmbedUnavailable, fmt.Errorf("marshaling embedding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, cacheerr.New(cacheerr.EmbedUnavailable, fmt.Errorf("creating embedding request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, cacheerr.New(cacheerr.EmbedUnavailable, fmt.Errorf("sending embedding request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, cacheerr.New(cacheerr.EmbedUnavailable, fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, respBody))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, cacheerr.New(cacheerr.EmbedUnavailable, fmt.Errorf("decoding embedding response: %w", err))
	}

	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, cacheerr.New(cacheerr.EmbedUnavailable, fmt.Errorf("empty embedding response"))
	}

	return result.Data[0].Embedding, nil
}
