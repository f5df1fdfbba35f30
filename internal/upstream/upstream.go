// Package upstream implements the UpstreamClient collaborator (§4.5,
// §6): issuing streaming and non-streaming chat completions to the
// provider. CompleteStream hands back the raw SSE byte stream — it does
// not parse or relay it itself, so StreamTee owns consumption.
package upstream

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
	"github.com/quietloop/semcache/internal/model"
)

// Client is the UpstreamClient collaborator.
type Client interface {
	// Complete issues a non-streaming chat completion and returns both
	// the parsed response and the raw body, so the Responder can emit
	// the upstream body verbatim on MISS (§4.8) while the cache layer
	// still gets typed access to the content.
	Complete(ctx context.Context, req *model.ChatRequest) (resp *model.ChatResponse, rawBody []byte, err error)
	// CompleteStream opens a streaming completion and returns the raw
	// SSE-framed body for the caller to tee and consume to completion
	// or cancel.
	CompleteStream(ctx context.Context, req *model.ChatRequest) (io.ReadCloser, error)
}

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// HTTPClient speaks the OpenAI-compatible chat-completions API over
// HTTP. Credentials are attached server-side; end-client Authorization
// headers are never propagated (§6).
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates an upstream client.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 1000,
		IdleConnTimeout:     90 * time.Second,
		WriteBufferSize:     32 << 10,
		ReadBufferSize:      32 << 10,
		ForceAttemptHTTP2:   true,
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Transport: transport},
	}
}

func (c *HTTPClient) encode(req *model.ChatRequest) (*bytes.Buffer, error) {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	if err := json.NewEncoder(buf).Encode(req); err != nil {
		bufPool.Put(buf)
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return buf, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, buf *bytes.Buffer) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// Complete issues a non-streaming chat completion.
func (c *HTTPClient) Complete(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, []byte, error) {
	outgoing := *req
	outgoing.Stream = false
	// noCache is a cache-side option, not part of the upstream protocol
	// (§6: "unmodified request (after stripping noCache)").
	outgoing.NoCache = false

	buf, err := c.encode(&outgoing)
	if err != nil {
		return nil, nil, cacheerr.Upstream(0, nil, err)
	}
	defer bufPool.Put(buf)

	httpReq, err := c.newRequest(ctx, buf)
	if err != nil {
		return nil, nil, cacheerr.Upstream(0, nil, err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, nil, cacheerr.Upstream(0, nil, fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, cacheerr.Upstream(resp.StatusCode, nil, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, body, cacheerr.Upstream(resp.StatusCode, body, fmt.Errorf("upstream error (status %d)", resp.StatusCode))
	}

	var chatResp model.ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, body, cacheerr.Upstream(resp.StatusCode, body, fmt.Errorf("decoding response: %w", err))
	}

	return &chatResp, body, nil
}

// CompleteStream opens a streaming chat completion and returns the raw
// upstream body. The caller is responsible for draining and closing it.
func (c *HTTPClient) CompleteStream(ctx context.Context, req *model.ChatRequest) (io.ReadCloser, error) {
	outgoing := *req
	outgoing.Stream = true
	outgoing.NoCache = false

	buf, err := c.encode(&outgoing)
	if err != nil {
		return nil, cacheerr.Upstream(0, nil, err)
	}
	defer bufPool.Put(buf)

	httpReq, err := c.newRequest(ctx, buf)
	if err != nil {
		return nil, cacheerr.Upstream(0, nil, err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, cacheerr.Upstream(0, nil, fmt.Errorf("sending request: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, cacheerr.Upstream(resp.StatusCode, body, fmt.Errorf("upstream error (status %d)", resp.StatusCode))
	}

	return resp.Body, nil
}
