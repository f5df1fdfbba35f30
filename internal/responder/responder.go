// Package responder implements the Responder (§4.8): it shapes the
// client-facing reply for every miss/hit x streaming/non-streaming
// combination, and owns the one place wire fidelity is guaranteed by
// construction — copying live bytes instead of re-encoding them.
package responder

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/quietloop/semcache/internal/model"
	"github.com/quietloop/semcache/internal/sse"
)

// tokenPattern splits cached content into the chunks a streaming-HIT
// synthesizes, per §4.8: contiguous non-whitespace plus trailing
// whitespace.
var tokenPattern = regexp.MustCompile(`\S+\s*`)

// modelEncoding maps model name prefixes to a tiktoken encoding, mirroring
// the teacher's own internal/tokenizer.Counter table.
var modelEncoding = map[string]string{
	"gpt-4o":  "o200k_base",
	"gpt-4.1": "o200k_base",
	"o1":      "o200k_base",
	"o3":      "o200k_base",
}

func encodingNameForModel(modelName string) string {
	for prefix, enc := range modelEncoding {
		if strings.HasPrefix(modelName, prefix) {
			return enc
		}
	}
	return ""
}

// streamChunk mirrors model.ChatStreamChunk but carries created as the
// ISO-8601 string §4.8 requires for synthesized chunks, rather than the
// epoch int the raw upstream wire uses.
type streamChunk struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created string               `json:"created"`
	Model   string               `json:"model"`
	Choices []model.StreamChoice `json:"choices"`
	Usage   *model.Usage         `json:"usage,omitempty"`
}

// Responder emits responses to the client.
type Responder struct {
	// encoding tokenizes cached content for the Usage estimate attached
	// to a synthesized streaming-HIT's final chunk. nil switches the
	// estimate to a length-based heuristic rather than failing the response.
	encoding *tiktoken.Tiktoken
}

// New creates a Responder. modelName selects the tiktoken encoding used
// for streaming-HIT usage estimation; an unrecognized name falls back to
// a length-based estimate rather than erroring.
func New(modelName string) *Responder {
	encName := encodingNameForModel(modelName)
	if encName == "" {
		return &Responder{}
	}
	enc, err := tiktoken.GetEncoding(encName)
	if err != nil {
		return &Responder{}
	}
	return &Responder{encoding: enc}
}

// NonStreamingHit emits a cached completion as a single JSON document (§4.8).
func (r *Responder) NonStreamingHit(w http.ResponseWriter, content string) error {
	w.Header().Set("Content-Type", "application/json")
	resp := model.ChatResponse{
		Object: "chat.completion",
		Choices: []model.Choice{
			{Index: 0, Message: model.Message{Role: "assistant", Content: content}, FinishReason: "stop"},
		},
	}
	return json.NewEncoder(w).Encode(resp)
}

// NonStreamingMiss emits the upstream body verbatim — no re-encoding, so
// already-escaped bytes are never double-escaped (§4.8 JSON-escape
// discipline).
func (r *Responder) NonStreamingMiss(w http.ResponseWriter, status int, rawBody []byte) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(rawBody)
	return err
}

// RelayStream copies live bytes from a StreamTee's Live reader straight
// to the client with periodic flushes. This is the only miss-path
// streaming relay; it never parses or re-emits, guaranteeing byte-level
// wire fidelity (§8 invariant 1) by construction.
func (r *Responder) RelayStream(w http.ResponseWriter, live io.Reader) error {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Transfer-Encoding", "chunked")

	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, err := live.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if ferr := rc.Flush(); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// StreamingHit synthesizes an SSE sequence from cached content, per
// §4.8's token-chunk replay shape. id is freshly minted per response;
// modelName is echoed from the request (or a deployment default).
func (r *Responder) StreamingHit(ctx context.Context, w http.ResponseWriter, id, modelName, createdISO8601, content string) error {
	sw := sse.NewWriter(w)

	tokens := tokenPattern.FindAllString(content, -1)
	if len(tokens) == 0 && content != "" {
		tokens = []string{content}
	}

	for _, tok := range tokens {
		chunk := streamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: createdISO8601,
			Model:   modelName,
			Choices: []model.StreamChoice{
				{Index: 0, Delta: model.Delta{Content: tok}, FinishReason: nil},
			},
		}
		if err := sse.WriteJSON(sw, chunk); err != nil {
			return err
		}
	}

	finish := streamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: createdISO8601,
		Model:   modelName,
		Choices: []model.StreamChoice{
			{Index: 0, Delta: model.Delta{}, FinishReason: "stop"},
		},
		Usage: r.usage(content),
	}
	if err := sse.WriteJSON(sw, finish); err != nil {
		return err
	}

	return sw.Done()
}

// usage estimates completion token count for a synthesized streaming-HIT
// reply, falling back to a length heuristic when no tiktoken encoding is
// available for the configured model — §9's documented approximation,
// not an attempt to match the upstream's own accounting exactly.
func (r *Responder) usage(content string) *model.Usage {
	var n int
	if r.encoding != nil {
		n = len(r.encoding.Encode(content, nil, nil))
	} else {
		n = len(content) / 4
	}
	return &model.Usage{CompletionTokens: n, TotalTokens: n}
}
