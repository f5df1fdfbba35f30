package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quietloop/semcache/internal/backgroundwriter"
	"github.com/quietloop/semcache/internal/cachedecision"
	"github.com/quietloop/semcache/internal/cacheerr"
	"github.com/quietloop/semcache/internal/idgen"
	"github.com/quietloop/semcache/internal/metrics"
	"github.com/quietloop/semcache/internal/model"
	"github.com/quietloop/semcache/internal/responder"
	"github.com/quietloop/semcache/internal/streamtee"
	"github.com/quietloop/semcache/internal/upstream"
)

// Handler serves POST /chat/completions (§6).
type Handler struct {
	decider      *cachedecision.Decider
	upstream     upstream.Client
	writer       *backgroundwriter.Writer
	responder    *responder.Responder
	metrics      *metrics.Metrics
	logger       *slog.Logger
	captureMax   int
	bgDeadline   time.Duration
	defaultModel string

	// background tracks every in-flight BackgroundWriter commit so
	// Server.Shutdown can await them (§5).
	background *sync.WaitGroup
}

// NewHandler creates a request handler.
func NewHandler(
	decider *cachedecision.Decider,
	upstreamClient upstream.Client,
	writer *backgroundwriter.Writer,
	resp *responder.Responder,
	m *metrics.Metrics,
	logger *slog.Logger,
	captureMax int,
	bgDeadline time.Duration,
	defaultModel string,
	background *sync.WaitGroup,
) *Handler {
	return &Handler{
		decider:      decider,
		upstream:     upstreamClient,
		writer:       writer,
		responder:    resp,
		metrics:      m,
		logger:       logger,
		captureMax:   captureMax,
		bgDeadline:   bgDeadline,
		defaultModel: defaultModel,
		background:   background,
	}
}

// RegisterRoutes registers all HTTP routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat/completions", h.handleChatCompletions)
	mux.HandleFunc("GET /health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "failed to parse request body: "+err.Error())
		return
	}
	if req.Model == "" {
		req.Model = h.defaultModel
	}

	requestID := GetRequestID(r.Context())
	flattened := model.Flatten(req.Messages)

	decision, err := h.decider.Handle(r.Context(), flattened, req.NoCache)
	if err != nil {
		h.logger.Error("cache decision failed", "error", err, "request_id", requestID)
		if h.metrics != nil {
			switch {
			case cacheerr.Is(err, cacheerr.EmbedUnavailable):
				h.metrics.EmbedErrors.Inc()
			case cacheerr.Is(err, cacheerr.IndexUnavailable):
				h.metrics.IndexErrors.Inc()
			}
		}
		writeCacheError(w, err)
		return
	}

	if decision.Disposition == cachedecision.Hit {
		w.Header().Set("X-Cache", "HIT")
		if h.metrics != nil {
			h.metrics.CacheHits.Inc()
		}
		h.serveHit(w, r, req, decision.Content, requestID)
		return
	}

	w.Header().Set("X-Cache", "MISS")
	if h.metrics != nil {
		h.metrics.CacheMisses.Inc()
		if decision.OrphanID != "" {
			h.metrics.CacheDegrades.Inc()
		}
	}
	h.serveMiss(w, r, req, decision.Vector, decision.OrphanID, requestID)
}

func (h *Handler) serveHit(w http.ResponseWriter, r *http.Request, req model.ChatRequest, content, requestID string) {
	if !req.Stream {
		if err := h.responder.NonStreamingHit(w, content); err != nil {
			h.logger.Error("failed writing non-streaming hit", "error", err, "request_id", requestID)
		}
		return
	}

	created := time.Now().UTC().Format(time.RFC3339)
	if err := h.responder.StreamingHit(r.Context(), w, idgen.New(), req.Model, created, content); err != nil {
		h.logger.Error("failed writing streaming hit", "error", err, "request_id", requestID)
	}
}

func (h *Handler) serveMiss(w http.ResponseWriter, r *http.Request, req model.ChatRequest, vector []float32, orphanID, requestID string) {
	if !req.Stream {
		resp, raw, err := h.upstream.Complete(r.Context(), &req)
		if err != nil {
			h.logger.Error("upstream completion failed", "error", err, "request_id", requestID)
			if h.metrics != nil {
				h.metrics.UpstreamErrors.Inc()
			}
			writeCacheError(w, err)
			return
		}
		if err := h.responder.NonStreamingMiss(w, http.StatusOK, raw); err != nil {
			h.logger.Error("failed writing non-streaming miss", "error", err, "request_id", requestID)
			return
		}
		if len(resp.Choices) > 0 {
			h.commitBackground(vector, resp.Choices[0].Message.Content, orphanID)
		}
		return
	}

	// The upstream call is bound to a deadline independent of the
	// client's own request context: if the client disconnects, Live is
	// cancelled immediately but Capture must keep draining the upstream
	// stream until it ends or the deadline fires (§5).
	bgCtx, cancel := context.WithTimeout(context.Background(), h.bgDeadline)
	body, err := h.upstream.CompleteStream(bgCtx, &req)
	if err != nil {
		cancel()
		h.logger.Error("upstream stream open failed", "error", err, "request_id", requestID)
		if h.metrics != nil {
			h.metrics.UpstreamErrors.Inc()
		}
		writeCacheError(w, err)
		return
	}

	tee := streamtee.New(body, h.captureMax)

	h.background.Add(1)
	go func() {
		defer h.background.Done()
		defer cancel()
		defer body.Close()
		h.writer.CommitStream(bgCtx, tee, vector, orphanID)
	}()

	live := tee.Live()
	defer live.Close()
	if err := h.responder.RelayStream(w, live); err != nil {
		h.logger.Warn("live relay ended early", "error", err, "request_id", requestID)
	}
}

// commitBackground runs the non-streaming miss's cache write on a
// tracked background goroutine, mirroring the streaming path's
// fire-and-forget shape (§4.9) even though there is no Capture to wait on.
func (h *Handler) commitBackground(vector []float32, content, orphanID string) {
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.bgDeadline)
		defer cancel()
		h.writer.Commit(ctx, vector, content, orphanID)
	}()
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message, "type": errType},
	})
}

func writeCacheError(w http.ResponseWriter, err error) {
	var cerr *cacheerr.Error
	status := http.StatusBadGateway
	body := []byte(`{"error":{"message":"upstream error","type":"upstream_error"}}`)
	if errors.As(err, &cerr) {
		// Only UPSTREAM_4XX forwards the upstream's own status and body
		// verbatim. UPSTREAM_5XX and transport errors both surface as a
		// flat 502 (§7) — the upstream's 5xx status/body is never
		// forwarded.
		if cerr.Kind == cacheerr.Upstream4xx {
			if cerr.Status != 0 {
				status = cerr.Status
			}
			if len(cerr.Body) > 0 {
				body = cerr.Body
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
