package chunkparser

import (
	"strings"
	"testing"

	"github.com/quietloop/semcache/internal/cacheerr"
)

func sseEvent(jsonBody string) string {
	return "data: " + jsonBody + "\n\n"
}

func TestParse_ConcatenatesDeltasInOrder(t *testing.T) {
	raw := strings.Join([]string{
		sseEvent(`{"id":"1","choices":[{"index":0,"delta":{"role":"assistant"}}]}`),
		sseEvent(`{"id":"1","choices":[{"index":0,"delta":{"content":"Hello "}}]}`),
		sseEvent(`{"id":"1","choices":[{"index":0,"delta":{"content":"world"}}]}`),
		sseEvent("[DONE]"),
	}, "")

	got, logicalEnd, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello world" {
		t.Errorf("Parse = %q, want %q", got, "Hello world")
	}
	if !logicalEnd {
		t.Error("expected logicalEnd after [DONE]")
	}
}

func TestParse_HeartbeatChunkContributesEmptyString(t *testing.T) {
	raw := strings.Join([]string{
		sseEvent(`{"choices":[{"index":0,"delta":{}}]}`),
		sseEvent(`{"choices":[{"index":0,"delta":{"content":"ok"}}]}`),
		sseEvent("[DONE]"),
	}, "")

	got, _, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("Parse = %q, want %q", got, "ok")
	}
}

func TestParse_FinishReasonStopWithoutDone(t *testing.T) {
	raw := sseEvent(`{"choices":[{"index":0,"delta":{"content":"done here"},"finish_reason":"stop"}]}`)

	got, logicalEnd, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "done here" {
		t.Errorf("Parse = %q, want %q", got, "done here")
	}
	if !logicalEnd {
		t.Error("expected logicalEnd from finish_reason stop even without [DONE]")
	}
}

func TestParse_NoTerminalMarkerIsNotLogicalEnd(t *testing.T) {
	raw := sseEvent(`{"choices":[{"index":0,"delta":{"content":"partial"}}]}`)

	got, logicalEnd, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "partial" {
		t.Errorf("Parse = %q, want %q", got, "partial")
	}
	if logicalEnd {
		t.Error("expected no logicalEnd without [DONE] or finish_reason stop")
	}
}

func TestParse_MalformedJSONFails(t *testing.T) {
	raw := "data: {not json}\n\n"

	_, _, err := Parse([]byte(raw))
	if !cacheerr.Is(err, cacheerr.ParseFailed) {
		t.Fatalf("expected PARSE_FAILED, got %v", err)
	}
}

func TestParse_MultiLineDataJoinedWithNewline(t *testing.T) {
	// Not a realistic chunk shape, but exercises the join rule itself.
	raw := "data: {\"choices\":[{\"index\":0,\n" +
		"data: \"delta\":{\"content\":\"x\"}}]}\n\n"

	got, _, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "x" {
		t.Errorf("Parse = %q, want %q", got, "x")
	}
}

func TestParse_CommentLinesIgnored(t *testing.T) {
	raw := ": heartbeat\n" + sseEvent(`{"choices":[{"index":0,"delta":{"content":"hi"}}]}`)

	got, _, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hi" {
		t.Errorf("Parse = %q, want %q", got, "hi")
	}
}

func TestParse_CRLFBoundary(t *testing.T) {
	raw := "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}\r\n\r\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"b\"}}]}\r\n\r\n" +
		"data: [DONE]\r\n\r\n"

	got, logicalEnd, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ab" {
		t.Errorf("Parse = %q, want %q", got, "ab")
	}
	if !logicalEnd {
		t.Error("expected logicalEnd after [DONE]")
	}
}
