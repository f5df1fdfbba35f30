// Package chunkparser decodes the provider's SSE framing captured by
// StreamTee and extracts the ordered delta.content text (§4.7). It only
// ever runs against the Capture side — the Live side is relayed
// byte-for-byte and never touches this package.
package chunkparser

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/quietloop/semcache/internal/cacheerr"
	"github.com/quietloop/semcache/internal/model"
)

var doneMarker = []byte("[DONE]")

// event is one decoded SSE message: its (possibly multi-line) data field
// joined with "\n", per §4.7.
type event struct {
	data string
}

// Parse splits raw into SSE events, decodes each JSON delta, and returns
// the ordered concatenation of delta.content across all chunks up to
// (and excluding) the [DONE] sentinel. Malformed JSON in a data field
// aborts with a cacheerr.ParseFailed error — the entry must be discarded
// entirely, not partially admitted.
//
// logicalEnd reports whether the [DONE] sentinel or a chunk with
// finish_reason "stop" was seen. Per §4.7, a "stop" chunk marks the logical end of the completion even if [DONE]
// never arrives or the transport never reaches a clean EOF — the caller
// may treat such a capture as admissible despite an abrupt disconnect.
func Parse(raw []byte) (text string, logicalEnd bool, err error) {
	var sb strings.Builder
	for _, ev := range splitEvents(raw) {
		if ev.data == "" {
			continue
		}
		if ev.data == string(doneMarker) {
			logicalEnd = true
			break
		}

		var chunk model.ChatStreamChunk
		if err := json.Unmarshal([]byte(ev.data), &chunk); err != nil {
			return "", false, cacheerr.New(cacheerr.ParseFailed, err)
		}
		// A chunk with no content field (a heartbeat or role chunk)
		// contributes the empty string.
		for _, c := range chunk.Choices {
			sb.WriteString(c.Delta.Content)
			if c.FinishReason == "stop" {
				logicalEnd = true
			}
		}
	}
	return sb.String(), logicalEnd, nil
}

// splitEvents breaks raw SSE bytes into events on a blank line, handling
// the three newline conventions §4.7 names, skipping comment lines, and
// joining multi-line "data:" fields with "\n".
func splitEvents(raw []byte) []event {
	blocks := splitOnBlankLine(raw)

	events := make([]event, 0, len(blocks))
	for _, block := range blocks {
		var dataLines []string
		for _, line := range splitLines(block) {
			if len(line) == 0 {
				continue
			}
			if line[0] == ':' {
				continue // comment line
			}
			switch {
			case bytes.HasPrefix(line, []byte("data:")):
				dataLines = append(dataLines, string(trimLeadingSpace(line[len("data:"):])))
			case bytes.HasPrefix(line, []byte("event:")):
				// Event type is not consumed by this cache; only data matters.
			}
		}
		if len(dataLines) == 0 {
			continue
		}
		events = append(events, event{data: strings.Join(dataLines, "\n")})
	}
	return events
}

// splitOnBlankLine splits on "\n\n", "\r\r", or "\r\n\r\n" boundaries.
func splitOnBlankLine(raw []byte) [][]byte {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n\r\n"), []byte("\n\n"))
	normalized = bytes.ReplaceAll(normalized, []byte("\r\r"), []byte("\n\n"))
	return bytes.Split(normalized, []byte("\n\n"))
}

// splitLines splits a single event block into its constituent lines,
// accepting both "\n" and "\r\n" line endings.
func splitLines(block []byte) [][]byte {
	normalized := bytes.ReplaceAll(block, []byte("\r\n"), []byte("\n"))
	normalized = bytes.ReplaceAll(normalized, []byte("\r"), []byte("\n"))
	return bytes.Split(normalized, []byte("\n"))
}

// trimLeadingSpace strips exactly one leading space after the field
// colon, per the SSE spec.
func trimLeadingSpace(b []byte) []byte {
	if len(b) > 0 && b[0] == ' ' {
		return b[1:]
	}
	return b
}
