// Package cacheerr defines the error kinds the core distinguishes between
// when deciding how a failure should surface to the client (see spec §7).
package cacheerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error dispositions in §7.
type Kind string

const (
	EmbedUnavailable Kind = "EMBED_UNAVAILABLE"
	IndexUnavailable Kind = "INDEX_UNAVAILABLE"
	StoreUnavailable Kind = "STORE_UNAVAILABLE"
	Upstream4xx      Kind = "UPSTREAM_4XX"
	Upstream5xx      Kind = "UPSTREAM_5XX"
	ParseFailed      Kind = "PARSE_FAILED"
	CaptureOverflow  Kind = "CAPTURE_OVERFLOW"
	ClientCancelled  Kind = "CLIENT_CANCELLED"
	OrphanVector     Kind = "ORPHAN_VECTOR"
)

// Error wraps an underlying failure with the kind that governs its
// disposition, and — for upstream errors — the status and body the
// client should see verbatim.
type Error struct {
	Kind   Kind
	Status int
	Body   []byte
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Upstream wraps a failed or error-status upstream call. 4xx statuses are
// forwarded to the client as-is; everything else (5xx, transport errors)
// is surfaced as 502.
func Upstream(status int, body []byte, err error) *Error {
	if status >= 400 && status < 500 {
		return &Error{Kind: Upstream4xx, Status: status, Body: body, Err: err}
	}
	return &Error{Kind: Upstream5xx, Status: status, Body: body, Err: err}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
