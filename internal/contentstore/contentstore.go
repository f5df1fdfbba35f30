// Package contentstore implements the ContentStore collaborator (§4.4,
// §6): a durable, eventually-consistent mapping from opaque id to
// completion text.
package contentstore

import "context"

// Store is the content collaborator the core depends on. Put is assumed
// durable before its acknowledgment returns (§4.4).
type Store interface {
	// Get returns the text stored under id, or ok=false if absent.
	Get(ctx context.Context, id string) (text string, ok bool, err error)
	Put(ctx context.Context, id string, text string) error
}
