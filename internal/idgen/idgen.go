// Package idgen mints opaque cache entry ids.
package idgen

import "github.com/google/uuid"

// New returns a collision-resistant opaque id (122 bits of entropy,
// URL-safe once hyphens are stripped) suitable as a CacheEntry id (§3).
// Model-provided ids are never reused — every committed entry gets a
// freshly minted one.
func New() string {
	return uuid.NewString()
}
