package x11

import (
	"github.com/zeebo/xxh3"

	"github.com/qlentz/x11/internal"
)

// DisplaySelector picks which display serves a given affinity key.
// It receives the key and the current number of displays and returns the
// display index.
type DisplaySelector func(key string, displayCount int) int

// DefaultDisplaySelector uses Jump Hash over an xxh3 digest. Jump Hash
// keeps the key-to-display assignment stable and moves a minimal number of
// keys when the display count changes.
func DefaultDisplaySelector(key string, displayCount int) int {
	return internal.JumpHash(xxh3.HashString(key), displayCount)
}

// staticSelector is used in tests to always select a specific display.
func staticSelector(index int) DisplaySelector {
	return func(key string, displayCount int) int {
		return index % displayCount
	}
}
