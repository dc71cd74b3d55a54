package encoding

import (
	"crypto/sha256"
	"time"

	"github.com/junobuild/satellite/common/models"
)

// Clock supplies the modification timestamp, injectable for tests
type Clock func() time.Time

// Builder computes asset encodings from ordered chunk content.
// Build is deterministic for identical byte content and order; the digest
// feeds both ETag generation and proposal-level integrity hashing.
type Builder struct {
	now Clock
}

// NewBuilder creates a builder using the wall clock
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// NewBuilderWithClock creates a builder with an injected clock
func NewBuilderWithClock(now Clock) *Builder {
	return &Builder{now: now}
}

// Build streams through the chunks, accumulating a running SHA-256 and the
// total byte length, and returns the resulting encoding. The chunk slices
// are referenced, not copied.
func (b *Builder) Build(chunks [][]byte) *models.AssetEncoding {
	hasher := sha256.New()
	var total uint64

	for _, chunk := range chunks {
		hasher.Write(chunk)
		total += uint64(len(chunk))
	}

	return &models.AssetEncoding{
		Modified:      b.now(),
		ContentChunks: chunks,
		TotalLength:   total,
		SHA256:        hasher.Sum(nil),
	}
}
