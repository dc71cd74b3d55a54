package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/junobuild/satellite/common/faults"
)

// ChunkRef derives the content-addressed reference for a chunk
func ChunkRef(content []byte) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256(content))
}

// MemoryChunkStore keeps chunk content in process memory, keyed by the
// chunk's content hash. It backs heap collections and tests.
type MemoryChunkStore struct {
	chunks map[string][]byte
	mu     sync.RWMutex
}

// NewMemoryChunkStore creates an empty in-memory chunk store
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{
		chunks: make(map[string][]byte),
	}
}

// Put stores the chunk content and returns its reference. Storing the same
// content twice is idempotent.
func (s *MemoryChunkStore) Put(ctx context.Context, content []byte) (string, error) {
	ref := ChunkRef(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chunks[ref]; !ok {
		stored := make([]byte, len(content))
		copy(stored, content)
		s.chunks[ref] = stored
	}
	return ref, nil
}

// Get retrieves chunk content by reference
func (s *MemoryChunkStore) Get(ctx context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	content, ok := s.chunks[ref]
	if !ok {
		return nil, faults.NotFound("chunk %s", ref)
	}
	return content, nil
}

// Delete removes chunk content by reference. Missing refs are ignored.
func (s *MemoryChunkStore) Delete(ctx context.Context, refs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		delete(s.chunks, ref)
	}
	return nil
}
