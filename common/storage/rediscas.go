package storage

import (
	"context"

	redisWrapper "github.com/junobuild/satellite/common/redis"
)

// RedisChunkStore stores chunk content in Redis, content-addressed by the
// chunk's SHA-256. Used by stable collections so encoding records carry
// references instead of inline bytes.
type RedisChunkStore struct {
	redis *redisWrapper.Client
}

// NewRedisChunkStore creates a Redis-backed chunk store
func NewRedisChunkStore(client *redisWrapper.Client) *RedisChunkStore {
	return &RedisChunkStore{redis: client}
}

// Put stores the chunk and returns its reference. SETNX keeps re-uploads of
// identical content idempotent and cheap.
func (s *RedisChunkStore) Put(ctx context.Context, content []byte) (string, error) {
	ref := ChunkRef(content)
	if _, err := s.redis.SetNX(ctx, casKey(ref), content, 0); err != nil {
		return "", err
	}
	return ref, nil
}

// Get retrieves chunk content by reference
func (s *RedisChunkStore) Get(ctx context.Context, ref string) ([]byte, error) {
	return s.redis.Get(ctx, casKey(ref))
}

// Delete removes chunk content by reference
func (s *RedisChunkStore) Delete(ctx context.Context, refs ...string) error {
	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = casKey(ref)
	}
	return s.redis.Delete(ctx, keys...)
}

func casKey(ref string) string {
	return "cas:" + ref
}
