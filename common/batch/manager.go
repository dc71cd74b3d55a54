package batch

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
)

// Clock supplies the current time, injectable for tests
type Clock func() time.Time

// Manager tracks in-flight upload sessions and their chunks, keyed by
// numeric ids. Abandoned batches are garbage collected by an expiry sweep
// run opportunistically on every create and commit.
type Manager struct {
	ttl time.Duration
	now Clock

	mu          sync.Mutex
	batches     map[uint64]*models.Batch
	chunks      map[uint64]*models.Chunk
	nextBatchID uint64
	nextChunkID uint64
}

// NewManager creates a batch manager with the given session lifetime
func NewManager(ttl time.Duration) *Manager {
	return NewManagerWithClock(ttl, time.Now)
}

// NewManagerWithClock creates a batch manager with an injected clock
func NewManagerWithClock(ttl time.Duration, now Clock) *Manager {
	return &Manager{
		ttl:     ttl,
		now:     now,
		batches: make(map[uint64]*models.Batch),
		chunks:  make(map[uint64]*models.Chunk),
	}
}

// CreateBatch opens an upload session for the asset key and returns its
// id. A non-nil proposalID binds the session to a proposal's staged store.
func (m *Manager) CreateBatch(key models.AssetKey, encodingType models.EncodingType, proposalID *uint64) *models.Batch {
	if encodingType == "" {
		encodingType = models.EncodingIdentity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearExpiredLocked()

	m.nextBatchID++
	batch := &models.Batch{
		ID:           m.nextBatchID,
		Key:          key,
		ExpiresAt:    m.now().Add(m.ttl),
		EncodingType: encodingType,
		ProposalID:   proposalID,
	}
	m.batches[batch.ID] = batch
	return batch
}

// CreateChunk appends an uploaded chunk to its batch and returns the chunk
// id. The batch's expiry is pushed out so long uploads stay alive.
func (m *Manager) CreateChunk(batchID uint64, orderIndex int, content []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearExpiredLocked()

	batch, ok := m.batches[batchID]
	if !ok {
		return 0, faults.NotFound("batch %d", batchID)
	}
	batch.ExpiresAt = m.now().Add(m.ttl)

	m.nextChunkID++
	m.chunks[m.nextChunkID] = &models.Chunk{
		ID:         m.nextChunkID,
		BatchID:    batchID,
		OrderIndex: orderIndex,
		Content:    content,
	}
	return m.nextChunkID, nil
}

// Prepare validates a commit and returns the batch with its chunk content
// in order_index order. Nothing is removed; the caller finishes the commit
// with Remove once the asset has been persisted, keeping failed commits
// free of partial writes.
func (m *Manager) Prepare(batchID uint64, caller uuid.UUID) (*models.Batch, [][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearExpiredLocked()

	batch, ok := m.batches[batchID]
	if !ok {
		return nil, nil, faults.NotFound("batch %d", batchID)
	}
	if batch.Key.Owner != caller {
		return nil, nil, faults.PermissionDenied("batch %d does not belong to caller", batchID)
	}

	chunks := m.batchChunksLocked(batchID)
	if len(chunks) == 0 {
		return nil, nil, faults.Validation("batch %d has no chunks", batchID)
	}

	content := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		content[i] = chunk.Content
	}
	return batch, content, nil
}

// Remove purges a batch and its chunks after a successful commit
func (m *Manager) Remove(batchID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(batchID)
}

// ClearExpired sweeps batches whose lifetime has passed, along with their
// orphaned chunks
func (m *Manager) ClearExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearExpiredLocked()
}

// Len reports the number of in-flight batches
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *Manager) batchChunksLocked(batchID uint64) []*models.Chunk {
	var chunks []*models.Chunk
	for _, chunk := range m.chunks {
		if chunk.BatchID == batchID {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].OrderIndex != chunks[j].OrderIndex {
			return chunks[i].OrderIndex < chunks[j].OrderIndex
		}
		return chunks[i].ID < chunks[j].ID
	})
	return chunks
}

func (m *Manager) removeLocked(batchID uint64) {
	delete(m.batches, batchID)
	for id, chunk := range m.chunks {
		if chunk.BatchID == batchID {
			delete(m.chunks, id)
		}
	}
}

func (m *Manager) clearExpiredLocked() {
	now := m.now()
	for id, batch := range m.batches {
		if batch.Expired(now) {
			m.removeLocked(id)
		}
	}
}
