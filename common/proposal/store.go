package proposal

import (
	"context"
	"sort"
	"sync"

	"github.com/junobuild/satellite/common/models"
)

// ListParams pages proposal listings over their numeric id space. Ids are
// dense and start at 1, so a half-open id range replaces the key cursor
// used for assets. Limit of 0 falls back to DefaultPageSize.
type ListParams struct {
	StartAfter uint64
	Limit      int
	Desc       bool
}

// DefaultPageSize bounds a listing when no limit is given
const DefaultPageSize = 100

// Store persists proposal records. Implementations return nil for a
// missing proposal rather than an error.
type Store interface {
	Get(ctx context.Context, id uint64) (*models.Proposal, error)
	Insert(ctx context.Context, p *models.Proposal) error
	Update(ctx context.Context, p *models.Proposal) error
	List(ctx context.Context, params ListParams) ([]*models.Proposal, error)
	Count(ctx context.Context) (uint64, error)
	NextID(ctx context.Context) (uint64, error)
}

// StagedStore holds the assets a proposal stages before commit, separate
// from the live asset store
type StagedStore interface {
	Put(ctx context.Context, proposalID uint64, asset *models.Asset) error
	List(ctx context.Context, proposalID uint64) ([]*models.Asset, error)

	// Purge removes every staged asset of the proposal and returns them so
	// the caller can release their chunk content
	Purge(ctx context.Context, proposalID uint64) ([]*models.Asset, error)
}

// MemoryStore is the in-process proposal store
type MemoryStore struct {
	mu        sync.Mutex
	proposals map[uint64]*models.Proposal
	nextID    uint64
}

// NewMemoryStore creates an empty in-memory proposal store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{proposals: make(map[uint64]*models.Proposal)}
}

func (s *MemoryStore) Get(ctx context.Context, id uint64) (*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (s *MemoryStore) Insert(ctx context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *p
	s.proposals[p.ID] = &clone
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, p *models.Proposal) error {
	return s.Insert(ctx, p)
}

func (s *MemoryStore) List(ctx context.Context, params ListParams) ([]*models.Proposal, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uint64, 0, len(s.proposals))
	for id := range s.proposals {
		if id > params.StartAfter {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) > limit {
		ids = ids[:limit]
	}

	// Descending order reverses the page after the range fetch
	if params.Desc {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}

	out := make([]*models.Proposal, len(ids))
	for i, id := range ids {
		clone := *s.proposals[id]
		out[i] = &clone
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.proposals)), nil
}

func (s *MemoryStore) NextID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

// MemoryStagedStore is the in-process staged asset store, keyed by
// proposal id then full path
type MemoryStagedStore struct {
	mu     sync.Mutex
	staged map[uint64]map[string]*models.Asset
}

// NewMemoryStagedStore creates an empty in-memory staged store
func NewMemoryStagedStore() *MemoryStagedStore {
	return &MemoryStagedStore{staged: make(map[uint64]map[string]*models.Asset)}
}

func (s *MemoryStagedStore) Put(ctx context.Context, proposalID uint64, asset *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assets, ok := s.staged[proposalID]
	if !ok {
		assets = make(map[string]*models.Asset)
		s.staged[proposalID] = assets
	}
	assets[asset.Key.FullPath] = asset
	return nil
}

func (s *MemoryStagedStore) List(ctx context.Context, proposalID uint64) ([]*models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedAssets(s.staged[proposalID]), nil
}

func (s *MemoryStagedStore) Purge(ctx context.Context, proposalID uint64) ([]*models.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := sortedAssets(s.staged[proposalID])
	delete(s.staged, proposalID)
	return purged, nil
}

func sortedAssets(assets map[string]*models.Asset) []*models.Asset {
	out := make([]*models.Asset, 0, len(assets))
	for _, asset := range assets {
		out = append(out, asset)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Collection != out[j].Key.Collection {
			return out[i].Key.Collection < out[j].Key.Collection
		}
		return out[i].Key.FullPath < out[j].Key.FullPath
	})
	return out
}
