package rules

import (
	"sort"
	"sync"
	"time"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
)

// DappCollection is the reserved collection public web assets live in
const DappCollection = "#dapp"

// Registry holds the declared collection rules. The reserved #dapp
// collection is always present.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]*models.CollectionRule
	guard *GuardEvaluator
	now   func() time.Time
}

// NewRegistry creates a registry seeded with the reserved collections
func NewRegistry() *Registry {
	r := &Registry{
		rules: make(map[string]*models.CollectionRule),
		guard: NewGuardEvaluator(),
		now:   time.Now,
	}
	r.rules[DappCollection] = &models.CollectionRule{
		Collection: DappCollection,
		Affinity:   models.AffinityHeap,
		CreatedAt:  r.now(),
		UpdatedAt:  r.now(),
		Version:    1,
	}
	return r
}

// Get returns the rule for the collection
func (r *Registry) Get(collection string) (*models.CollectionRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.rules[collection]
	if !ok {
		return nil, faults.NotFound("collection %s", collection)
	}
	clone := *rule
	return &clone, nil
}

// Set creates or updates a collection rule. An update must carry the
// current version so concurrent writers cannot silently overwrite each
// other.
func (r *Registry) Set(rule *models.CollectionRule) (*models.CollectionRule, error) {
	if rule.Collection == "" {
		return nil, faults.Validation("collection name is required")
	}
	if rule.Affinity != models.AffinityHeap && rule.Affinity != models.AffinityStable {
		return nil, faults.Validation("unknown storage affinity %q", rule.Affinity)
	}
	if rule.Guard != "" {
		if _, err := compile(rule.Guard); err != nil {
			return nil, faults.Validation("guard does not compile: %v", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	existing, ok := r.rules[rule.Collection]
	if !ok {
		stored := *rule
		stored.CreatedAt = now
		stored.UpdatedAt = now
		stored.Version = 1
		r.rules[rule.Collection] = &stored
		clone := stored
		return &clone, nil
	}

	if rule.Version != existing.Version {
		return nil, faults.InvalidState("collection %s is at version %d, got %d", rule.Collection, existing.Version, rule.Version)
	}

	stored := *rule
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = now
	stored.Version = existing.Version + 1
	r.rules[rule.Collection] = &stored
	clone := stored
	return &clone, nil
}

// Delete removes a collection rule. The reserved #dapp collection cannot
// be deleted.
func (r *Registry) Delete(collection string) error {
	if collection == DappCollection {
		return faults.Validation("collection %s is reserved", collection)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[collection]; !ok {
		return faults.NotFound("collection %s", collection)
	}
	delete(r.rules, collection)
	return nil
}

// List returns all rules ordered by collection name
func (r *Registry) List() []*models.CollectionRule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.CollectionRule, 0, len(r.rules))
	for _, rule := range r.rules {
		clone := *rule
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}

// Admit checks a candidate asset against the collection's policy: the
// per-encoding size bound and the guard expression
func (r *Registry) Admit(asset *models.Asset, totalLength uint64) error {
	rule, err := r.Get(asset.Key.Collection)
	if err != nil {
		return err
	}

	if rule.MaxSize != nil && totalLength > uint64(*rule.MaxSize) {
		return faults.Validation("asset %s exceeds the %d byte limit of %s", asset.Key.FullPath, *rule.MaxSize, rule.Collection)
	}

	return r.guard.Allow(rule, asset, totalLength)
}
