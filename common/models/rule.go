package models

import "time"

// StorageAffinity selects the backing store for a collection's assets
type StorageAffinity string

const (
	// AffinityHeap keeps assets and chunk content in the fast in-process store
	AffinityHeap StorageAffinity = "heap"

	// AffinityStable keeps assets in the durable store with chunk content
	// held separately in the content-addressed chunk store
	AffinityStable StorageAffinity = "stable"
)

// CollectionRule declares a collection namespace and its access/storage policy
type CollectionRule struct {
	Collection string          `json:"collection"`
	Affinity   StorageAffinity `json:"affinity"`

	// MaxSize bounds the total byte length of one committed encoding.
	// Nil means unbounded.
	MaxSize *int64 `json:"max_size,omitempty"`

	// Guard is an optional CEL expression evaluated at commit time with
	// the candidate asset in scope. A false result denies the commit.
	Guard string `json:"guard,omitempty"`

	// Headers are collection defaults merged under asset-specific headers
	Headers []HeaderField `json:"headers,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   uint64    `json:"version"`
}
