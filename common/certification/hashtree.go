package certification

import (
	"crypto/sha256"

	"github.com/fxamacker/cbor/v2"

	"github.com/junobuild/satellite/common/faults"
)

// NodeKind enumerates hash tree node types
type NodeKind int

const (
	NodeEmpty NodeKind = iota
	NodeFork
	NodeLabeled
	NodeLeaf
	NodePruned
)

// HashTree is one node of a Merkle hash tree. The digest and wire encoding
// follow the IC hash-tree scheme exactly; a verifier recomputes the root
// from a witness, so any deviation breaks client verification.
type HashTree struct {
	Kind  NodeKind
	Left  *HashTree
	Right *HashTree
	Label []byte

	// Value carries leaf data for NodeLeaf and the subtree digest for
	// NodePruned
	Value []byte
}

func domainSep(s string) []byte {
	out := make([]byte, 0, len(s)+1)
	out = append(out, byte(len(s)))
	return append(out, s...)
}

// Digest computes the node's hash with the domain-separated SHA-256 rules
func (t *HashTree) Digest() [32]byte {
	switch t.Kind {
	case NodeEmpty:
		return sha256.Sum256(domainSep("ic-hashtree-empty"))
	case NodeFork:
		left := t.Left.Digest()
		right := t.Right.Digest()
		h := sha256.New()
		h.Write(domainSep("ic-hashtree-fork"))
		h.Write(left[:])
		h.Write(right[:])
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	case NodeLabeled:
		sub := t.Left.Digest()
		h := sha256.New()
		h.Write(domainSep("ic-hashtree-labeled"))
		h.Write(t.Label)
		h.Write(sub[:])
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	case NodeLeaf:
		h := sha256.New()
		h.Write(domainSep("ic-hashtree-leaf"))
		h.Write(t.Value)
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	default: // NodePruned
		var out [32]byte
		copy(out[:], t.Value)
		return out
	}
}

// encMode is the deterministic CBOR encoder shared by witness and
// certificate serialization
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("certification: cbor encoder init: " + err.Error())
	}
}

// cborValue renders the tree as the nested-array structure of the wire
// format: [0] empty, [1, l, r] fork, [2, label, tree] labeled,
// [3, data] leaf, [4, digest] pruned.
func (t *HashTree) cborValue() interface{} {
	switch t.Kind {
	case NodeEmpty:
		return []interface{}{uint64(0)}
	case NodeFork:
		return []interface{}{uint64(1), t.Left.cborValue(), t.Right.cborValue()}
	case NodeLabeled:
		return []interface{}{uint64(2), t.Label, t.Left.cborValue()}
	case NodeLeaf:
		return []interface{}{uint64(3), t.Value}
	default: // NodePruned
		return []interface{}{uint64(4), t.Value}
	}
}

// MarshalCBOR serializes the tree under the self-describing CBOR tag
func (t *HashTree) MarshalCBOR() ([]byte, error) {
	raw, err := encMode.Marshal(cbor.Tag{Number: 55799, Content: t.cborValue()})
	if err != nil {
		return nil, faults.Certification("hash tree serialization: %v", err)
	}
	return raw, nil
}
