package certification

import "sort"

// NestedTree is a mutable Merkle tree keyed by byte-segment paths. The
// exposed HashTree rendering is deterministic: children are ordered by
// label bytes and folded into a balanced fork shape, and witnesses reuse
// the exact same shape with off-path branches pruned.
type NestedTree struct {
	root *treeNode
}

type treeNode struct {
	leaf     []byte
	hasLeaf  bool
	children map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{children: make(map[string]*treeNode)}
}

// NewNestedTree creates an empty tree
func NewNestedTree() *NestedTree {
	return &NestedTree{root: newTreeNode()}
}

// Insert places a leaf value at the segment path, creating intermediate
// labels as needed. An existing leaf at the path is replaced.
func (t *NestedTree) Insert(path [][]byte, value []byte) {
	node := t.root
	for _, segment := range path {
		child, ok := node.children[string(segment)]
		if !ok {
			child = newTreeNode()
			node.children[string(segment)] = child
		}
		node = child
	}
	node.leaf = value
	node.hasLeaf = true
}

// Delete removes the entire subtree at the segment path, pruning
// intermediate labels left empty
func (t *NestedTree) Delete(path [][]byte) {
	t.deleteFrom(t.root, path)
}

func (t *NestedTree) deleteFrom(node *treeNode, path [][]byte) bool {
	if len(path) == 0 {
		return true
	}
	child, ok := node.children[string(path[0])]
	if !ok {
		return false
	}
	if t.deleteFrom(child, path[1:]) {
		if len(path) == 1 || (len(child.children) == 0 && !child.hasLeaf) {
			delete(node.children, string(path[0]))
		}
	}
	return len(node.children) == 0 && !node.hasLeaf
}

// Contains reports whether a leaf exists exactly at the segment path
func (t *NestedTree) Contains(path [][]byte) bool {
	node := t.root
	for _, segment := range path {
		child, ok := node.children[string(segment)]
		if !ok {
			return false
		}
		node = child
	}
	return node.hasLeaf
}

// ContainsPrefix reports whether any leaf exists at or under the path
func (t *NestedTree) ContainsPrefix(path [][]byte) bool {
	node := t.root
	for _, segment := range path {
		child, ok := node.children[string(segment)]
		if !ok {
			return false
		}
		node = child
	}
	return true
}

// Tree renders the full hash tree
func (t *NestedTree) Tree() *HashTree {
	return t.root.render(nil, false)
}

// RootHash computes the current root digest
func (t *NestedTree) RootHash() [32]byte {
	return t.Tree().Digest()
}

// Witness renders the tree with every branch off the segment path pruned,
// proving presence (or absence) of the path against the root hash. The
// subtree at the end of the path is revealed in full, so a verifier can
// walk any labels beneath the witnessed node down to their leaves.
func (t *NestedTree) Witness(path [][]byte) *HashTree {
	return t.root.render(path, true)
}

// render builds the HashTree for a node. With prune set, branches whose
// label differs from the head of keep collapse to their digest; once keep
// is exhausted the remaining subtree renders unpruned.
func (n *treeNode) render(keep [][]byte, prune bool) *HashTree {
	var parts []*HashTree

	labels := make([]string, 0, len(n.children))
	for label := range n.children {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		child := n.children[label]

		var sub *HashTree
		switch {
		case !prune || len(keep) == 0:
			sub = child.render(nil, false)
		case label == string(keep[0]):
			sub = child.render(keep[1:], true)
		default:
			full := child.render(nil, false)
			digest := full.Digest()
			sub = &HashTree{Kind: NodePruned, Value: digest[:]}
		}
		parts = append(parts, &HashTree{Kind: NodeLabeled, Label: []byte(label), Left: sub})
	}

	if n.hasLeaf {
		leaf := &HashTree{Kind: NodeLeaf, Value: n.leaf}
		if len(parts) == 0 {
			return leaf
		}
		// A node carrying both a leaf and children folds the leaf in first
		parts = append([]*HashTree{leaf}, parts...)
	}

	if len(parts) == 0 {
		return &HashTree{Kind: NodeEmpty}
	}
	return foldForks(parts)
}

// foldForks combines subtrees into a balanced fork shape. Witness and full
// renderings go through this same fold, which keeps their digests aligned.
func foldForks(parts []*HashTree) *HashTree {
	if len(parts) == 1 {
		return parts[0]
	}
	mid := len(parts) / 2
	return &HashTree{
		Kind:  NodeFork,
		Left:  foldForks(parts[:mid]),
		Right: foldForks(parts[mid:]),
	}
}
