package graph

import "github.com/tetratelabs/treeir/api"

// GetLocal and SetLocal read/write a per-function local slot, threaded
// through the effect chain so a get_local always observes the most
// recent set_local in program order (spec.md's local model).
//
// tf-builder.cc instead tracks a live Node* per local in an SsaEnv and
// inserts a Phi at every control join whose incoming branches disagree on
// a local's current value, never emitting a get_local/set_local node at
// all. Reproducing that renaming pass — and the Phi insertion it requires
// at every Merge/Loop the decoder builds — is substantial machinery
// orthogonal to what this package is grounded on; threading locals through
// the effect chain like any other mutable storage gets the same
// program-order guarantee non-generically, at the cost of one graph node
// per access (see DESIGN.md).
func (b *Builder) GetLocal(index uint32, t api.PrimitiveType) *Node {
	n := b.Graph.newNode(OpGetLocal, b.Effect)
	n.I32Value = int32(index)
	n.Type = t
	b.Effect = n
	return n
}

func (b *Builder) SetLocal(index uint32, value *Node) *Node {
	n := b.Graph.newNode(OpSetLocal, value, b.Effect)
	n.I32Value = int32(index)
	b.Effect = n
	return n
}
