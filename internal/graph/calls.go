package graph

import (
	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/opcode"
)

// CallDirect emits a call to a statically known callee (spec.md §4.3's
// call(fn, args...)). The decoder has already resolved codeHandle and
// resultType via moduleenv before calling in, so graph never needs to
// import internal/moduleenv (SPEC_FULL.md §4).
//
// context is the call descriptor's distinct context input (spec.md §4.4);
// nil for an ordinary function call, non-nil for the Throw-terminator trap
// call, which needs the module's context constant per §4.4's "context =
// module context; argument = ..." wording.
func (b *Builder) CallDirect(codeHandle any, context *Node, args []*Node, resultType *api.PrimitiveType) *Node {
	inputs := append([]*Node{}, args...)
	if context != nil {
		inputs = append(inputs, context)
	}
	inputs = append(inputs, b.Effect, b.Control)
	n := b.Graph.newNode(OpCall, inputs...)
	n.CallTarget = codeHandle
	n.CallContext = context
	if resultType != nil {
		n.Type = *resultType
	} else {
		n.Type = api.PrimitiveStmt
	}
	b.Effect = n
	return n
}

// CallIndirect emits a call through the module's indirect-call table
// (spec.md §4.3's call_indirect(sigIndex, tableIndex, args...)).
//
// tf-builder.cc walks a raw V8 FixedArray with tagged-SMI pointer
// arithmetic to do this; there is no equivalent representation here, so
// the table itself becomes an opaque OpFunctionTable marker node and the
// two lookups (declared signature, code handle) are ordinary effectful
// loads keyed by tableIndex, preserving the original's check ordering:
// bounds, then signature, then the call (SPEC_FULL.md §4).
func (b *Builder) CallIndirect(tableSize uint32, tableIndex *Node, expectedSigIndex *Node, args []*Node, resultType *api.PrimitiveType, traps TrapInserter) *Node {
	b.requireTraps(traps)

	inBounds := b.binary(opcode.I32LtU, tableIndex, b.ConstantI32(int32(tableSize)), api.PrimitiveI32)
	traps.TrapIf(TrapFuncInvalid, inBounds, false)

	table := b.Graph.newNode(OpFunctionTable)

	sigLoad := b.Graph.newNode(OpTableSignatureLoad, table, tableIndex, b.Effect)
	sigLoad.Type = api.PrimitiveI32
	b.Effect = sigLoad

	sigMatches := b.binary(opcode.I32Eq, sigLoad, expectedSigIndex, api.PrimitiveI32)
	traps.TrapIf(TrapFuncSigMismatch, sigMatches, false)

	codeLoad := b.Graph.newNode(OpTableCodeLoad, table, tableIndex, b.Effect)
	b.Effect = codeLoad

	inputs := append(append([]*Node{}, args...), b.Effect, b.Control)
	n := b.Graph.newNode(OpCall, inputs...)
	n.CallTarget = codeLoad
	if resultType != nil {
		n.Type = *resultType
	} else {
		n.Type = api.PrimitiveStmt
	}
	b.Effect = n
	return n
}
