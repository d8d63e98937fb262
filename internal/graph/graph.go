// Package graph implements the IR node/graph model and the Graph Builder,
// spec.md §3 and §4.3: a sea-of-nodes graph where data, effect and control
// are all explicit edges. graph never parses bytes and never looks at the
// opcode table except to select an operator inside Binop/Unop — the decoder
// (internal/decoder) owns the walk and drives this package one call at a
// time (spec.md §2's "Composition").
package graph

import (
	"fmt"

	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/opcode"
)

// OpKind classifies a Node's operator. It exists so callers (mainly tests
// and the CLI's graph dump) can group nodes by shape without inspecting
// every immediate field.
type OpKind byte

const (
	OpStart OpKind = iota
	OpParameter
	OpConstantI32
	OpConstantI64
	OpConstantF32
	OpConstantF64
	OpConstantString // trap diagnostic strings (the Throw terminator's reason argument)
	OpBinary
	OpUnary
	OpLoad
	OpStore
	OpLoadGlobal
	OpStoreGlobal
	OpCall
	OpBranch
	OpIfTrue
	OpIfFalse
	OpMerge
	OpPhi
	OpEffectPhi
	OpLoop
	OpReturn
	OpSwitch
	OpIfValue
	OpIfDefault
	OpUnreachable
	OpTerminate

	// Indirect-call table access. tf-builder.cc's CallIndirect walks a raw
	// V8 FixedArray with tagged-SMI pointer arithmetic; that has no
	// equivalent here, so the table itself is an opaque marker node and the
	// two lookups it feeds are ordinary effectful loads (SPEC_FULL.md §4).
	OpFunctionTable
	OpTableSignatureLoad
	OpTableCodeLoad

	// OpMemoryBase is the per-function-build cached linear-memory base
	// pointer (tf-builder.cc's MemBuffer), a pure constant-like marker
	// rather than an actual effectful load.
	OpMemoryBase

	// OpGlobalsBase is the per-function-build cached globals-area base
	// pointer (spec.md §6.2's GlobalsAreaBase), addressed by LoadGlobal/
	// StoreGlobal the same way OpMemoryBase addresses LoadMem/StoreMem.
	OpGlobalsBase

	// OpGetLocal/OpSetLocal thread a function local through the effect
	// chain (SPEC_FULL.md §4's simplified local model; see DESIGN.md).
	OpGetLocal
	OpSetLocal

	// OpModuleContext is the per-function-build cached module-context
	// constant (spec.md §4.4's call descriptor "context" slot), materialized
	// from moduleenv.Environment.ContextConstant() the same way OpMemoryBase
	// caches the linear-memory base pointer.
	OpModuleContext
)

func (k OpKind) String() string {
	names := [...]string{
		"Start", "Parameter", "ConstantI32", "ConstantI64", "ConstantF32", "ConstantF64",
		"ConstantString", "Binary", "Unary", "Load", "Store", "LoadGlobal", "StoreGlobal",
		"Call", "Branch", "IfTrue", "IfFalse", "Merge", "Phi", "EffectPhi", "Loop", "Return",
		"Switch", "IfValue", "IfDefault", "Unreachable", "Terminate",
		"FunctionTable", "TableSignatureLoad", "TableCodeLoad", "MemoryBase",
		"GlobalsBase", "GetLocal", "SetLocal", "ModuleContext",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("OpKind(%d)", byte(k))
}

// Node is one vertex of the sea-of-nodes graph: operator plus ordered input
// edges. Operators never change identity after creation (spec.md §3),
// except for Merge/Loop/Phi/EffectPhi, whose *arity* (not operator kind)
// grows in place via AppendInput (and, for Phi/EffectPhi, InsertInput) —
// the one place the IR grows variadic control joins after construction
// (spec.md §4.4).
type Node struct {
	ID     int
	Kind   OpKind
	Inputs []*Node

	// Type is the PrimitiveType of the value this node produces. Zero value
	// (PrimitiveI32) is meaningless for non-value nodes; check ProducesValue.
	Type api.PrimitiveType

	// Sub is the opcode driving a Binary/Unary node's operator selection.
	Sub opcode.Opcode
	// MemOp carries the access type for Load/Store/LoadGlobal/StoreGlobal.
	MemOp api.MemType
	// Offset is the static byte offset for Load/Store/LoadGlobal/StoreGlobal,
	// or a switch case value for IfValue. LoadGlobal/StoreGlobal carry their
	// global index in I32Value.
	Offset uint32

	// Immediate constant payloads. Exactly one is meaningful, chosen by Kind.
	I32Value int32
	I64Value int64
	F32Value float32
	F64Value float64
	StrValue string

	// ParamIndex is meaningful for OpParameter.
	ParamIndex int

	// CallTarget is an OpCall's callee: the opaque code handle of a direct
	// call, or the OpTableCodeLoad node of an indirect one. It is kept as a
	// typed field and is not one of Inputs, so call composition doesn't
	// need a sentinel node kind for "code constant" (spec.md §9's "typed
	// sum representing IR input slot").
	CallTarget any

	// CallContext is an OpCall's context-input node, distinct from its
	// value arguments (spec.md §4.4's call descriptor: "context = module
	// context; argument = ..."). Nil for a call built with no module
	// context available. Also present in Inputs when non-nil, so it stays
	// reachable from Graph.CountByKind's walk like any other value input.
	CallContext *Node

	// ContextValue is OpModuleContext's opaque payload, the same
	// moduleenv.Environment.ContextConstant() value CallContext ultimately
	// wraps.
	ContextValue any
}

// ProducesValue reports whether Kind leaves a usable value (as opposed to
// only effect/control).
func (n *Node) ProducesValue() bool {
	switch n.Kind {
	case OpConstantI32, OpConstantI64, OpConstantF32, OpConstantF64, OpConstantString,
		OpBinary, OpUnary, OpLoad, OpLoadGlobal, OpParameter, OpPhi, OpCall,
		OpFunctionTable, OpTableSignatureLoad, OpTableCodeLoad, OpMemoryBase, OpGetLocal,
		OpModuleContext:
		return true
	default:
		return false
	}
}

// AppendInput grows a Merge/Loop/Phi/EffectPhi node's input list by one.
// Together with InsertInput below and Graph.AddTerminator's growth of End,
// this is the only mutation the graph model allows after a node is created
// (spec.md's "changing arity is a node-operator replacement... not a
// node re-allocation" — here we don't distinguish node identity from
// operator identity, so it is simply an in-place grow). Loop is included
// because a loop header's back-edges arrive after its body is decoded, the
// same widen-after-the-fact shape as an ordinary Merge.
func (n *Node) AppendInput(in *Node) {
	if n.Kind != OpMerge && n.Kind != OpPhi && n.Kind != OpEffectPhi && n.Kind != OpLoop {
		panic(fmt.Sprintf("graph: AppendInput on non-variadic node kind %s", n.Kind))
	}
	n.Inputs = append(n.Inputs, in)
}

// InsertInput inserts in at position i, used by Phi/EffectPhi to keep the
// trailing control input last while growing the value/effect inputs that
// precede it (mirrors tf-builder.cc's AppendToPhi, which inserts before the
// final control slot rather than appending after it).
func (n *Node) InsertInput(i int, in *Node) {
	if n.Kind != OpPhi && n.Kind != OpEffectPhi {
		panic(fmt.Sprintf("graph: InsertInput on non-phi node kind %s", n.Kind))
	}
	n.Inputs = append(n.Inputs, nil)
	copy(n.Inputs[i+1:], n.Inputs[i:])
	n.Inputs[i] = in
}

// Graph is the arena-owning collection of nodes plus the distinguished
// Start and End (spec.md §3's "IR graph" entity). Its lifetime is the
// caller's: treeir.Compile hands the finished Graph back and never touches
// it again.
type Graph struct {
	Start *Node
	// End collects every terminator: returns, throws, and the unreachable
	// terminate node for infinite loops with no break (spec.md §4.2).
	End *Node

	nextID int
}

// newNode allocates a Node in this graph's arena and assigns it a stable,
// monotonically increasing ID — used only for debugging output and the
// isomorphism property in spec.md §8 ("same node count grouped by
// operator"), never for equality.
func (g *Graph) newNode(kind OpKind, inputs ...*Node) *Node {
	n := &Node{ID: g.nextID, Kind: kind, Inputs: inputs}
	g.nextID++
	return n
}

// AddTerminator records a graph-ending node (Return, Throw-equivalent, or
// Unreachable) as one of End's inputs, matching tf-builder.cc's
// MergeControlToEnd: End's input count equals the number of terminators
// this function build produced.
func (g *Graph) AddTerminator(n *Node) {
	if g.End == nil {
		g.End = g.newNode(OpTerminate, n)
		return
	}
	g.End.Inputs = append(g.End.Inputs, n)
}

// CountByKind groups every reachable node by operator kind — the shape
// spec.md §8's isomorphism property compares across two decodes of the
// same bytes.
func (g *Graph) CountByKind() map[OpKind]int {
	counts := map[OpKind]int{}
	seen := map[*Node]bool{}
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		counts[n.Kind]++
		for _, in := range n.Inputs {
			walk(in)
		}
	}
	walk(g.End)
	return counts
}
