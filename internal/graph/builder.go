package graph

import (
	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/opcode"
)

// Capabilities is re-exported so callers of graph don't need to also import
// internal/opcode just to build a Builder.
type Capabilities = opcode.Capabilities

// Builder holds the graph under construction plus the three pieces of
// mutable state spec.md §9 calls out as needing a redesign in Go: the
// current control node, the current effect node, and a scratch argument
// buffer. The decoder owns exactly one Builder per function decode; besides
// calling Builder's methods, it reads and reassigns Control and Effect
// directly when it joins or restores control flow.
type Builder struct {
	Graph   *Graph
	Control *Node
	Effect  *Node

	// args is a scratch argument buffer (spec.md §9), reachable through
	// ResetArgs/PushArg/Args. The decoder does not use it: it hands call
	// arguments and phi inputs to Node constructors as slices it builds
	// itself.
	args []*Node

	caps Capabilities

	// memBase/memSize cache the zero-offset memory base pointer and size
	// constant for the lifetime of one function build (SPEC_FULL.md §4,
	// grounded on tf-builder.cc's MemBuffer/MemSize).
	memBase, memSize *Node
	memBaseAddr      uintptr

	// globalsBase caches the globals-area base pointer the same way memBase
	// caches the linear-memory base (spec.md §6.2's GlobalsAreaBase).
	globalsBase     *Node
	globalsBaseAddr uintptr

	// moduleContext caches the module-context constant used as a call
	// descriptor's context input (spec.md §4.4), the same per-builder-
	// lifetime shape as memBase/globalsBase.
	moduleContext     *Node
	moduleContextInit bool
}

// NewBuilder creates an empty Builder. Callers must call Start before any
// other method.
func NewBuilder(caps Capabilities) *Builder {
	return &Builder{Graph: &Graph{}, caps: caps}
}

// Start creates the Start node (spec.md §4.3): it produces nParams
// parameter tokens plus the initial effect and control, and becomes the
// builder's cursor.
func (b *Builder) Start(nParams int) []*Node {
	start := b.Graph.newNode(OpStart)
	b.Graph.Start = start
	b.Control = start
	b.Effect = start

	params := make([]*Node, nParams)
	for i := 0; i < nParams; i++ {
		p := b.Graph.newNode(OpParameter, start)
		p.ParamIndex = i
		params[i] = p
	}
	return params
}

// ResetArgs clears the scratch argument buffer.
func (b *Builder) ResetArgs() { b.args = b.args[:0] }

// PushArg appends to the scratch buffer.
func (b *Builder) PushArg(n *Node) { b.args = append(b.args, n) }

// Args returns the current scratch buffer contents.
func (b *Builder) Args() []*Node { return b.args }

// ConstantI32, ConstantI64, ConstantF32, ConstantF64 yield pure value nodes
// (spec.md §4.3's Constant(v) family, one entry point per primitive type).
func (b *Builder) ConstantI32(v int32) *Node {
	n := b.Graph.newNode(OpConstantI32)
	n.Type = api.PrimitiveI32
	n.I32Value = v
	return n
}

func (b *Builder) ConstantI64(v int64) *Node {
	n := b.Graph.newNode(OpConstantI64)
	n.Type = api.PrimitiveI64
	n.I64Value = v
	return n
}

func (b *Builder) ConstantF32(v float32) *Node {
	n := b.Graph.newNode(OpConstantF32)
	n.Type = api.PrimitiveF32
	n.F32Value = v
	return n
}

func (b *Builder) ConstantF64(v float64) *Node {
	n := b.Graph.newNode(OpConstantF64)
	n.Type = api.PrimitiveF64
	n.F64Value = v
	return n
}

// ConstantString yields a diagnostic-string constant, used only by the
// trap helper to build the runtime-throw call's message argument.
func (b *Builder) ConstantString(s string) *Node {
	n := b.Graph.newNode(OpConstantString)
	n.StrValue = s
	return n
}

// Branch emits a Branch at the current control and returns the true/false
// successor pair (spec.md §4.3).
func (b *Builder) Branch(cond *Node) (ifTrue, ifFalse *Node) {
	if b.Control == nil {
		panic("graph: Branch with nil control")
	}
	branch := b.Graph.newNode(OpBranch, cond, b.Control)
	ifTrue = b.Graph.newNode(OpIfTrue, branch)
	ifFalse = b.Graph.newNode(OpIfFalse, branch)
	return ifTrue, ifFalse
}

// Merge creates a control-join node over the given predecessor controls.
func (b *Builder) Merge(controls ...*Node) *Node {
	return b.Graph.newNode(OpMerge, controls...)
}

// Phi creates a value-join at a Merge; vals must have the same length as
// merge's current input count. The merge control is appended last, per
// tf-builder.cc's Phi (values, then control).
func (b *Builder) Phi(t api.PrimitiveType, merge *Node, vals ...*Node) *Node {
	inputs := append(append([]*Node{}, vals...), merge)
	n := b.Graph.newNode(OpPhi, inputs...)
	n.Type = t
	return n
}

// EffectPhi creates an effect-join at a Merge, effects then control.
func (b *Builder) EffectPhi(merge *Node, effects ...*Node) *Node {
	inputs := append(append([]*Node{}, effects...), merge)
	return b.Graph.newNode(OpEffectPhi, inputs...)
}

// AppendToMerge widens merge by one control input (spec.md §4.4/§9).
func (b *Builder) AppendToMerge(merge *Node, from *Node) {
	merge.AppendInput(from)
}

// AppendToPhi widens phi (backed by merge) by one value/effect input,
// inserting before the trailing control input (tf-builder.cc's
// AppendToPhi).
func (b *Builder) AppendToPhi(phi *Node, from *Node) {
	phi.InsertInput(len(phi.Inputs)-1, from)
}

// Loop creates a loop header with a single entry input; back-edges are
// added later via AppendToMerge, since a Loop is itself variadic-eligible
// the same way a Merge is (spec.md §4.3's Loop(entry)).
func (b *Builder) Loop(entry *Node) *Node {
	n := b.Graph.newNode(OpLoop, entry)
	return n
}

// Return appends the current effect and control and merges to End
// (spec.md §4.3). An empty vals means ReturnVoid: a single zero constant is
// synthesized, matching tf-builder.cc's Return(0, ...) for the void case.
func (b *Builder) Return(vals ...*Node) *Node {
	if b.Control == nil || b.Effect == nil {
		panic("graph: Return with nil control/effect")
	}
	if len(vals) == 0 {
		vals = []*Node{b.ConstantI32(0)}
	}
	inputs := append(append([]*Node{}, vals...), b.Effect, b.Control)
	ret := b.Graph.newNode(OpReturn, inputs...)
	b.Graph.AddTerminator(ret)
	return ret
}

// ReturnVoid is sugar for Return() with no values.
func (b *Builder) ReturnVoid() *Node { return b.Return() }

// Switch creates a Switch node over key at the current control; IfValue and
// IfDefault fan out from it (spec.md §4.3).
func (b *Builder) Switch(key *Node) *Node {
	return b.Graph.newNode(OpSwitch, key, b.Control)
}

func (b *Builder) IfValue(sw *Node, value uint32) *Node {
	if sw.Kind != OpSwitch {
		panic("graph: IfValue on non-Switch node")
	}
	n := b.Graph.newNode(OpIfValue, sw)
	n.Offset = value
	return n
}

func (b *Builder) IfDefault(sw *Node) *Node {
	if sw.Kind != OpSwitch {
		panic("graph: IfDefault on non-Switch node")
	}
	return b.Graph.newNode(OpIfDefault, sw)
}

// Unreachable terminates the current control path with the unreachable
// terminate node, collected by End (spec.md §4.2's infinite-loop case).
func (b *Builder) Unreachable() *Node {
	n := b.Graph.newNode(OpUnreachable, b.Control, b.Effect)
	b.Graph.AddTerminator(n)
	return n
}

// Capabilities exposes the target predicate set Binop/Unop consult.
func (b *Builder) Capabilities() Capabilities { return b.caps }
