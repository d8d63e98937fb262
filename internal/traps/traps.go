// Package traps implements the Trap Helper (spec.md §4.4): one lazily
// materialized Merge+EffectPhi sub-graph per trap reason, widened by one
// input each time the same reason is hit again during a function build.
//
// Grounded on tf-builder.cc's TFTrapHelper class: an uninitialized ->
// materialized state machine per reason, built the first time a check for
// that reason fires and simply widened (never rebuilt) on every subsequent
// check.
package traps

import (
	"github.com/tetratelabs/treeir/internal/graph"
	"github.com/tetratelabs/treeir/internal/moduleenv"
)

// Terminator selects which control-flow shape a materialized trap block
// ends in (spec.md §9's open question; see DESIGN.md decision 1). Both are
// implemented; a build picks exactly one, never both.
type Terminator byte

const (
	// TerminatorReturn ends every trap block in a Return, sentinel-valued
	// so a caller can distinguish a trapped result from a real one. This
	// matches what the original actually executes (its Throw path is dead
	// code behind an `if (false)`).
	TerminatorReturn Terminator = iota
	// TerminatorThrow ends every trap block in a call to a runtime throw
	// helper, followed by a void Return that connects the block to End,
	// instead of the sentinel Return, for embedders that want a hard
	// exception rather than a sentinel return value.
	TerminatorThrow
)

// site is one materialized trap block: the Merge that gathers every branch
// that triggered this reason, and the EffectPhi that gathers their effect
// chains.
type site struct {
	merge     *graph.Node
	effectPhi *graph.Node
}

// Cache is the per-function-build trap helper. The decoder creates exactly
// one Cache per function decode and shares it across every Binop/Unop/
// LoadMem/StoreMem/CallIndirect call that can trap.
type Cache struct {
	b           *graph.Builder
	terminator  Terminator
	throwTarget any
	module      moduleenv.Environment

	sites map[graph.TrapReason]*site
}

// NewCache creates an empty trap cache bound to b. throwTarget is an opaque
// code handle used only when terminator is TerminatorThrow; it is ignored
// otherwise. module supplies the Throw terminator's call-descriptor context
// (spec.md §4.4); it may be nil or report no context (a pure-verification
// build), in which case a trap block picked as TerminatorThrow falls back to
// the same sentinel Return TerminatorReturn uses, since a call descriptor
// with no context to bind can't be constructed.
func NewCache(b *graph.Builder, terminator Terminator, throwTarget any, module moduleenv.Environment) *Cache {
	return &Cache{b: b, terminator: terminator, throwTarget: throwTarget, module: module, sites: map[graph.TrapReason]*site{}}
}

// TrapIf implements graph.TrapInserter. cond is evaluated at the builder's
// current control; the branch side matching iftrueMeansTrap is routed into
// the shared per-reason trap block (materializing it on first use, widening
// it thereafter), and the other side becomes the builder's new current
// control, with effect left unchanged — the check itself has no side
// effect of its own (spec.md §4.4).
func (c *Cache) TrapIf(reason graph.TrapReason, cond *graph.Node, iftrueMeansTrap bool) {
	ifTrue, ifFalse := c.b.Branch(cond)
	trapEdge, continueEdge := ifTrue, ifFalse
	if !iftrueMeansTrap {
		trapEdge, continueEdge = ifFalse, ifTrue
	}

	trappedEffect := c.b.Effect
	s, ok := c.sites[reason]
	if !ok {
		s = c.buildTrapSite(reason, trapEdge, trappedEffect)
		c.sites[reason] = s
	} else {
		c.b.AppendToMerge(s.merge, trapEdge)
		c.b.AppendToPhi(s.effectPhi, trappedEffect)
	}

	c.b.Control = continueEdge
}

// buildTrapSite constructs the first branch of a trap reason's shared
// block: a one-input Merge and EffectPhi that later TrapIf calls widen, plus
// the terminator (Return sentinel or Throw call), connected to the graph's
// End the same way any other function exit is (tf-builder.cc's
// ConnectTrap/BuildTrapCode).
func (c *Cache) buildTrapSite(reason graph.TrapReason, trapEdge *graph.Node, trapEffect *graph.Node) *site {
	merge := c.b.Merge(trapEdge)
	effectPhi := c.b.EffectPhi(merge, trapEffect)

	savedControl, savedEffect := c.b.Control, c.b.Effect
	c.b.Control, c.b.Effect = merge, effectPhi

	switch {
	case c.terminator == TerminatorThrow && c.module != nil && c.module.HasContext():
		context := c.b.ModuleContext(c.module.ContextConstant())
		c.b.CallDirect(c.throwTarget, context, []*graph.Node{c.b.ConstantString(reason.String())}, nil)
		c.b.ReturnVoid()
	default:
		// Covers TerminatorReturn, and TerminatorThrow with no module
		// context to build a call descriptor from (a pure-verification
		// build): the sentinel value distinguishes a trapped exit from a
		// real return value at the caller boundary, and it's the only
		// well-formed fallback when Throw has no context to call through.
		c.b.Return(c.b.ConstantI32(sentinelTrapValue))
	}

	c.b.Control, c.b.Effect = savedControl, savedEffect
	return &site{merge: merge, effectPhi: effectPhi}
}

// sentinelTrapValue is the original's 0xdeadbeef marker (tf-builder.cc:249),
// reinterpreted as a signed 32-bit value.
const sentinelTrapValue = int32(-559038737) // 0xdeadbeef
