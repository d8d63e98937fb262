package decoder

import (
	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/diagnostic"
	"github.com/tetratelabs/treeir/internal/opcode"
)

// decodeStatement reads and verifies one statement production, driving the
// builder for its control/effect shape (spec.md §4.2's per-production
// protocol). It always advances the cursor by exactly the production's
// length, even once d.unreachable is already true, so sibling and
// enclosing productions stay byte-aligned regardless of reachability.
func (d *Decoder) decodeStatement() error {
	op, pc, err := d.readByte()
	if err != nil {
		return err
	}

	switch opcode.Opcode(op) {
	case opcode.Nop:
		return nil
	case opcode.Block:
		return d.decodeBlock(pc)
	case opcode.If:
		return d.decodeIf(false)
	case opcode.IfElse:
		return d.decodeIf(true)
	case opcode.While:
		return d.decodeWhile()
	case opcode.InfiniteLoop:
		return d.decodeInfiniteLoop()
	case opcode.Break:
		return d.decodeBreak(pc)
	case opcode.Return:
		return d.decodeReturn(pc)
	case opcode.Switch:
		return d.decodeSwitch(true, pc)
	case opcode.SwitchNoFallthrough:
		return d.decodeSwitch(false, pc)
	case opcode.SetLocal:
		return d.decodeSetLocal()
	}

	if memType, ok := memTypeFromStoreByte(op); ok {
		return d.decodeStoreStatement(pc, memType, memType.ValueType())
	}
	if memType, ok := memTypeFromStoreWideByte(op); ok {
		if !d.caps.Has64BitOps {
			return diagnostic.New(diagnostic.UnsupportedOpcode, pc, "wide %s is not supported on this target", memType)
		}
		return d.decodeStoreStatement(pc, memType, api.PrimitiveI64)
	}
	if op == setGlobalOpcode {
		return d.decodeSetGlobal()
	}

	// Any other opcode used at statement position is an expression
	// evaluated for effect only, its value discarded — a value-producing
	// production is always legal as a bare statement (spec.md's Kind
	// table draws the expression/statement line at the opcode, not at
	// the position it appears in).
	_, _, err = d.decodeExpressionBody(op, pc)
	return err
}

// decodeBlock decodes `block N { stmt* }` (spec.md §4.2's variadic block
// production): N statement children, with its own block context so a
// `break` inside can target "the code after this block." pc is the block
// opcode's own offset, attached as any child failure's secondary token
// (spec.md §4.5).
func (d *Decoder) decodeBlock(pc uint32) error {
	n, _, err := d.readByte()
	if err != nil {
		return err
	}
	ctx := d.pushBlock(blockKindBlock)
	for i := 0; i < int(n); i++ {
		if err := d.decodeStatement(); err != nil {
			d.popBlock()
			return wrapSecondary(err, pc)
		}
	}
	if ctx.exitMerge != nil {
		if !d.unreachable {
			d.branchToExit(ctx, d.b.Control, d.b.Effect)
		}
		d.b.Control, d.b.Effect = ctx.exitMerge, ctx.exitEffectPhi
		d.unreachable = false
	}
	d.popBlock()
	return nil
}

// decodeIf decodes `if(cond) then` or `if_else(cond) then else` (spec.md
// §4.2/§4.3). A bare `if`'s not-taken branch joins the pre-if state with
// no statement of its own, the explicit tie-break for the missing else.
func (d *Decoder) decodeIf(hasElse bool) error {
	cond, err := d.decodeExpression(api.PrimitiveI32)
	if err != nil {
		return err
	}
	ifTrue, ifFalse := d.b.Branch(cond)
	preEffect := d.b.Effect

	d.b.Control, d.b.Effect = ifTrue, preEffect
	d.unreachable = false
	if err := d.decodeStatement(); err != nil {
		return err
	}
	thenControl, thenEffect, thenDead := d.b.Control, d.b.Effect, d.unreachable

	elseControl, elseEffect, elseDead := ifFalse, preEffect, false
	if hasElse {
		d.b.Control, d.b.Effect = ifFalse, preEffect
		d.unreachable = false
		if err := d.decodeStatement(); err != nil {
			return err
		}
		elseControl, elseEffect, elseDead = d.b.Control, d.b.Effect, d.unreachable
	}

	switch {
	case thenDead && elseDead:
		d.unreachable = true
	case thenDead:
		d.b.Control, d.b.Effect = elseControl, elseEffect
		d.unreachable = false
	case elseDead:
		d.b.Control, d.b.Effect = thenControl, thenEffect
		d.unreachable = false
	default:
		merge := d.b.Merge(thenControl, elseControl)
		d.b.Control = merge
		d.b.Effect = d.b.EffectPhi(merge, thenEffect, elseEffect)
		d.unreachable = false
	}
	return nil
}

// decodeWhile decodes `while(cond) body`, desugared to `loop { if !cond
// break; body; }` per spec.md §4.2's explicit tie-break for while.
func (d *Decoder) decodeWhile() error {
	entryControl, entryEffect := d.b.Control, d.b.Effect
	loop := d.b.Loop(entryControl)
	effectPhi := d.b.EffectPhi(loop, entryEffect)
	d.b.Control, d.b.Effect = loop, effectPhi

	cond, err := d.decodeExpression(api.PrimitiveI32)
	if err != nil {
		return err
	}
	notCond := d.b.Unop(opcode.BoolNot, cond)
	ifExit, ifContinue := d.b.Branch(notCond)

	ctx := d.pushBlock(blockKindLoop)
	d.branchToExit(ctx, ifExit, d.b.Effect)

	d.b.Control, d.b.Effect = ifContinue, d.b.Effect
	d.unreachable = false
	if err := d.decodeStatement(); err != nil {
		d.popBlock()
		return err
	}
	if !d.unreachable {
		d.b.AppendToMerge(loop, d.b.Control)
		d.b.AppendToPhi(effectPhi, d.b.Effect)
	}
	d.popBlock()

	// The false-condition exit is unconditional, so control always
	// resumes here regardless of how the body's own reachability came
	// out.
	d.b.Control, d.b.Effect = ctx.exitMerge, ctx.exitEffectPhi
	d.unreachable = false
	return nil
}

// decodeInfiniteLoop decodes `loop N { stmt* }` with no implicit condition
// (spec.md §4.2): if the body never breaks, the loop's successor is the
// unreachable terminate node.
func (d *Decoder) decodeInfiniteLoop() error {
	n, _, err := d.readByte()
	if err != nil {
		return err
	}
	entryControl, entryEffect := d.b.Control, d.b.Effect
	loop := d.b.Loop(entryControl)
	effectPhi := d.b.EffectPhi(loop, entryEffect)
	d.b.Control, d.b.Effect = loop, effectPhi

	ctx := d.pushBlock(blockKindLoop)
	for i := 0; i < int(n); i++ {
		if err := d.decodeStatement(); err != nil {
			d.popBlock()
			return err
		}
	}
	if !d.unreachable {
		d.b.AppendToMerge(loop, d.b.Control)
		d.b.AppendToPhi(effectPhi, d.b.Effect)
	}
	d.popBlock()

	if ctx.exitMerge != nil {
		d.b.Control, d.b.Effect = ctx.exitMerge, ctx.exitEffectPhi
		d.unreachable = false
	} else {
		d.b.Unreachable()
		d.unreachable = true
	}
	return nil
}

// decodeBreak resolves `break K` against the K-th enclosing pushed block
// context (0 = innermost), failing BreakDepth if none exists.
func (d *Decoder) decodeBreak(pc uint32) error {
	k, _, err := d.readByte()
	if err != nil {
		return err
	}
	idx := len(d.blocks) - 1 - int(k)
	if idx < 0 {
		return diagnostic.New(diagnostic.BreakDepth, pc, "break %d has no enclosing block at that depth", k)
	}
	d.branchToExit(d.blocks[idx], d.b.Control, d.b.Effect)
	d.unreachable = true
	return nil
}

// decodeReturn decodes `return` or `return(expr)` (spec.md §4.3). pc is the
// return opcode's own offset, the production's start for the arity check
// below (spec.md §4.5's pt).
func (d *Decoder) decodeReturn(pc uint32) error {
	n, countPC, err := d.readByte()
	if err != nil {
		return err
	}
	switch n {
	case 0:
		d.b.ReturnVoid()
	case 1:
		want := d.env.Signature.ReturnType()
		v, err := d.decodeExpression(want)
		if err != nil {
			return wrapSecondary(err, pc)
		}
		d.b.Return(v)
	default:
		return diagnostic.New(diagnostic.ArityMismatch, countPC, "return takes 0 or 1 values, got %d", n).WithSecondary(pc)
	}
	d.unreachable = true
	return nil
}

// decodeSetLocal decodes `set_local i, value` (spec.md §4.2's local access
// check: i < total_locals).
func (d *Decoder) decodeSetLocal() error {
	idx, idxPC, err := d.readByte()
	if err != nil {
		return err
	}
	t, ok := d.env.LocalType(uint32(idx))
	if !ok {
		return diagnostic.New(diagnostic.LocalIndexOutOfBounds, idxPC, "local index %d out of bounds", idx)
	}
	v, err := d.decodeExpression(t)
	if err != nil {
		return err
	}
	d.b.SetLocal(uint32(idx), v)
	return nil
}

// decodeSetGlobal decodes `set_global i, value` against the module
// environment's globals area.
func (d *Decoder) decodeSetGlobal() error {
	idx, idxPC, err := d.readByte()
	if err != nil {
		return err
	}
	if d.env.Module == nil {
		return diagnostic.New(diagnostic.GlobalIndexOutOfBounds, idxPC, "global index %d out of bounds (no module environment)", idx)
	}
	g, ok := d.env.Module.Global(uint32(idx))
	if !ok {
		return diagnostic.New(diagnostic.GlobalIndexOutOfBounds, idxPC, "global index %d out of bounds", idx)
	}
	v, err := d.decodeExpression(g.Type.ValueType())
	if err != nil {
		return err
	}
	d.b.StoreGlobal(uint32(idx), g.Offset, g.Type, v, d.env.Module.GlobalsAreaBase())
	return nil
}

// decodeStoreStatement decodes a `store.<type> offset, index, value`
// production (spec.md §4.3's heap-access write path). sourceType is the
// value's own decoded type: ordinarily memType.ValueType(), but the
// wide-store wire opcodes decode value as api.PrimitiveI64 out of a
// sub-8-byte memType, which triggers graph.Builder.StoreMem's truncation.
func (d *Decoder) decodeStoreStatement(pc uint32, memType api.MemType, sourceType api.PrimitiveType) error {
	if d.env.Module == nil || !d.env.Module.HasMemory() {
		return diagnostic.New(diagnostic.NoMemory, pc, "%s used with no attached linear memory", memType)
	}
	offset, err := d.readU32()
	if err != nil {
		return err
	}
	index, err := d.decodeExpression(api.PrimitiveI32)
	if err != nil {
		return err
	}
	value, err := d.decodeExpression(sourceType)
	if err != nil {
		return err
	}
	start, end := d.env.Module.MemoryRange()
	d.b.StoreMem(memType, sourceType, index, value, offset, uint32(end-start), start, d.env.Module.AsmJS(), d.traps)
	return nil
}
