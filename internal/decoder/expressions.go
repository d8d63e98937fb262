package decoder

import (
	"encoding/binary"
	"math"

	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/diagnostic"
	"github.com/tetratelabs/treeir/internal/graph"
	"github.com/tetratelabs/treeir/internal/opcode"
)

// decodeExpression reads one expression production and verifies its result
// type against expected (spec.md §4.2's per-child type check).
func (d *Decoder) decodeExpression(expected api.PrimitiveType) (*graph.Node, error) {
	op, pc, err := d.readByte()
	if err != nil {
		return nil, err
	}
	n, actual, err := d.decodeExpressionBody(op, pc)
	if err != nil {
		return nil, err
	}
	if err := d.checkType(pc, expected, actual); err != nil {
		return nil, err
	}
	return n, nil
}

// decodeExpressionBody dispatches on an already-read opcode byte, returning
// the built value node and its actual type without checking it against any
// caller expectation — decodeExpression does that; decodeStatement's
// expression-as-statement fallback deliberately skips it.
func (d *Decoder) decodeExpressionBody(op byte, pc uint32) (*graph.Node, api.PrimitiveType, error) {
	switch opcode.Opcode(op) {
	case opcode.I8Const:
		buf, _, err := d.readN(1)
		if err != nil {
			return nil, 0, err
		}
		return d.b.ConstantI32(int32(int8(buf[0]))), api.PrimitiveI32, nil
	case opcode.I32Const:
		v, err := d.readU32()
		if err != nil {
			return nil, 0, err
		}
		return d.b.ConstantI32(int32(v)), api.PrimitiveI32, nil
	case opcode.I64Const:
		buf, _, err := d.readN(8)
		if err != nil {
			return nil, 0, err
		}
		return d.b.ConstantI64(int64(binary.LittleEndian.Uint64(buf))), api.PrimitiveI64, nil
	case opcode.F32Const:
		v, err := d.readU32()
		if err != nil {
			return nil, 0, err
		}
		return d.b.ConstantF32(math.Float32frombits(v)), api.PrimitiveF32, nil
	case opcode.F64Const:
		buf, _, err := d.readN(8)
		if err != nil {
			return nil, 0, err
		}
		return d.b.ConstantF64(math.Float64frombits(binary.LittleEndian.Uint64(buf))), api.PrimitiveF64, nil
	case opcode.GetLocal:
		return d.decodeGetLocal()
	case opcode.Ternary:
		return d.decodeTernary()
	case opcode.Comma:
		return d.decodeComma()
	case opcode.CallDirect:
		return d.decodeCallDirect(pc)
	case opcode.CallIndirect:
		return d.decodeCallIndirect(pc)
	}

	if op == getGlobalOpcode {
		return d.decodeGetGlobal()
	}
	if memType, ok := memTypeFromLoadByte(op); ok {
		return d.decodeLoadExpression(pc, memType, memType.ValueType())
	}
	if memType, ok := memTypeFromLoadWideByte(op); ok {
		if !d.caps.Has64BitOps {
			return nil, 0, diagnostic.New(diagnostic.UnsupportedOpcode, pc, "wide %s is not supported on this target", memType)
		}
		return d.decodeLoadExpression(pc, memType, api.PrimitiveI64)
	}

	info, ok := opcode.Lookup(opcode.Opcode(op))
	if !ok {
		return nil, 0, diagnostic.New(diagnostic.UnknownOpcode, pc, "unknown opcode 0x%02x", op)
	}
	if !info.SupportedOn(d.caps) {
		return nil, 0, diagnostic.New(diagnostic.UnsupportedOpcode, pc, "%s is not supported on this target", info.Mnemonic)
	}
	switch info.ChildCount() {
	case 1:
		x, err := d.decodeExpression(info.In[0])
		if err != nil {
			return nil, 0, err
		}
		return d.b.Unop(opcode.Opcode(op), x), info.Out, nil
	case 2:
		l, err := d.decodeExpression(info.In[0])
		if err != nil {
			return nil, 0, err
		}
		r, err := d.decodeExpression(info.In[1])
		if err != nil {
			return nil, 0, err
		}
		return d.b.Binop(opcode.Opcode(op), l, r, d.trapsFor(opcode.Opcode(op))), info.Out, nil
	default:
		return nil, 0, diagnostic.New(diagnostic.InternalError, pc, "%s has unexpected arity in expression position", info.Mnemonic)
	}
}

// trapsFor reports which opcodes can trap, so only those are handed the
// decoder's shared trap inserter (graph.Builder.Binop panics if an opcode
// that can trap is invoked with a nil one, spec.md §7's InternalError
// class).
func (d *Decoder) trapsFor(op opcode.Opcode) graph.TrapInserter {
	switch op {
	case opcode.I32DivS, opcode.I32DivU, opcode.I32RemS, opcode.I32RemU,
		opcode.I64DivS, opcode.I64DivU, opcode.I64RemS, opcode.I64RemU:
		return d.traps
	default:
		return nil
	}
}

func (d *Decoder) decodeGetLocal() (*graph.Node, api.PrimitiveType, error) {
	idx, idxPC, err := d.readByte()
	if err != nil {
		return nil, 0, err
	}
	t, ok := d.env.LocalType(uint32(idx))
	if !ok {
		return nil, 0, diagnostic.New(diagnostic.LocalIndexOutOfBounds, idxPC, "local index %d out of bounds", idx)
	}
	return d.b.GetLocal(uint32(idx), t), t, nil
}

func (d *Decoder) decodeGetGlobal() (*graph.Node, api.PrimitiveType, error) {
	idx, idxPC, err := d.readByte()
	if err != nil {
		return nil, 0, err
	}
	if d.env.Module == nil {
		return nil, 0, diagnostic.New(diagnostic.GlobalIndexOutOfBounds, idxPC, "global index %d out of bounds (no module environment)", idx)
	}
	g, ok := d.env.Module.Global(uint32(idx))
	if !ok {
		return nil, 0, diagnostic.New(diagnostic.GlobalIndexOutOfBounds, idxPC, "global index %d out of bounds", idx)
	}
	return d.b.LoadGlobal(uint32(idx), g.Offset, g.Type, d.env.Module.GlobalsAreaBase()), g.Type.ValueType(), nil
}

// decodeTernary decodes `ternary(cond, then, else)`: both arms must agree
// on type, and the result is a value Phi at their Merge.
func (d *Decoder) decodeTernary() (*graph.Node, api.PrimitiveType, error) {
	cond, err := d.decodeExpression(api.PrimitiveI32)
	if err != nil {
		return nil, 0, err
	}
	ifTrue, ifFalse := d.b.Branch(cond)
	preEffect := d.b.Effect

	d.b.Control, d.b.Effect = ifTrue, preEffect
	thenOp, thenPC, err := d.readByte()
	if err != nil {
		return nil, 0, err
	}
	thenVal, thenType, err := d.decodeExpressionBody(thenOp, thenPC)
	if err != nil {
		return nil, 0, err
	}
	thenControl, thenEffect := d.b.Control, d.b.Effect

	d.b.Control, d.b.Effect = ifFalse, preEffect
	elseOp, elsePC, err := d.readByte()
	if err != nil {
		return nil, 0, err
	}
	elseVal, elseType, err := d.decodeExpressionBody(elseOp, elsePC)
	if err != nil {
		return nil, 0, err
	}
	elseControl, elseEffect := d.b.Control, d.b.Effect

	if err := d.checkType(elsePC, thenType, elseType); err != nil {
		return nil, 0, err
	}

	merge := d.b.Merge(thenControl, elseControl)
	d.b.Control = merge
	d.b.Effect = d.b.EffectPhi(merge, thenEffect, elseEffect)
	return d.b.Phi(thenType, merge, thenVal, elseVal), thenType, nil
}

// decodeComma decodes `comma(left, right)`: left is evaluated for effect
// only, right's value and type flow through as the result.
func (d *Decoder) decodeComma() (*graph.Node, api.PrimitiveType, error) {
	leftOp, leftPC, err := d.readByte()
	if err != nil {
		return nil, 0, err
	}
	if _, _, err := d.decodeExpressionBody(leftOp, leftPC); err != nil {
		return nil, 0, err
	}
	rightOp, rightPC, err := d.readByte()
	if err != nil {
		return nil, 0, err
	}
	return d.decodeExpressionBody(rightOp, rightPC)
}

// decodeCallDirect decodes `call fn, args...`: the argument count is
// implicit via the callee's signature (spec.md §4.1's note on CallDirect).
// pc is the call opcode's own offset, attached as any argument failure's
// secondary token (spec.md §4.5's "call argument count" case).
func (d *Decoder) decodeCallDirect(pc uint32) (*graph.Node, api.PrimitiveType, error) {
	idx, idxPC, err := d.readByte()
	if err != nil {
		return nil, 0, err
	}
	if d.env.Module == nil {
		return nil, 0, diagnostic.New(diagnostic.FunctionIndexOutOfBounds, idxPC, "function index %d out of bounds (no module environment)", idx)
	}
	sig, ok := d.env.Module.SignatureOf(uint32(idx))
	if !ok {
		return nil, 0, diagnostic.New(diagnostic.FunctionIndexOutOfBounds, idxPC, "function index %d out of bounds", idx)
	}
	args := make([]*graph.Node, len(sig.Params))
	for i, pt := range sig.Params {
		v, err := d.decodeExpression(pt)
		if err != nil {
			return nil, 0, wrapSecondary(err, pc)
		}
		args[i] = v
	}
	code, _ := d.env.Module.CodeOf(uint32(idx))
	n := d.b.CallDirect(code, nil, args, resultTypePtr(sig))
	return n, sig.ReturnType(), nil
}

// decodeCallIndirect decodes `call_indirect sigIndex, table_index_expr,
// args...`, preserving the original's bounds-then-signature check order
// (internal/graph.CallIndirect). pc is the call opcode's own offset,
// attached as any table-index or argument failure's secondary token
// (spec.md §4.5's "call argument count" case).
func (d *Decoder) decodeCallIndirect(pc uint32) (*graph.Node, api.PrimitiveType, error) {
	sigIdx, sigPC, err := d.readByte()
	if err != nil {
		return nil, 0, err
	}
	if d.env.Module == nil {
		return nil, 0, diagnostic.New(diagnostic.FunctionIndexOutOfBounds, sigPC, "signature index %d out of bounds (no module environment)", sigIdx)
	}
	sig, ok := d.env.Module.SignatureOfTableSlot(uint32(sigIdx))
	if !ok {
		return nil, 0, diagnostic.New(diagnostic.FunctionIndexOutOfBounds, sigPC, "signature index %d out of bounds", sigIdx)
	}
	tableIndex, err := d.decodeExpression(api.PrimitiveI32)
	if err != nil {
		return nil, 0, wrapSecondary(err, pc)
	}
	args := make([]*graph.Node, len(sig.Params))
	for i, pt := range sig.Params {
		v, err := d.decodeExpression(pt)
		if err != nil {
			return nil, 0, wrapSecondary(err, pc)
		}
		args[i] = v
	}
	n := d.b.CallIndirect(d.env.Module.FunctionTableSize(), tableIndex, d.b.ConstantI32(int32(sigIdx)), args, resultTypePtr(sig), d.traps)
	return n, sig.ReturnType(), nil
}

func resultTypePtr(sig *api.FunctionSignature) *api.PrimitiveType {
	if sig.Result == nil {
		return nil
	}
	t := *sig.Result
	return &t
}

// decodeLoadExpression decodes a `load.<type> offset, index` production
// (spec.md §4.3's heap-access read path). desired is the result type the
// caller wants: ordinarily memType.ValueType(), but the wide-load wire
// opcodes request api.PrimitiveI64 out of a sub-8-byte memType, which
// triggers graph.Builder.LoadMem's sign/zero extension.
func (d *Decoder) decodeLoadExpression(pc uint32, memType api.MemType, desired api.PrimitiveType) (*graph.Node, api.PrimitiveType, error) {
	if d.env.Module == nil || !d.env.Module.HasMemory() {
		return nil, 0, diagnostic.New(diagnostic.NoMemory, pc, "%s used with no attached linear memory", memType)
	}
	offset, err := d.readU32()
	if err != nil {
		return nil, 0, err
	}
	index, err := d.decodeExpression(api.PrimitiveI32)
	if err != nil {
		return nil, 0, err
	}
	start, end := d.env.Module.MemoryRange()
	n := d.b.LoadMem(memType, desired, index, offset, uint32(end-start), start, d.env.Module.AsmJS(), d.traps)
	return n, desired, nil
}
