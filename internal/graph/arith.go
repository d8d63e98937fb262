package graph

import (
	"fmt"
	"math"

	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/opcode"
)

// resultType resolves an opcode's result type from
// the opcode table, since Binop/Unop is the one place graph does consult
// the table directly (spec.md §2: "except for operator selection inside
// its Binop/Unop entry points").
func resultType(op opcode.Opcode) api.PrimitiveType {
	info, ok := opcode.Lookup(op)
	if !ok {
		panic(fmt.Sprintf("graph: unknown opcode %d passed to Binop/Unop", op))
	}
	return info.Out
}

// Binop is the central dispatch for two-operand operators (spec.md §4.3).
// traps is nil for opcodes that can never trap; Binop panics (an
// InternalError-class builder contract violation, per spec.md §7) if a
// trapping opcode is used without one.
func (b *Builder) Binop(op opcode.Opcode, l, r *Node, traps TrapInserter) *Node {
	switch op {
	case opcode.I32Add:
		return b.binary(op, l, r, api.PrimitiveI32)
	case opcode.I32Sub, opcode.I32Mul, opcode.I32And, opcode.I32Ior, opcode.I32Xor,
		opcode.I32Shl, opcode.I32ShrU, opcode.I32ShrS,
		opcode.I32Eq, opcode.I32LtS, opcode.I32LeS, opcode.I32LtU, opcode.I32LeU,
		opcode.I32GtS, opcode.I32GeS, opcode.I32GtU, opcode.I32GeU:
		return b.binary(op, l, r, resultType(op))
	case opcode.I32Ne:
		return b.Unop(opcode.BoolNot, b.Binop(opcode.I32Eq, l, r, traps))

	case opcode.I32DivS:
		return b.signedDiv(op, l, r, traps, false)
	case opcode.I32DivU:
		b.requireTraps(traps)
		traps.TrapIf(TrapDivByZero, b.binary(opcode.I32Eq, r, b.ConstantI32(0), api.PrimitiveI32), true)
		return b.binary(op, l, r, api.PrimitiveI32)
	case opcode.I32RemS:
		return b.signedRem(op, l, r, traps, false)
	case opcode.I32RemU:
		b.requireTraps(traps)
		traps.TrapIf(TrapRemByZero, b.binary(opcode.I32Eq, r, b.ConstantI32(0), api.PrimitiveI32), true)
		return b.binary(op, l, r, api.PrimitiveI32)

	case opcode.I64Add, opcode.I64Sub, opcode.I64Mul, opcode.I64And, opcode.I64Ior, opcode.I64Xor,
		opcode.I64Shl, opcode.I64ShrU, opcode.I64ShrS,
		opcode.I64Eq, opcode.I64LtS, opcode.I64LeS, opcode.I64LtU, opcode.I64LeU,
		opcode.I64GtS, opcode.I64GeS, opcode.I64GtU, opcode.I64GeU:
		return b.binary(op, l, r, resultType(op))
	case opcode.I64Ne:
		return b.Unop(opcode.BoolNot, b.Binop(opcode.I64Eq, l, r, traps))
	case opcode.I64DivS:
		return b.signedDiv(op, l, r, traps, true)
	case opcode.I64DivU:
		b.requireTraps(traps)
		traps.TrapIf(TrapDivByZero, b.binary(opcode.I64Eq, r, b.ConstantI64(0), api.PrimitiveI32), true)
		return b.binary(op, l, r, api.PrimitiveI64)
	case opcode.I64RemS:
		return b.signedRem(op, l, r, traps, true)
	case opcode.I64RemU:
		b.requireTraps(traps)
		traps.TrapIf(TrapRemByZero, b.binary(opcode.I64Eq, r, b.ConstantI64(0), api.PrimitiveI32), true)
		return b.binary(op, l, r, api.PrimitiveI64)

	case opcode.F32CopySign:
		return b.copySign32(l, r)
	case opcode.F64CopySign:
		return b.copySign64(l, r)
	case opcode.F32Ne:
		return b.Unop(opcode.BoolNot, b.Binop(opcode.F32Eq, l, r, traps))
	case opcode.F64Ne:
		return b.Unop(opcode.BoolNot, b.Binop(opcode.F64Eq, l, r, traps))
	case opcode.F32Add, opcode.F32Sub, opcode.F32Mul, opcode.F32Div,
		opcode.F32Eq, opcode.F32Lt, opcode.F32Le, opcode.F32Gt, opcode.F32Ge:
		return b.binary(op, l, r, resultType(op))
	case opcode.F64Add, opcode.F64Sub, opcode.F64Mul, opcode.F64Div,
		opcode.F64Eq, opcode.F64Lt, opcode.F64Le, opcode.F64Gt, opcode.F64Ge:
		return b.binary(op, l, r, resultType(op))
	case opcode.F32Min, opcode.F32Max:
		if !b.caps.HasFloatMinMax {
			panic(fmt.Sprintf("graph: %s has no lowering on this target (SPEC_FULL.md §4)", opcode.MnemonicOrUnknown(op)))
		}
		return b.binary(op, l, r, api.PrimitiveF32)
	case opcode.F64Min, opcode.F64Max:
		if !b.caps.HasFloatMinMax {
			panic(fmt.Sprintf("graph: %s has no lowering on this target (SPEC_FULL.md §4)", opcode.MnemonicOrUnknown(op)))
		}
		return b.binary(op, l, r, api.PrimitiveF64)
	default:
		panic(fmt.Sprintf("graph: Binop given non-binary opcode %s", opcode.MnemonicOrUnknown(op)))
	}
}

func (b *Builder) requireTraps(traps TrapInserter) {
	if traps == nil {
		panic("graph: trapping binop invoked with a nil TrapInserter (InternalError)")
	}
}

func (b *Builder) binary(op opcode.Opcode, l, r *Node, t api.PrimitiveType) *Node {
	n := b.Graph.newNode(OpBinary, l, r)
	n.Sub = op
	n.Type = t
	return n
}

// signedDiv implements tf-builder.cc's kExprI32DivS/kExprI64DivS: a
// zero-divisor trap, then — on the path where the divisor is exactly -1 —
// an INT_MIN/-1 trap, merged back with the common path before the divide.
func (b *Builder) signedDiv(op opcode.Opcode, l, r *Node, traps TrapInserter, is64 bool) *Node {
	b.requireTraps(traps)
	zeroOp, eqOp, minVal, ty := opcode.I32Eq, opcode.I32Eq, int64(math.MinInt32), api.PrimitiveI32
	zero := b.ConstantI32(0)
	negOne := b.ConstantI32(-1)
	if is64 {
		zeroOp, eqOp, minVal, ty = opcode.I64Eq, opcode.I64Eq, math.MinInt64, api.PrimitiveI64
		zero = b.ConstantI64(0)
		negOne = b.ConstantI64(-1)
	}
	traps.TrapIf(TrapDivByZero, b.binary(zeroOp, r, zero, api.PrimitiveI32), true)

	ifM1, ifNotM1 := b.Branch(b.binary(eqOp, r, negOne, api.PrimitiveI32))

	b.Control = ifM1
	var minConst *Node
	if is64 {
		minConst = b.ConstantI64(minVal)
	} else {
		minConst = b.ConstantI32(int32(minVal))
	}
	traps.TrapIf(TrapDivUnrepresentable, b.binary(eqOp, l, minConst, api.PrimitiveI32), true)

	// TrapIf always leaves b.Control as the surviving (non-trapping)
	// continuation of the -1 branch; join it back with the common path.
	b.Control = b.Merge(ifNotM1, b.Control)
	return b.binary(op, l, r, ty)
}

// signedRem implements the original's remainder-by-(-1)-is-zero
// short-circuit: signed remainder of anything by -1 never divides.
func (b *Builder) signedRem(op opcode.Opcode, l, r *Node, traps TrapInserter, is64 bool) *Node {
	b.requireTraps(traps)
	zeroOp, eqOp, ty := opcode.I32Eq, opcode.I32Eq, api.PrimitiveI32
	zero, negOne, zeroResult := b.ConstantI32(0), b.ConstantI32(-1), b.ConstantI32(0)
	if is64 {
		zeroOp, eqOp, ty = opcode.I64Eq, opcode.I64Eq, api.PrimitiveI64
		zero, negOne, zeroResult = b.ConstantI64(0), b.ConstantI64(-1), b.ConstantI64(0)
	}
	traps.TrapIf(TrapRemByZero, b.binary(zeroOp, r, zero, api.PrimitiveI32), true)

	isM1 := b.binary(eqOp, r, negOne, api.PrimitiveI32)
	ifM1, ifNotM1 := b.Branch(isM1)

	remControl := ifNotM1
	saved := b.Control
	b.Control = remControl
	rem := b.binary(op, l, r, ty)
	b.Control = saved

	merge := b.Merge(ifM1, ifNotM1)
	return b.Phi(ty, merge, zeroResult, rem)
}

// Unop is the central dispatch for one-operand operators (spec.md §4.3).
func (b *Builder) Unop(op opcode.Opcode, x *Node) *Node {
	switch op {
	case opcode.BoolNot:
		return b.binary(opcode.I32Eq, x, b.ConstantI32(0), api.PrimitiveI32)
	case opcode.F32Neg:
		return b.binary(opcode.F32Sub, b.ConstantF32(0), x, api.PrimitiveF32)
	case opcode.F64Neg:
		return b.binary(opcode.F64Sub, b.ConstantF64(0), x, api.PrimitiveF64)
	case opcode.I32Ctz:
		if b.caps.HasCountTrailingZeros {
			return b.unary(op, x, api.PrimitiveI32)
		}
		return b.lowerCtz32(x)
	case opcode.I64Ctz:
		if b.caps.HasCountTrailingZeros && b.caps.Has64BitOps {
			return b.unary(op, x, api.PrimitiveI64)
		}
		return b.lowerCtz64(x)
	case opcode.I32Popcnt:
		if b.caps.HasPopCount {
			return b.unary(op, x, api.PrimitiveI32)
		}
		return b.lowerPopcnt32(x)
	case opcode.I64Popcnt:
		if b.caps.HasPopCount && b.caps.Has64BitOps {
			return b.unary(op, x, api.PrimitiveI64)
		}
		return b.lowerPopcnt64(x)
	case opcode.I32Clz:
		if !b.caps.HasCountLeadingZeros {
			panic(fmt.Sprintf("graph: %s has no lowering on this target", opcode.MnemonicOrUnknown(op)))
		}
		return b.unary(op, x, api.PrimitiveI32)
	case opcode.I64Clz:
		if !b.caps.HasCountLeadingZeros || !b.caps.Has64BitOps {
			panic(fmt.Sprintf("graph: %s has no lowering on this target", opcode.MnemonicOrUnknown(op)))
		}
		return b.unary(op, x, api.PrimitiveI64)
	case opcode.F32Floor, opcode.F32Ceil, opcode.F32Trunc, opcode.F32NearestInt:
		if !b.caps.HasRoundingModes {
			panic(fmt.Sprintf("graph: %s has no lowering on this target", opcode.MnemonicOrUnknown(op)))
		}
		return b.unary(op, x, api.PrimitiveF32)
	case opcode.F64Floor, opcode.F64Ceil, opcode.F64Trunc, opcode.F64NearestInt:
		if !b.caps.HasRoundingModes {
			panic(fmt.Sprintf("graph: %s has no lowering on this target", opcode.MnemonicOrUnknown(op)))
		}
		return b.unary(op, x, api.PrimitiveF64)
	default:
		info, ok := opcode.Lookup(op)
		if !ok {
			panic(fmt.Sprintf("graph: Unop given unknown opcode %d", op))
		}
		return b.unary(op, x, info.Out)
	}
}

func (b *Builder) unary(op opcode.Opcode, x *Node, t api.PrimitiveType) *Node {
	n := b.Graph.newNode(OpUnary, x)
	n.Sub = op
	n.Type = t
	return n
}

// copySign32/64 compose bit-level copysign from and/or/reinterpret, exactly
// as tf-builder.cc's MakeF32CopySign/MakeF64CopySign do (SPEC_FULL.md §4).
func (b *Builder) copySign32(left, right *Node) *Node {
	l := b.unary(opcode.I32ReinterpretF32, left, api.PrimitiveI32)
	r := b.unary(opcode.I32ReinterpretF32, right, api.PrimitiveI32)
	magnitude := b.binary(opcode.I32And, l, b.ConstantI32(0x7fffffff), api.PrimitiveI32)
	sign := b.binary(opcode.I32And, r, b.ConstantI32(-0x80000000), api.PrimitiveI32)
	combined := b.binary(opcode.I32Ior, magnitude, sign, api.PrimitiveI32)
	return b.unary(opcode.F32ReinterpretI32, combined, api.PrimitiveF32)
}

func (b *Builder) copySign64(left, right *Node) *Node {
	if !b.caps.Has64BitOps {
		panic("graph: f64.copysign lowering without 64-bit bitops is not implemented")
	}
	l := b.unary(opcode.I64ReinterpretF64, left, api.PrimitiveI64)
	r := b.unary(opcode.I64ReinterpretF64, right, api.PrimitiveI64)
	magnitude := b.binary(opcode.I64And, l, b.ConstantI64(0x7fffffffffffffff), api.PrimitiveI64)
	sign := b.binary(opcode.I64And, r, b.ConstantI64(int64(-0x8000000000000000)), api.PrimitiveI64)
	combined := b.binary(opcode.I64Ior, magnitude, sign, api.PrimitiveI64)
	return b.unary(opcode.F64ReinterpretI64, combined, api.PrimitiveF64)
}

// lowerCtz32/64 implement the bit-smear-then-popcount template from
// tf-builder.cc's MakeI32Ctz/MakeI64Ctz (SPEC_FULL.md §4).
func (b *Builder) lowerCtz32(x *Node) *Node {
	result := x
	for _, shift := range []int32{1, 2, 4, 8, 16} {
		shifted := b.binary(opcode.I32Shl, result, b.ConstantI32(shift), api.PrimitiveI32)
		result = b.binary(opcode.I32Ior, result, shifted, api.PrimitiveI32)
	}
	inverted := b.binary(opcode.I32Xor, b.ConstantI32(-1), result, api.PrimitiveI32)
	return b.lowerPopcnt32(inverted)
}

func (b *Builder) lowerCtz64(x *Node) *Node {
	result := x
	for _, shift := range []int64{1, 2, 4, 8, 16, 32} {
		shifted := b.binary(opcode.I64Shl, result, b.ConstantI64(shift), api.PrimitiveI64)
		result = b.binary(opcode.I64Ior, result, shifted, api.PrimitiveI64)
	}
	inverted := b.binary(opcode.I64Xor, b.ConstantI64(-1), result, api.PrimitiveI64)
	return b.lowerPopcnt64(inverted)
}

// lowerPopcnt32/64 implement the standard SWAR popcount template from
// tf-builder.cc's MakeI32Popcnt/MakeI64Popcnt.
func (b *Builder) lowerPopcnt32(x *Node) *Node {
	masks := []int32{0x55555555, 0x33333333, 0x0f0f0f0f, 0x00ff00ff, 0x0000ffff}
	shifts := []int32{1, 2, 4, 8, 16}
	result := x
	for i, mask := range masks {
		m := b.ConstantI32(mask)
		shifted := b.binary(opcode.I32ShrU, result, b.ConstantI32(shifts[i]), api.PrimitiveI32)
		left := b.binary(opcode.I32And, shifted, m, api.PrimitiveI32)
		right := b.binary(opcode.I32And, result, m, api.PrimitiveI32)
		result = b.binary(opcode.I32Add, left, right, api.PrimitiveI32)
	}
	return result
}

func (b *Builder) lowerPopcnt64(x *Node) *Node {
	masks := []int64{0x5555555555555555, 0x3333333333333333, 0x0f0f0f0f0f0f0f0f,
		0x00ff00ff00ff00ff, 0x0000ffff0000ffff, 0x00000000ffffffff}
	shifts := []int64{1, 2, 4, 8, 16, 32}
	result := x
	for i, mask := range masks {
		m := b.ConstantI64(mask)
		shifted := b.binary(opcode.I64ShrU, result, b.ConstantI64(shifts[i]), api.PrimitiveI64)
		left := b.binary(opcode.I64And, shifted, m, api.PrimitiveI64)
		right := b.binary(opcode.I64And, result, m, api.PrimitiveI64)
		result = b.binary(opcode.I64Add, left, right, api.PrimitiveI64)
	}
	return result
}
