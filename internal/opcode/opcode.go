// Package opcode holds the static catalog of every expression/statement
// opcode: spec.md §4.1's Opcode Table. It is pure data, shared read-only by
// the decoder and the graph builder; neither of those packages imports the
// other, but both import this one.
package opcode

import (
	"fmt"

	"github.com/tetratelabs/treeir/api"
)

// Opcode identifies one bytecode production. Loads and stores encode their
// api.MemType as part of the opcode identity (spec.md §6.1), so there is one
// Opcode value per (load-or-store, MemType) pair rather than a shared
// "LoadMem" byte plus a separate type immediate.
type Opcode byte

// Kind classifies whether a production is an expression (produces a value)
// or a statement (does not).
type Kind byte

const (
	KindExpression Kind = iota
	KindStatement
)

// arity describes how many, and what kind of, children a production reads.
// A negative FixedChildren means "variadic, see immediate byte(s)".
type arity struct {
	// FixedChildren is the number of children for non-variadic productions,
	// or -1 for productions whose child count is read from an immediate.
	FixedChildren int
}

var fixed = func(n int) arity { return arity{FixedChildren: n} }
var variadic = arity{FixedChildren: -1}

// Capabilities models the host-CPU/target predicate spec.md §4.1 requires:
// "the predicate depends on pointer-width and host CPU capabilities."
type Capabilities struct {
	Has64BitOps          bool
	HasCountLeadingZeros bool
	HasCountTrailingZeros bool
	HasPopCount          bool
	HasRoundingModes     bool
	HasFloatMinMax       bool
}

// FullCapabilities is every capability turned on, used by tests and by
// targets that need no lowering at all.
var FullCapabilities = Capabilities{true, true, true, true, true, true}

// NoExtraCapabilities is a 32-bit target with none of the optional
// instruction-set extensions: every opcode with a lowering (§4.3) uses it.
var NoExtraCapabilities = Capabilities{}

// Info is one Opcode Table entry.
type Info struct {
	Opcode   Opcode
	Mnemonic string
	Kind     Kind
	arity    arity
	// In/Out describe a fixed, non-variadic production's operand and result
	// types. Variadic productions (blocks, calls, switches) leave these at
	// their zero value; callers must consult the production-specific
	// signature (function signature for calls, block arity for blocks).
	In  []api.PrimitiveType
	Out api.PrimitiveType
	// supportedOn is nil for opcodes implemented on every target.
	supportedOn func(Capabilities) bool
}

// IsVariadic reports whether the production's child count comes from an
// immediate rather than the opcode table.
func (i Info) IsVariadic() bool { return i.arity.FixedChildren < 0 }

// ChildCount returns the fixed number of children for a non-variadic
// production. Callers must check IsVariadic first.
func (i Info) ChildCount() int { return i.arity.FixedChildren }

// SupportedOn reports whether the decoder accepts this opcode on the target
// described by caps. The decoder rejects every opcode reporting false as
// UnsupportedOpcode (float min/max, clz, the rounding ops, and the i64 ops
// without Has64BitOps). ctz and popcnt are not gated on their own
// capabilities here: the builder lowers them (spec.md §4.3) when the
// matching capability is off.
func (i Info) SupportedOn(caps Capabilities) bool {
	if i.supportedOn == nil {
		return true
	}
	return i.supportedOn(caps)
}

const (
	// Constants (expression, immediate bytes, no children).
	I8Const Opcode = iota
	I32Const
	I64Const
	F32Const
	F64Const

	// Locals (immediate: local index byte).
	GetLocal
	SetLocal

	// Control (statement unless noted).
	Nop
	Block
	If
	IfElse
	While
	InfiniteLoop
	Break
	Return
	Switch
	SwitchNoFallthrough

	// Expression-only control sugar.
	Ternary
	Comma

	// Calls. Argument count is implicit via the callee signature.
	CallDirect
	CallIndirect

	// i32 binary ops.
	I32Add
	I32Sub
	I32Mul
	I32DivS
	I32DivU
	I32RemS
	I32RemU
	I32And
	I32Ior
	I32Xor
	I32Shl
	I32ShrU
	I32ShrS
	I32Eq
	I32Ne
	I32LtS
	I32LeS
	I32LtU
	I32LeU
	I32GtS
	I32GeS
	I32GtU
	I32GeU

	// i64 binary ops (require Capabilities.Has64BitOps).
	I64Add
	I64Sub
	I64Mul
	I64DivS
	I64DivU
	I64RemS
	I64RemU
	I64And
	I64Ior
	I64Xor
	I64Shl
	I64ShrU
	I64ShrS
	I64Eq
	I64Ne
	I64LtS
	I64LeS
	I64LtU
	I64LeU
	I64GtS
	I64GeS
	I64GtU
	I64GeU

	// f32/f64 binary ops.
	F32Add
	F32Sub
	F32Mul
	F32Div
	F32Eq
	F32Ne
	F32Lt
	F32Le
	F32Gt
	F32Ge
	F32Min
	F32Max
	F32CopySign

	F64Add
	F64Sub
	F64Mul
	F64Div
	F64Eq
	F64Ne
	F64Lt
	F64Le
	F64Gt
	F64Ge
	F64Min
	F64Max
	F64CopySign

	// Unary ops.
	BoolNot
	F32Abs
	F32Neg
	F32Sqrt
	F64Abs
	F64Neg
	F64Sqrt
	I32SConvertF64
	I32UConvertF64
	F32ConvertF64
	F64SConvertI32
	F64UConvertI32
	F32SConvertI32
	F32UConvertI32
	I32SConvertF32
	I32UConvertF32
	F64ConvertF32
	F32ReinterpretI32
	I32ReinterpretF32
	I32Clz
	I32Ctz
	I32Popcnt
	F32Floor
	F32Ceil
	F32Trunc
	F32NearestInt
	F64Floor
	F64Ceil
	F64Trunc
	F64NearestInt

	I32ConvertI64
	I64SConvertI32
	I64UConvertI32
	F32SConvertI64
	F32UConvertI64
	F64SConvertI64
	F64UConvertI64
	F64ReinterpretI64
	I64ReinterpretF64
	I64Clz
	I64Ctz
	I64Popcnt

	numOpcodes
)

var table [numOpcodes]Info

func def(op Opcode, mnemonic string, kind Kind, ar arity, in []api.PrimitiveType, out api.PrimitiveType, supported func(Capabilities) bool) {
	table[op] = Info{Opcode: op, Mnemonic: mnemonic, Kind: kind, arity: ar, In: in, Out: out, supportedOn: supported}
}

func requires64() func(Capabilities) bool { return func(c Capabilities) bool { return c.Has64BitOps } }

var (
	i32 = api.PrimitiveI32
	i64 = api.PrimitiveI64
	f32 = api.PrimitiveF32
	f64 = api.PrimitiveF64
)

// dynamicType marks an Info.Out that the table cannot fill in: get_local's
// type depends on the local's declared type, ternary/comma's on their
// operands, and call's on the callee signature. The decoder resolves these
// from the function/module environment rather than the opcode table.
const dynamicType = api.PrimitiveType(0xff)

func init() {
	def(I8Const, "i8.const", KindExpression, fixed(0), nil, i32, nil)
	def(I32Const, "i32.const", KindExpression, fixed(0), nil, i32, nil)
	def(I64Const, "i64.const", KindExpression, fixed(0), nil, i64, nil)
	def(F32Const, "f32.const", KindExpression, fixed(0), nil, f32, nil)
	def(F64Const, "f64.const", KindExpression, fixed(0), nil, f64, nil)

	def(GetLocal, "get_local", KindExpression, fixed(0), nil, dynamicType, nil)
	def(SetLocal, "set_local", KindStatement, fixed(1), nil, api.PrimitiveStmt, nil)

	def(Nop, "nop", KindStatement, fixed(0), nil, api.PrimitiveStmt, nil)
	def(Block, "block", KindStatement, variadic, nil, api.PrimitiveStmt, nil)
	def(If, "if", KindStatement, fixed(2), nil, api.PrimitiveStmt, nil)
	def(IfElse, "if_else", KindStatement, fixed(3), nil, api.PrimitiveStmt, nil)
	def(While, "while", KindStatement, fixed(2), nil, api.PrimitiveStmt, nil)
	def(InfiniteLoop, "loop", KindStatement, variadic, nil, api.PrimitiveStmt, nil)
	def(Break, "break", KindStatement, fixed(0), nil, api.PrimitiveStmt, nil)
	def(Return, "return", KindStatement, variadic, nil, api.PrimitiveStmt, nil)
	def(Switch, "switch", KindStatement, variadic, nil, api.PrimitiveStmt, nil)
	def(SwitchNoFallthrough, "switch_no_fallthrough", KindStatement, variadic, nil, api.PrimitiveStmt, nil)

	def(Ternary, "ternary", KindExpression, fixed(3), nil, dynamicType, nil)
	def(Comma, "comma", KindExpression, fixed(2), nil, dynamicType, nil)

	def(CallDirect, "call", KindExpression, variadic, nil, dynamicType, nil)
	def(CallIndirect, "call_indirect", KindExpression, variadic, nil, dynamicType, nil)

	binop := func(op Opcode, mnemonic string, ty api.PrimitiveType, out api.PrimitiveType, supported func(Capabilities) bool) {
		def(op, mnemonic, KindExpression, fixed(2), []api.PrimitiveType{ty, ty}, out, supported)
	}
	unop := func(op Opcode, mnemonic string, in api.PrimitiveType, out api.PrimitiveType, supported func(Capabilities) bool) {
		def(op, mnemonic, KindExpression, fixed(1), []api.PrimitiveType{in}, out, supported)
	}

	for _, o := range []struct {
		op   Opcode
		name string
		out  api.PrimitiveType
	}{
		{I32Add, "i32.add", i32}, {I32Sub, "i32.sub", i32}, {I32Mul, "i32.mul", i32},
		{I32DivS, "i32.div_s", i32}, {I32DivU, "i32.div_u", i32},
		{I32RemS, "i32.rem_s", i32}, {I32RemU, "i32.rem_u", i32},
		{I32And, "i32.and", i32}, {I32Ior, "i32.or", i32}, {I32Xor, "i32.xor", i32},
		{I32Shl, "i32.shl", i32}, {I32ShrU, "i32.shr_u", i32}, {I32ShrS, "i32.shr_s", i32},
		{I32Eq, "i32.eq", i32}, {I32Ne, "i32.ne", i32},
		{I32LtS, "i32.lt_s", i32}, {I32LeS, "i32.le_s", i32}, {I32LtU, "i32.lt_u", i32}, {I32LeU, "i32.le_u", i32},
		{I32GtS, "i32.gt_s", i32}, {I32GeS, "i32.ge_s", i32}, {I32GtU, "i32.gt_u", i32}, {I32GeU, "i32.ge_u", i32},
	} {
		binop(o.op, o.name, i32, i32, nil)
	}

	for _, o := range []struct {
		op   Opcode
		name string
	}{
		{I64Add, "i64.add"}, {I64Sub, "i64.sub"}, {I64Mul, "i64.mul"},
		{I64DivS, "i64.div_s"}, {I64DivU, "i64.div_u"},
		{I64RemS, "i64.rem_s"}, {I64RemU, "i64.rem_u"},
		{I64And, "i64.and"}, {I64Ior, "i64.or"}, {I64Xor, "i64.xor"},
		{I64Shl, "i64.shl"}, {I64ShrU, "i64.shr_u"}, {I64ShrS, "i64.shr_s"},
		{I64Eq, "i64.eq"}, {I64Ne, "i64.ne"},
		{I64LtS, "i64.lt_s"}, {I64LeS, "i64.le_s"}, {I64LtU, "i64.lt_u"}, {I64LeU, "i64.le_u"},
		{I64GtS, "i64.gt_s"}, {I64GeS, "i64.ge_s"}, {I64GtU, "i64.gt_u"}, {I64GeU, "i64.ge_u"},
	} {
		binop(o.op, o.name, i64, i64, requires64())
	}

	for _, o := range []struct {
		op   Opcode
		name string
	}{
		{F32Add, "f32.add"}, {F32Sub, "f32.sub"}, {F32Mul, "f32.mul"}, {F32Div, "f32.div"},
		{F32Eq, "f32.eq"}, {F32Ne, "f32.ne"}, {F32Lt, "f32.lt"}, {F32Le, "f32.le"}, {F32Gt, "f32.gt"}, {F32Ge, "f32.ge"},
	} {
		binop(o.op, o.name, f32, f32, nil)
	}
	def(F32Min, "f32.min", KindExpression, fixed(2), []api.PrimitiveType{f32, f32}, f32, func(c Capabilities) bool { return c.HasFloatMinMax })
	def(F32Max, "f32.max", KindExpression, fixed(2), []api.PrimitiveType{f32, f32}, f32, func(c Capabilities) bool { return c.HasFloatMinMax })
	def(F32CopySign, "f32.copysign", KindExpression, fixed(2), []api.PrimitiveType{f32, f32}, f32, nil)

	for _, o := range []struct {
		op   Opcode
		name string
	}{
		{F64Add, "f64.add"}, {F64Sub, "f64.sub"}, {F64Mul, "f64.mul"}, {F64Div, "f64.div"},
		{F64Eq, "f64.eq"}, {F64Ne, "f64.ne"}, {F64Lt, "f64.lt"}, {F64Le, "f64.le"}, {F64Gt, "f64.gt"}, {F64Ge, "f64.ge"},
	} {
		binop(o.op, o.name, f64, f64, nil)
	}
	def(F64Min, "f64.min", KindExpression, fixed(2), []api.PrimitiveType{f64, f64}, f64, func(c Capabilities) bool { return c.HasFloatMinMax })
	def(F64Max, "f64.max", KindExpression, fixed(2), []api.PrimitiveType{f64, f64}, f64, func(c Capabilities) bool { return c.HasFloatMinMax })
	def(F64CopySign, "f64.copysign", KindExpression, fixed(2), []api.PrimitiveType{f64, f64}, f64, nil)

	unop(BoolNot, "bool.not", i32, i32, nil)
	unop(F32Abs, "f32.abs", f32, f32, nil)
	unop(F32Neg, "f32.neg", f32, f32, nil)
	unop(F32Sqrt, "f32.sqrt", f32, f32, nil)
	unop(F64Abs, "f64.abs", f64, f64, nil)
	unop(F64Neg, "f64.neg", f64, f64, nil)
	unop(F64Sqrt, "f64.sqrt", f64, f64, nil)
	unop(I32SConvertF64, "i32.convert_s/f64", f64, i32, nil)
	unop(I32UConvertF64, "i32.convert_u/f64", f64, i32, nil)
	unop(F32ConvertF64, "f32.convert/f64", f64, f32, nil)
	unop(F64SConvertI32, "f64.convert_s/i32", i32, f64, nil)
	unop(F64UConvertI32, "f64.convert_u/i32", i32, f64, nil)
	unop(F32SConvertI32, "f32.convert_s/i32", i32, f32, nil)
	unop(F32UConvertI32, "f32.convert_u/i32", i32, f32, nil)
	unop(I32SConvertF32, "i32.convert_s/f32", f32, i32, nil)
	unop(I32UConvertF32, "i32.convert_u/f32", f32, i32, nil)
	unop(F64ConvertF32, "f64.convert/f32", f32, f64, nil)
	unop(F32ReinterpretI32, "f32.reinterpret/i32", i32, f32, nil)
	unop(I32ReinterpretF32, "i32.reinterpret/f32", f32, i32, nil)
	unop(I32Clz, "i32.clz", i32, i32, func(c Capabilities) bool { return c.HasCountLeadingZeros })
	unop(I32Ctz, "i32.ctz", i32, i32, nil) // always available: lowered when !HasCountTrailingZeros
	unop(I32Popcnt, "i32.popcnt", i32, i32, nil)
	unop(F32Floor, "f32.floor", f32, f32, func(c Capabilities) bool { return c.HasRoundingModes })
	unop(F32Ceil, "f32.ceil", f32, f32, func(c Capabilities) bool { return c.HasRoundingModes })
	unop(F32Trunc, "f32.trunc", f32, f32, func(c Capabilities) bool { return c.HasRoundingModes })
	unop(F32NearestInt, "f32.nearest", f32, f32, func(c Capabilities) bool { return c.HasRoundingModes })
	unop(F64Floor, "f64.floor", f64, f64, func(c Capabilities) bool { return c.HasRoundingModes })
	unop(F64Ceil, "f64.ceil", f64, f64, func(c Capabilities) bool { return c.HasRoundingModes })
	unop(F64Trunc, "f64.trunc", f64, f64, func(c Capabilities) bool { return c.HasRoundingModes })
	unop(F64NearestInt, "f64.nearest", f64, f64, func(c Capabilities) bool { return c.HasRoundingModes })

	unop(I32ConvertI64, "i32.convert/i64", i64, i32, requires64())
	unop(I64SConvertI32, "i64.convert_s/i32", i32, i64, requires64())
	unop(I64UConvertI32, "i64.convert_u/i32", i32, i64, requires64())
	unop(F32SConvertI64, "f32.convert_s/i64", i64, f32, requires64())
	unop(F32UConvertI64, "f32.convert_u/i64", i64, f32, requires64())
	unop(F64SConvertI64, "f64.convert_s/i64", i64, f64, requires64())
	unop(F64UConvertI64, "f64.convert_u/i64", i64, f64, requires64())
	unop(F64ReinterpretI64, "f64.reinterpret/i64", i64, f64, requires64())
	unop(I64ReinterpretF64, "i64.reinterpret/f64", f64, i64, requires64())
	unop(I64Clz, "i64.clz", i64, i64, func(c Capabilities) bool { return c.Has64BitOps && c.HasCountLeadingZeros })
	unop(I64Ctz, "i64.ctz", i64, i64, requires64())
	unop(I64Popcnt, "i64.popcnt", i64, i64, requires64())
}

// Lookup returns the Info for op, or false if op is not a known opcode
// value (spec.md's UnknownOpcode failure).
func Lookup(op Opcode) (Info, bool) {
	if int(op) >= len(table) {
		return Info{}, false
	}
	info := table[op]
	if info.Mnemonic == "" {
		return Info{}, false
	}
	return info, true
}

// MnemonicOrUnknown is used by diagnostics: it never panics on a bad byte.
func MnemonicOrUnknown(op Opcode) string {
	if info, ok := Lookup(op); ok {
		return info.Mnemonic
	}
	return fmt.Sprintf("0x%02x", byte(op))
}

// MemOp names a load or store together with its access type, for
// diagnostics. The wire bytes for loads and stores are kept out of the
// numOpcodes iota block: internal/decoder/wire.go reserves one byte per
// (load-or-store, MemType) pair, computed by its loadOpcodeFor and
// storeOpcodeFor from a base byte plus the MemType.
type MemOp struct {
	Store bool
	Type  api.MemType
}

func (m MemOp) Mnemonic() string {
	if m.Store {
		return "store." + m.Type.String()
	}
	return "load." + m.Type.String()
}
