// Package api includes the value types shared by every layer of treeir: the
// decoder, the trap helper and the graph builder all speak PrimitiveType and
// MemType, never their own private notion of "type".
package api

import "fmt"

// PrimitiveType is the value category of an expression production, per the
// data model in spec.md §3. Statement productions carry PrimitiveStmt; the
// unreachable terminator carries PrimitiveEnd.
type PrimitiveType byte

const (
	PrimitiveI32 PrimitiveType = iota
	PrimitiveI64
	PrimitiveF32
	PrimitiveF64
	// PrimitiveStmt marks a production that produces no value.
	PrimitiveStmt
	// PrimitiveEnd marks a production that never returns control, e.g. an
	// infinite loop with no break, or a trap.
	PrimitiveEnd
)

func (t PrimitiveType) String() string {
	switch t {
	case PrimitiveI32:
		return "i32"
	case PrimitiveI64:
		return "i64"
	case PrimitiveF32:
		return "f32"
	case PrimitiveF64:
		return "f64"
	case PrimitiveStmt:
		return "stmt"
	case PrimitiveEnd:
		return "end"
	default:
		return fmt.Sprintf("PrimitiveType(%d)", byte(t))
	}
}

// IsValue reports whether a production of this type leaves a value on the
// builder's argument buffer.
func (t PrimitiveType) IsValue() bool {
	return t == PrimitiveI32 || t == PrimitiveI64 || t == PrimitiveF32 || t == PrimitiveF64
}

// MemType is the width and signedness of a linear-memory load or store, per
// spec.md §3's "Memory access type" entity. Loads and stores carry their
// MemType as part of the opcode identity (spec.md §6.1).
type MemType byte

const (
	MemI8 MemType = iota
	MemU8
	MemI16
	MemU16
	MemI32
	MemU32
	MemI64
	MemU64
	MemF32
	MemF64
)

func (m MemType) String() string {
	switch m {
	case MemI8:
		return "i8"
	case MemU8:
		return "u8"
	case MemI16:
		return "i16"
	case MemU16:
		return "u16"
	case MemI32:
		return "i32"
	case MemU32:
		return "u32"
	case MemI64:
		return "i64"
	case MemU64:
		return "u64"
	case MemF32:
		return "f32"
	case MemF64:
		return "f64"
	default:
		return fmt.Sprintf("MemType(%d)", byte(m))
	}
}

// Width returns the size in bytes of an access of this type.
func (m MemType) Width() uint32 {
	switch m {
	case MemI8, MemU8:
		return 1
	case MemI16, MemU16:
		return 2
	case MemI32, MemU32, MemF32:
		return 4
	case MemI64, MemU64, MemF64:
		return 8
	default:
		panic(fmt.Sprintf("unknown MemType %d", byte(m)))
	}
}

// Signed reports whether a narrow integer load of this type should be
// sign-extended (as opposed to zero-extended) when widened.
func (m MemType) Signed() bool {
	switch m {
	case MemI8, MemI16, MemI32, MemI64:
		return true
	default:
		return false
	}
}

// ValueType returns the PrimitiveType a load of this MemType produces.
func (m MemType) ValueType() PrimitiveType {
	switch m {
	case MemI8, MemU8, MemI16, MemU16, MemI32, MemU32:
		return PrimitiveI32
	case MemI64, MemU64:
		return PrimitiveI64
	case MemF32:
		return PrimitiveF32
	case MemF64:
		return PrimitiveF64
	default:
		panic(fmt.Sprintf("unknown MemType %d", byte(m)))
	}
}

// FunctionSignature is a function's parameter and return types, per
// spec.md §3's "Function signature" entity: an ordered parameter list and
// 0 or 1 return type.
type FunctionSignature struct {
	Params []PrimitiveType
	// Result is nil for a function with no return value.
	Result *PrimitiveType
}

// ReturnType returns PrimitiveStmt for a signature with no result, else the
// declared result type.
func (s *FunctionSignature) ReturnType() PrimitiveType {
	if s == nil || s.Result == nil {
		return PrimitiveStmt
	}
	return *s.Result
}

func (s *FunctionSignature) String() string {
	out := "("
	for i, p := range s.Params {
		if i > 0 {
			out += ", "
		}
		out += p.String()
	}
	out += ") -> " + s.ReturnType().String()
	return out
}
