package graph

import (
	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/opcode"
)

// memoryBase caches the linear-memory base pointer as a builder-lifetime
// node, grounded on tf-builder.cc's MemBuffer (SPEC_FULL.md §4): every
// Load/Store in a function derives its address from that one node rather
// than re-reading the environment. memorySize caches the byte length as an
// i32 constant the same way (tf-builder.cc's MemSize), but LoadMem and
// StoreMem do not call it: checkedIndex builds its own size-offset-width
// constant for each access.
func (b *Builder) memoryBase(base uintptr) *Node {
	if b.memBase == nil || b.memBaseAddr != base {
		n := b.Graph.newNode(OpMemoryBase)
		n.I64Value = int64(base)
		b.memBase = n
		b.memBaseAddr = base
	}
	return b.memBase
}

func (b *Builder) memorySize(size uint32) *Node {
	if b.memSize == nil {
		b.memSize = b.ConstantI32(int32(size))
	}
	return b.memSize
}

// globalsAreaBase caches the globals-area base pointer as a builder-lifetime
// constant, mirroring memoryBase.
func (b *Builder) globalsAreaBase(base uintptr) *Node {
	if b.globalsBase == nil || b.globalsBaseAddr != base {
		n := b.Graph.newNode(OpGlobalsBase)
		n.I64Value = int64(base)
		b.globalsBase = n
		b.globalsBaseAddr = base
	}
	return b.globalsBase
}

// ModuleContext caches the module-context constant as a builder-lifetime
// node (spec.md §4.4's call descriptor context slot), the same shape as
// memoryBase/globalsAreaBase: a function build has exactly one module
// context, so the first call materializes it and every later call reuses
// the same node.
func (b *Builder) ModuleContext(ctx any) *Node {
	if !b.moduleContextInit {
		n := b.Graph.newNode(OpModuleContext)
		n.ContextValue = ctx
		b.moduleContext = n
		b.moduleContextInit = true
	}
	return b.moduleContext
}

// boundsCheckOutcome classifies a static bounds check against a known
// memory size, per spec.md §4.3: an out-of-range constant offset+width
// collapses the whole access to "always traps" without emitting a runtime
// comparison at all.
type boundsCheckOutcome byte

const (
	boundsCheckDynamic boundsCheckOutcome = iota
	boundsCheckAlwaysTraps
)

func staticBoundsOutcome(offset uint32, width uint32, memSize uint32) boundsCheckOutcome {
	if offset >= memSize || offset+width > memSize {
		return boundsCheckAlwaysTraps
	}
	return boundsCheckDynamic
}

// LoadMem implements the heap-access read path (spec.md §4.3/§4.4): a
// bounds check against offset+width, either collapsed to a constant trap or
// emitted as index <=u (size-offset-width), then the actual load with
// sub-8-byte sign/zero extension folded into MemOp's Signed()/Width().
//
// asmJS mode replaces the trap with a "checked" access: an out-of-bounds
// load silently returns zero and an out-of-bounds store silently drops,
// matching the original's asm.js compatibility mode rather than the
// strict-mode trap (SPEC_FULL.md §4).
// desired is the result type the caller wants, independent of memType's
// access width: it is normally memType.ValueType(), but for a sub-8-byte
// MemType a caller may request api.PrimitiveI64, which triggers the
// extension in rawLoad/checkedLoad below (SPEC_FULL.md §4, grounded on
// tf-builder.cc's LoadMem(LocalType type, MemType memtype, ...)).
func (b *Builder) LoadMem(memType api.MemType, desired api.PrimitiveType, index *Node, offset uint32, memSize uint32, memBase uintptr, asmJS bool, traps TrapInserter) *Node {
	width := memType.Width()
	outcome := staticBoundsOutcome(offset, width, memSize)

	if outcome == boundsCheckAlwaysTraps {
		if asmJS {
			return b.zeroOf(desired)
		}
		b.requireTraps(traps)
		traps.TrapIf(TrapMemOutOfBounds, b.ConstantI32(1), true)
		return b.zeroOf(desired)
	}

	inBounds := b.checkedIndex(index, offset, width, memSize)
	if asmJS {
		return b.checkedLoad(memType, desired, index, offset, memBase, inBounds)
	}

	b.requireTraps(traps)
	traps.TrapIf(TrapMemOutOfBounds, inBounds, false)
	return b.rawLoad(memType, desired, index, offset, memBase)
}

// StoreMem implements the heap-access write path, mirroring LoadMem.
// sourceType is the value's own type as decoded; when it is
// api.PrimitiveI64 and memType is narrower than 8 bytes, value is wrapped
// to i32 before the raw store (tf-builder.cc's StoreMem always writes at
// memtype's width, so the narrowing has to happen on this side).
func (b *Builder) StoreMem(memType api.MemType, sourceType api.PrimitiveType, index, value *Node, offset uint32, memSize uint32, memBase uintptr, asmJS bool, traps TrapInserter) *Node {
	value = b.truncateForStore(value, memType, sourceType)
	width := memType.Width()
	outcome := staticBoundsOutcome(offset, width, memSize)

	if outcome == boundsCheckAlwaysTraps {
		if asmJS {
			return value
		}
		b.requireTraps(traps)
		traps.TrapIf(TrapMemOutOfBounds, b.ConstantI32(1), true)
		return value
	}

	inBounds := b.checkedIndex(index, offset, width, memSize)
	if asmJS {
		ifOK, ifBad := b.Branch(inBounds)
		b.Control = ifOK
		b.rawStore(memType, index, value, offset, memBase)
		b.Control = b.Merge(b.Control, ifBad)
		return value
	}

	b.requireTraps(traps)
	traps.TrapIf(TrapMemOutOfBounds, inBounds, false)
	b.rawStore(memType, index, value, offset, memBase)
	return value
}

// checkedIndex builds index <=u (size-offset-width), the dynamic half of
// spec.md §4.3's bounds-check policy.
func (b *Builder) checkedIndex(index *Node, offset, width, memSize uint32) *Node {
	limit := memSize - offset - width
	return b.binary(opcode.I32LeU, index, b.ConstantI32(int32(limit)), api.PrimitiveI32)
}

func (b *Builder) rawLoad(memType api.MemType, desired api.PrimitiveType, index *Node, offset uint32, memBase uintptr) *Node {
	base := b.memoryBase(memBase)
	n := b.Graph.newNode(OpLoad, base, index, b.Effect)
	n.MemOp = memType
	n.Offset = offset
	n.Type = memType.ValueType()
	b.Effect = n
	return b.extendNarrowLoad(n, memType, desired)
}

// extendNarrowLoad performs the sign/zero widening tf-builder.cc's LoadMem
// applies when the caller wants an i64 result from a sub-8-byte access
// (spec.md §4.3 line 90).
func (b *Builder) extendNarrowLoad(loaded *Node, memType api.MemType, desired api.PrimitiveType) *Node {
	if desired != api.PrimitiveI64 || memType.Width() >= 8 {
		return loaded
	}
	if memType.Signed() {
		return b.Unop(opcode.I64SConvertI32, loaded)
	}
	return b.Unop(opcode.I64UConvertI32, loaded)
}

// truncateForStore mirrors extendNarrowLoad on the write side: an i64
// value bound for a sub-8-byte MemType is wrapped to i32 first (equivalent
// to i32.wrap_i64) since the raw store itself only ever writes memType's
// native width.
func (b *Builder) truncateForStore(value *Node, memType api.MemType, sourceType api.PrimitiveType) *Node {
	if sourceType != api.PrimitiveI64 || memType.Width() >= 8 {
		return value
	}
	return b.Unop(opcode.I32ConvertI64, value)
}

func (b *Builder) checkedLoad(memType api.MemType, desired api.PrimitiveType, index *Node, offset uint32, memBase uintptr, inBounds *Node) *Node {
	ifOK, ifBad := b.Branch(inBounds)
	b.Control = ifOK
	loaded := b.rawLoad(memType, desired, index, offset, memBase)
	okControl := b.Control
	b.Control = ifBad
	zero := b.zeroOf(desired)
	badControl := b.Control

	merge := b.Merge(okControl, badControl)
	b.Control = merge
	return b.Phi(desired, merge, loaded, zero)
}

func (b *Builder) rawStore(memType api.MemType, index, value *Node, offset uint32, memBase uintptr) *Node {
	base := b.memoryBase(memBase)
	n := b.Graph.newNode(OpStore, base, index, value, b.Effect)
	n.MemOp = memType
	n.Offset = offset
	b.Effect = n
	return n
}

func (b *Builder) zeroOf(t api.PrimitiveType) *Node {
	switch t {
	case api.PrimitiveI64:
		return b.ConstantI64(0)
	case api.PrimitiveF32:
		return b.ConstantF32(0)
	case api.PrimitiveF64:
		return b.ConstantF64(0)
	default:
		return b.ConstantI32(0)
	}
}

// LoadGlobal and StoreGlobal address the globals area at a fixed offset
// from GlobalsAreaBase (spec.md §6.2's Environment contract), the same way
// LoadMem/StoreMem address linear memory from its own base pointer.
func (b *Builder) LoadGlobal(index uint32, offset uint32, globalType api.MemType, globalsBase uintptr) *Node {
	base := b.globalsAreaBase(globalsBase)
	n := b.Graph.newNode(OpLoadGlobal, base, b.Effect)
	n.Offset = offset
	n.MemOp = globalType
	n.Type = globalType.ValueType()
	n.I32Value = int32(index)
	b.Effect = n
	return n
}

func (b *Builder) StoreGlobal(index uint32, offset uint32, globalType api.MemType, value *Node, globalsBase uintptr) *Node {
	base := b.globalsAreaBase(globalsBase)
	n := b.Graph.newNode(OpStoreGlobal, base, value, b.Effect)
	n.Offset = offset
	n.MemOp = globalType
	n.I32Value = int32(index)
	b.Effect = n
	return n
}
