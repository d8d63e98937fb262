// Package moduleenv defines the Module Environment interface the decoder
// and builder consume (spec.md §6.2) and a Fake implementation for tests
// and the CLI. The core never constructs a real module environment itself
// — spec.md §1 treats the module-level loader as an external collaborator.
package moduleenv

import "github.com/tetratelabs/treeir/api"

// Global describes one entry in the globals area: its byte offset from the
// area's base and its access type.
type Global struct {
	Offset uint32
	Type   api.MemType
}

// FunctionTableEntry is one slot of the indirect-call table: a signature
// index (checked against the call site's expected index) and an opaque
// code handle passed through unexamined by the core.
type FunctionTableEntry struct {
	SignatureIndex uint32
	CodeHandle     any
}

// Environment is the read-only per-decode view of a module, per spec.md
// §6.2. It is safe for concurrent use by independent decodes (§5): nothing
// in Environment is ever mutated after the module is built.
type Environment interface {
	// HasMemory reports whether this module declares a linear memory. The
	// decoder rejects any memory opcode with NoMemory when this is false.
	HasMemory() bool
	// MemoryRange returns [start, end) addresses of linear memory. Callers
	// must not call this unless HasMemory is true.
	MemoryRange() (start, end uintptr)
	// AsmJS reports whether out-of-bounds memory accesses should be
	// "checked" (return 0 / drop silently) rather than trap.
	AsmJS() bool

	// GlobalsAreaBase is the base address globals are offset from.
	GlobalsAreaBase() uintptr
	// Global returns the offset/type entry for a global index, or false if
	// out of range (GlobalIndexOutOfBounds).
	Global(index uint32) (Global, bool)

	// FunctionTableSize is the fixed size of the indirect-call table.
	FunctionTableSize() uint32
	// FunctionTableEntryAt returns the table slot at index, or false if out
	// of range.
	FunctionTableEntryAt(index uint32) (FunctionTableEntry, bool)

	// SignatureOf returns the signature of a directly-called function, or
	// false if index is out of range (FunctionIndexOutOfBounds).
	SignatureOf(functionIndex uint32) (*api.FunctionSignature, bool)
	// SignatureOfTableSlot returns the signature registered for an
	// indirect-call table slot's signature index.
	SignatureOfTableSlot(sigIndex uint32) (*api.FunctionSignature, bool)
	// CodeOf returns the opaque code handle for a directly-called function.
	CodeOf(functionIndex uint32) (any, bool)

	// HasContext reports whether a module context is available to build
	// the runtime-throw call in trap blocks (spec.md §4.4). A
	// pure-verification context legally has none.
	HasContext() bool
	// ContextConstant is an opaque value threaded into the trap call
	// descriptor when HasContext is true.
	ContextConstant() any
}

// Fake is an in-memory Environment for tests and the CLI, grounded on the
// field set tf-builder.cc's ModuleEnv actually reads (mem_start, mem_end,
// globals_area, function_table, asm_js, context).
type Fake struct {
	Memory       *FakeMemory
	AsmJSMode    bool
	GlobalsBase  uintptr
	Globals      []Global
	Table        []FunctionTableEntry
	Signatures   []*api.FunctionSignature
	TableSigs    []*api.FunctionSignature
	CodeHandles  []any
	ModuleCtx    any
	HasModuleCtx bool
}

// FakeMemory describes a contiguous, fixed-size linear memory.
type FakeMemory struct {
	Start uintptr
	End   uintptr
}

func (f *Fake) HasMemory() bool { return f.Memory != nil }

func (f *Fake) MemoryRange() (uintptr, uintptr) {
	return f.Memory.Start, f.Memory.End
}

func (f *Fake) AsmJS() bool { return f.AsmJSMode }

func (f *Fake) GlobalsAreaBase() uintptr { return f.GlobalsBase }

func (f *Fake) Global(index uint32) (Global, bool) {
	if int(index) >= len(f.Globals) {
		return Global{}, false
	}
	return f.Globals[index], true
}

func (f *Fake) FunctionTableSize() uint32 { return uint32(len(f.Table)) }

func (f *Fake) FunctionTableEntryAt(index uint32) (FunctionTableEntry, bool) {
	if int(index) >= len(f.Table) {
		return FunctionTableEntry{}, false
	}
	return f.Table[index], true
}

func (f *Fake) SignatureOf(functionIndex uint32) (*api.FunctionSignature, bool) {
	if int(functionIndex) >= len(f.Signatures) {
		return nil, false
	}
	return f.Signatures[functionIndex], true
}

func (f *Fake) SignatureOfTableSlot(sigIndex uint32) (*api.FunctionSignature, bool) {
	if int(sigIndex) >= len(f.TableSigs) {
		return nil, false
	}
	return f.TableSigs[sigIndex], true
}

func (f *Fake) CodeOf(functionIndex uint32) (any, bool) {
	if int(functionIndex) >= len(f.CodeHandles) {
		return nil, false
	}
	return f.CodeHandles[functionIndex], true
}

func (f *Fake) HasContext() bool { return f.HasModuleCtx }

func (f *Fake) ContextConstant() any { return f.ModuleCtx }
