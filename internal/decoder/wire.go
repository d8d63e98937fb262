package decoder

import "github.com/tetratelabs/treeir/api"

// Wire-format byte ranges for productions that don't fit in
// internal/opcode's closed enum (spec.md §6.1): loads, stores, and global
// accesses each encode a data-dependent extra dimension (memory-access
// type, or "which direction") that the opcode table intentionally leaves
// out of its iota block (see internal/opcode.MemOp's doc comment). The
// decoder is the one place that needs a concrete byte assignment for them,
// so it owns this table rather than internal/opcode.
const (
	loadOpcodeBase  byte = 0xC0 // 0xC0..0xC9: one per api.MemType, load direction
	storeOpcodeBase byte = 0xD0 // 0xD0..0xD9: one per api.MemType, store direction

	getGlobalOpcode byte = 0xE0
	setGlobalOpcode byte = 0xE1

	// loadWideOpcodeBase/storeWideOpcodeBase are the i64-result mirror of
	// loadOpcodeBase/storeOpcodeBase, one per sub-8-byte api.MemType
	// (I8/U8/I16/U16/I32/U32 — indices 0..5): tf-builder.cc's LoadMem takes
	// a *desired* result type independent of the access memtype
	// (`type == kAstI64 && MemSize(memtype) < 8` triggers sign/zero
	// extension), which this wire format represents as a distinct opcode
	// rather than a second immediate, mirroring how the plain load/store
	// opcodes already fold MemType into the opcode identity (spec.md
	// §6.1's "loads and stores carry their memory access type as part of
	// the opcode identity"). MemI64/U64/F64 need no wide variant: they are
	// already 8 bytes wide, so there is nothing to extend. MemF32 has none
	// either: it loads a float, which is never extended to i64.
	loadWideOpcodeBase  byte = 0xE2 // 0xE2..0xE7
	storeWideOpcodeBase byte = 0xE8 // 0xE8..0xED
)

func loadOpcodeFor(t api.MemType) byte  { return loadOpcodeBase + byte(t) }
func storeOpcodeFor(t api.MemType) byte { return storeOpcodeBase + byte(t) }

func loadWideOpcodeFor(t api.MemType) byte  { return loadWideOpcodeBase + byte(t) }
func storeWideOpcodeFor(t api.MemType) byte { return storeWideOpcodeBase + byte(t) }

// memTypeFromLoadByte and memTypeFromStoreByte invert loadOpcodeFor/
// storeOpcodeFor; ok is false if b is outside the relevant range.
func memTypeFromLoadByte(b byte) (api.MemType, bool) {
	if b < loadOpcodeBase || b > loadOpcodeBase+9 {
		return 0, false
	}
	return api.MemType(b - loadOpcodeBase), true
}

func memTypeFromStoreByte(b byte) (api.MemType, bool) {
	if b < storeOpcodeBase || b > storeOpcodeBase+9 {
		return 0, false
	}
	return api.MemType(b - storeOpcodeBase), true
}

// memTypeFromLoadWideByte and memTypeFromStoreWideByte invert
// loadWideOpcodeFor/storeWideOpcodeFor, restricted to the 6 sub-8-byte
// MemType values that have a wide (i64-result) variant.
func memTypeFromLoadWideByte(b byte) (api.MemType, bool) {
	if b < loadWideOpcodeBase || b > loadWideOpcodeBase+5 {
		return 0, false
	}
	return api.MemType(b - loadWideOpcodeBase), true
}

func memTypeFromStoreWideByte(b byte) (api.MemType, bool) {
	if b < storeWideOpcodeBase || b > storeWideOpcodeBase+5 {
		return 0, false
	}
	return api.MemType(b - storeWideOpcodeBase), true
}
