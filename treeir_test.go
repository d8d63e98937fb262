package treeir

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/graph"
	"github.com/tetratelabs/treeir/internal/moduleenv"
	"github.com/tetratelabs/treeir/internal/opcode"
)

func i32() *api.PrimitiveType {
	t := api.PrimitiveI32
	return &t
}

func le32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func TestCompileConstantReturn(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32()}
	var body []byte
	body = append(body, byte(opcode.Return), 1, byte(opcode.I32Const))
	body = append(body, le32(42)...)

	result, g := Compile(body, sig, nil, nil, nil)

	require.True(t, result.OK())
	require.NotNil(t, g.End)
	require.Equal(t, 1, g.CountByKind()[graph.OpReturn])
}

func TestCompileDefaultsToNewCompilationConfigWhenNil(t *testing.T) {
	sig := &api.FunctionSignature{}
	result, g := Compile(nil, sig, nil, nil, nil)

	require.True(t, result.OK())
	require.Equal(t, 1, g.CountByKind()[graph.OpReturn])
}

func TestCompileFailsOnBadBody(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32()}
	body := []byte{0xff}

	result, _ := Compile(body, sig, nil, nil, nil)
	require.False(t, result.OK())
}

func TestCompileWithAsmJSOverrideForcesCheckedAccess(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}, Result: i32()}
	module := &moduleenv.Fake{Memory: &moduleenv.FakeMemory{Start: 0x1000, End: 0x1010}, AsmJSMode: false}
	cfg := NewCompilationConfig().WithAsmJS(true)

	// Return(1){ load.i32 offset=0 index=get_local(0) }, encoded via the
	// decoder's own load-opcode-per-MemType byte range (wire.go).
	const loadOpcodeBase = 0xC0
	loadI32 := byte(loadOpcodeBase + api.MemI32)
	var body []byte
	body = append(body, byte(opcode.Return), 1, loadI32)
	body = append(body, le32(0)...)
	body = append(body, byte(opcode.GetLocal), 0)

	result, g := Compile(body, sig, module, nil, cfg)

	require.True(t, result.OK())
	// asm.js mode still branches to select loaded-value-vs-zero, it just
	// never reaches a trap terminator.
	require.Equal(t, 1, g.CountByKind()[graph.OpBranch])
	require.Equal(t, 1, g.CountByKind()[graph.OpReturn])
	require.False(t, module.AsmJSMode) // underlying module untouched
}
