package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/opcode"
)

func TestParseSignature(t *testing.T) {
	sig, err := parseSignature("i32,i32:i32")
	require.NoError(t, err)
	require.Equal(t, []api.PrimitiveType{api.PrimitiveI32, api.PrimitiveI32}, sig.Params)
	require.NotNil(t, sig.Result)
	require.Equal(t, api.PrimitiveI32, *sig.Result)

	sig, err = parseSignature("i32,f64:")
	require.NoError(t, err)
	require.Equal(t, []api.PrimitiveType{api.PrimitiveI32, api.PrimitiveF64}, sig.Params)
	require.Nil(t, sig.Result)

	sig, err = parseSignature(":")
	require.NoError(t, err)
	require.Nil(t, sig.Params)
	require.Nil(t, sig.Result)

	_, err = parseSignature("i32:i32:i32")
	require.Error(t, err)

	_, err = parseSignature("bogus:i32")
	require.Error(t, err)
}

func TestParseTypeList(t *testing.T) {
	list, err := parseTypeList("")
	require.NoError(t, err)
	require.Nil(t, list)

	list, err = parseTypeList("i32, f64 , i64")
	require.NoError(t, err)
	require.Equal(t, []api.PrimitiveType{api.PrimitiveI32, api.PrimitiveF64, api.PrimitiveI64}, list)

	_, err = parseTypeList("i32,nope")
	require.Error(t, err)
}

func TestParseMemType(t *testing.T) {
	for s, want := range map[string]api.MemType{
		"i8": api.MemI8, "u8": api.MemU8, "i16": api.MemI16, "u16": api.MemU16,
		"i32": api.MemI32, "u32": api.MemU32, "i64": api.MemI64, "u64": api.MemU64,
		"f32": api.MemF32, "f64": api.MemF64,
	} {
		got, err := parseMemType(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := parseMemType("nope")
	require.Error(t, err)
}

func TestLoadModuleDescriptor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.json")
	desc := moduleDescriptor{
		AsmJS:       true,
		GlobalsBase: 0x2000,
	}
	desc.Memory = &struct {
		Start uint64 `json:"start"`
		End   uint64 `json:"end"`
	}{Start: 0x1000, End: 0x1010}
	desc.Globals = []struct {
		Offset uint32 `json:"offset"`
		Type   string `json:"type"`
	}{{Offset: 0, Type: "i32"}}
	desc.Signatures = []string{"i32:i32"}

	raw, err := json.Marshal(desc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	env, err := loadModuleDescriptor(path)
	require.NoError(t, err)
	require.True(t, env.HasMemory())
	require.True(t, env.AsmJS())
	start, end := env.MemoryRange()
	require.Equal(t, uintptr(0x1000), start)
	require.Equal(t, uintptr(0x1010), end)
	require.Equal(t, uintptr(0x2000), env.GlobalsAreaBase())

	g, ok := env.Global(0)
	require.True(t, ok)
	require.Equal(t, api.MemI32, g.Type)

	sig, ok := env.SignatureOf(0)
	require.True(t, ok)
	require.Equal(t, []api.PrimitiveType{api.PrimitiveI32}, sig.Params)
}

func TestLoadModuleDescriptorRejectsBadType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module.json")
	raw := []byte(`{"globals": [{"offset": 0, "type": "bogus"}]}`)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err := loadModuleDescriptor(path)
	require.Error(t, err)
}

func TestLoadModuleDescriptorMissingFile(t *testing.T) {
	_, err := loadModuleDescriptor(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func writeBody(t *testing.T, dir string, body []byte) string {
	t.Helper()
	path := filepath.Join(dir, "body.bin")
	require.NoError(t, os.WriteFile(path, body, 0o644))
	return path
}

func TestDoMainConstantReturn(t *testing.T) {
	dir := t.TempDir()
	// Return(1){ i32.const 42 }
	body := append([]byte{byte(opcode.Return), 1, byte(opcode.I32Const)}, le32(42)...)
	path := writeBody(t, dir, body)

	var stdout, stderr bytes.Buffer
	code := doMain([]string{"--sig", ":i32", path}, &stdout, &stderr)
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "ok:")
	require.Empty(t, stderr.String())
}

func TestDoMainMissingSig(t *testing.T) {
	dir := t.TempDir()
	path := writeBody(t, dir, []byte{0xff})

	var stdout, stderr bytes.Buffer
	code := doMain([]string{path}, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "--sig is required")
}

func TestDoMainNoArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := doMain([]string{"--sig", ":i32"}, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "usage:")
}

func TestDoMainBadOpcode(t *testing.T) {
	dir := t.TempDir()
	path := writeBody(t, dir, []byte{0xff})

	var stdout, stderr bytes.Buffer
	code := doMain([]string{"--sig", ":i32", path}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "compile failed")
}

func TestDoMainInvalidTrapTerminator(t *testing.T) {
	dir := t.TempDir()
	path := writeBody(t, dir, []byte{0xff})

	var stdout, stderr bytes.Buffer
	code := doMain([]string{"--sig", ":i32", "--trap-terminator", "bogus", path}, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "invalid --trap-terminator")
}

func TestDoMainInvalidCaps(t *testing.T) {
	dir := t.TempDir()
	path := writeBody(t, dir, []byte{0xff})

	var stdout, stderr bytes.Buffer
	code := doMain([]string{"--sig", ":i32", "--caps", "bogus", path}, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "invalid --caps")
}

func TestDoMainMissingBodyFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := doMain([]string{"--sig", ":i32", filepath.Join(t.TempDir(), "missing.bin")}, &stdout, &stderr)
	require.Equal(t, 2, code)
	require.Contains(t, stderr.String(), "reading function body")
}

func TestDoMainWithModuleDescriptor(t *testing.T) {
	dir := t.TempDir()
	modPath := filepath.Join(dir, "module.json")
	require.NoError(t, os.WriteFile(modPath, []byte(`{"memory": {"start": 0, "end": 16}}`), 0o644))

	// Return(1){ load.i32 offset=0 index=get_local(0) }
	const loadOpcodeBase = 0xC0
	loadI32 := loadOpcodeBase + byte(api.MemI32)
	body := []byte{byte(opcode.Return), 1, loadI32}
	body = append(body, le32(0)...)
	body = append(body, byte(opcode.GetLocal), 0)

	bodyPath := writeBody(t, dir, body)

	var stdout, stderr bytes.Buffer
	code := doMain([]string{"--sig", "i32:i32", "--module", modPath, bodyPath}, &stdout, &stderr)
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "ok:")
}
