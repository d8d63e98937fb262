package decoder

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/diagnostic"
	"github.com/tetratelabs/treeir/internal/funcenv"
	"github.com/tetratelabs/treeir/internal/graph"
	"github.com/tetratelabs/treeir/internal/moduleenv"
	"github.com/tetratelabs/treeir/internal/opcode"
	"github.com/tetratelabs/treeir/internal/traps"
)

func i32Result() *api.PrimitiveType {
	t := api.PrimitiveI32
	return &t
}

func le32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func le64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

func i64Result() *api.PrimitiveType {
	t := api.PrimitiveI64
	return &t
}

func b(vals ...any) []byte {
	var out []byte
	for _, v := range vals {
		switch x := v.(type) {
		case opcode.Opcode:
			out = append(out, byte(x))
		case byte:
			out = append(out, x)
		case int:
			out = append(out, byte(x))
		case []byte:
			out = append(out, x...)
		default:
			panic("b: unsupported literal type")
		}
	}
	return out
}

func newFixture(sig *api.FunctionSignature, module moduleenv.Environment) (*graph.Builder, *funcenv.Environment, *traps.Cache) {
	builder := graph.NewBuilder(opcode.FullCapabilities)
	env := funcenv.New(sig, module, nil)
	cache := traps.NewCache(builder, traps.TerminatorReturn, nil, module)
	return builder, env, cache
}

func TestConstantReturn(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Return, 1, opcode.I32Const, le32(42))
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpReturn])
	require.Equal(t, 1, counts[graph.OpConstantI32])
}

func TestTwoParamAdd(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32, api.PrimitiveI32}, Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Return, 1, opcode.I32Add, opcode.GetLocal, 0, opcode.GetLocal, 1)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpBinary])
	require.Equal(t, 2, counts[graph.OpGetLocal])
}

func TestSignedDivisionInsertsBothTraps(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32, api.PrimitiveI32}, Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Return, 1, opcode.I32DivS, opcode.GetLocal, 0, opcode.GetLocal, 1)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	// zero-divisor check, the -1 check, and the INT_MIN check: 3 branches.
	require.Equal(t, 3, counts[graph.OpBranch])
	// one normal return plus one trap-sentinel return per distinct reason
	// (DivByZero, DivUnrepresentable).
	require.Equal(t, 3, counts[graph.OpReturn])
}

func TestUnsignedDivisionInsertsOneTrap(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32, api.PrimitiveI32}, Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Return, 1, opcode.I32DivU, opcode.GetLocal, 0, opcode.GetLocal, 1)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpBranch])
}

func TestGetGlobalAddressesFromGlobalsAreaBase(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	module := &moduleenv.Fake{GlobalsBase: 0x4000, Globals: []moduleenv.Global{{Offset: 8, Type: api.MemI32}}}
	builder, env, cache := newFixture(sig, module)

	body := b(opcode.Return, 1, getGlobalOpcode, 0)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpLoadGlobal])
	require.Equal(t, 1, counts[graph.OpGlobalsBase])
}

func TestSetGlobalAddressesFromGlobalsAreaBase(t *testing.T) {
	sig := &api.FunctionSignature{}
	module := &moduleenv.Fake{GlobalsBase: 0x4000, Globals: []moduleenv.Global{{Offset: 0, Type: api.MemI32}}}
	builder, env, cache := newFixture(sig, module)

	body := b(setGlobalOpcode, 0, opcode.I32Const, le32(7), opcode.Return, 0)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpStoreGlobal])
	require.Equal(t, 1, counts[graph.OpGlobalsBase])
}

func TestGetGlobalIndexOutOfRangeFails(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	module := &moduleenv.Fake{GlobalsBase: 0x4000}
	builder, env, cache := newFixture(sig, module)

	body := b(opcode.Return, 1, getGlobalOpcode, 0)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
	require.Equal(t, diagnostic.GlobalIndexOutOfBounds, result.Diagnostic.Code)
}

func TestBoundedLoadStaticallyOutOfBoundsAlwaysTraps(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}, Result: i32Result()}
	module := &moduleenv.Fake{Memory: &moduleenv.FakeMemory{Start: 0x1000, End: 0x1010}}
	builder, env, cache := newFixture(sig, module)

	body := b(opcode.Return, 1, loadOpcodeFor(api.MemI32), le32(1000), opcode.GetLocal, 0)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpBranch])
	require.Equal(t, 0, counts[graph.OpLoad])
}

func TestBoundedLoadDynamicBoundsCheck(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}, Result: i32Result()}
	module := &moduleenv.Fake{Memory: &moduleenv.FakeMemory{Start: 0x1000, End: 0x1010}}
	builder, env, cache := newFixture(sig, module)

	body := b(opcode.Return, 1, loadOpcodeFor(api.MemI32), le32(0), opcode.GetLocal, 0)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpBranch])
	require.Equal(t, 1, counts[graph.OpLoad])
}

func TestLoadWithNoMemoryFails(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}, Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Return, 1, loadOpcodeFor(api.MemI32), le32(0), opcode.GetLocal, 0)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
}

func TestWideLoadSignExtendsToI64(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}, Result: i64Result()}
	module := &moduleenv.Fake{Memory: &moduleenv.FakeMemory{Start: 0x1000, End: 0x1010}}
	builder, env, cache := newFixture(sig, module)

	body := b(opcode.Return, 1, loadWideOpcodeFor(api.MemI16), le32(0), opcode.GetLocal, 0)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpLoad])
	require.Equal(t, 1, counts[graph.OpUnary])
}

func TestWideLoadUnsupportedWithoutHas64BitOps(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}, Result: i64Result()}
	module := &moduleenv.Fake{Memory: &moduleenv.FakeMemory{Start: 0x1000, End: 0x1010}}
	builder, env, cache := newFixture(sig, module)

	body := b(opcode.Return, 1, loadWideOpcodeFor(api.MemI16), le32(0), opcode.GetLocal, 0)
	result := Decode(body, env, builder, cache, opcode.NoExtraCapabilities)

	require.False(t, result.OK())
	require.Equal(t, diagnostic.UnsupportedOpcode, result.Diagnostic.Code)
}

func TestWideStoreTruncatesI64Value(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}}
	module := &moduleenv.Fake{Memory: &moduleenv.FakeMemory{Start: 0x1000, End: 0x1010}}
	builder, env, cache := newFixture(sig, module)

	body := b(
		storeWideOpcodeFor(api.MemI32), le32(0), opcode.GetLocal, 0, opcode.I64Const, le64(0x1_0000_0002),
		opcode.Return, 0,
	)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpStore])
	require.Equal(t, 1, counts[graph.OpUnary])
}

func switchScenarioBody() []byte {
	// switch (get_local 0) { case 0: nop; case 1: return 45; case 2: nop; case 3: return 47 }
	// return get_local 0
	return b(
		opcode.Switch, 4, opcode.GetLocal, 0,
		opcode.Nop,
		opcode.Return, 1, opcode.I32Const, le32(45),
		opcode.Nop,
		opcode.Return, 1, opcode.I32Const, le32(47),
		opcode.Return, 1, opcode.GetLocal, 0,
	)
}

func TestSwitchFallthroughShape(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}, Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	result := Decode(switchScenarioBody(), env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpSwitch])
	require.Equal(t, 4, counts[graph.OpIfValue])
	require.Equal(t, 1, counts[graph.OpIfDefault])
	// case1 and case3 each merge their own key match with the prior
	// fallthrough case (case0 and case2 fall straight in), plus the
	// switch's own default-path exit merge: 3 total.
	require.Equal(t, 3, counts[graph.OpMerge])
}

func TestSwitchIsIsomorphicAcrossRepeatedDecodes(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}, Result: i32Result()}
	body := switchScenarioBody()

	b1, env1, c1 := newFixture(sig, nil)
	require.True(t, Decode(body, env1, b1, c1, opcode.FullCapabilities).OK())

	b2, env2, c2 := newFixture(sig, nil)
	require.True(t, Decode(body, env2, b2, c2, opcode.FullCapabilities).OK())

	require.Equal(t, b1.Graph.CountByKind(), b2.Graph.CountByKind())
}

func TestCountdownLoopHasABackEdge(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}, Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	// while (get_local 0) { set_local 0, get_local 0 - 1 }
	// return get_local 0
	body := b(
		opcode.While, opcode.GetLocal, 0,
		opcode.SetLocal, 0, opcode.I32Sub, opcode.GetLocal, 0, opcode.I32Const, le32(1),
		opcode.Return, 1, opcode.GetLocal, 0,
	)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpLoop])
	require.Equal(t, 1, counts[graph.OpSetLocal])
}

func TestUnknownOpcodeFails(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Return, 1, byte(0xAA))
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
}

func TestTruncatedImmediateFails(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Return, 1, opcode.I32Const, byte(1), byte(2))
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
}

func TestReturnArityMismatchAttachesProductionStart(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Nop, opcode.Return, 2)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
	require.Equal(t, diagnostic.ArityMismatch, result.Diagnostic.Code)
	require.Equal(t, uint32(2), result.Diagnostic.PC)
	require.Equal(t, uint32(1), result.Diagnostic.PT)
}

func TestBlockChildFailureAttachesBlockStart(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Nop, opcode.Block, 1, opcode.SetLocal, 5, opcode.Return, 0)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
	require.Equal(t, diagnostic.LocalIndexOutOfBounds, result.Diagnostic.Code)
	require.Equal(t, uint32(4), result.Diagnostic.PC)
	require.Equal(t, uint32(1), result.Diagnostic.PT)
}

func TestSwitchKeyFailureAttachesSwitchStart(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Nop, opcode.Switch, 1, opcode.GetLocal, 9, opcode.Nop)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
	require.Equal(t, diagnostic.LocalIndexOutOfBounds, result.Diagnostic.Code)
	require.Equal(t, uint32(4), result.Diagnostic.PC)
	require.Equal(t, uint32(1), result.Diagnostic.PT)
}

func TestCallArgumentFailureAttachesCallStart(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	module := &moduleenv.Fake{
		Signatures:  []*api.FunctionSignature{{Params: []api.PrimitiveType{api.PrimitiveI32}}},
		CodeHandles: []any{"fn0"},
	}
	builder, env, cache := newFixture(sig, module)

	body := b(opcode.Nop, opcode.Return, 1, opcode.CallDirect, 0)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
	require.Equal(t, diagnostic.Truncated, result.Diagnostic.Code)
	require.Equal(t, uint32(5), result.Diagnostic.PC)
	require.Equal(t, uint32(3), result.Diagnostic.PT)
}

func TestBreakDepthOutOfRangeFails(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Break, 0)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
}

func TestLocalIndexOutOfRangeFails(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Return, 1, opcode.GetLocal, 5)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
}

func TestReturnTypeMismatchFails(t *testing.T) {
	sig := &api.FunctionSignature{Result: i32Result()}
	builder, env, cache := newFixture(sig, nil)

	body := b(opcode.Return, 1, opcode.F32Const, le32(0))
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.False(t, result.OK())
}

func TestEmptyBodySynthesizesVoidReturn(t *testing.T) {
	sig := &api.FunctionSignature{}
	builder, env, cache := newFixture(sig, nil)

	result := Decode(nil, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpReturn])
}

func TestIfWithoutElseJoinsWithPreState(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}}
	builder, env, cache := newFixture(sig, nil)

	body := b(
		opcode.If, opcode.GetLocal, 0, opcode.SetLocal, 0, opcode.I32Const, le32(0),
	)
	result := Decode(body, env, builder, cache, opcode.FullCapabilities)

	require.True(t, result.OK())
	counts := builder.Graph.CountByKind()
	require.Equal(t, 1, counts[graph.OpMerge])
	require.Equal(t, 1, counts[graph.OpReturn])
}
