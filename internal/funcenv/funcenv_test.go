package funcenv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/treeir/api"
)

func TestAllocateLocalOrderPreserving(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}}
	env := New(sig, nil, nil)
	require.Equal(t, 1, env.TotalLocals())

	a, err := env.AllocateLocal(api.PrimitiveI32)
	require.NoError(t, err)
	b, err := env.AllocateLocal(api.PrimitiveF32)
	require.NoError(t, err)
	c, err := env.AllocateLocal(api.PrimitiveI32)
	require.NoError(t, err)
	// C is inserted at the end of the i32 run, which shifts B (f32) up by one.
	b++

	// A < C (both i32, in allocation order) and B sits after all i32 locals.
	require.Less(t, a, c)
	require.Less(t, c, b)

	typeAt := func(i uint32) api.PrimitiveType {
		ty, ok := env.LocalType(i)
		require.True(t, ok)
		return ty
	}
	require.Equal(t, api.PrimitiveI32, typeAt(0)) // parameter
	require.Equal(t, api.PrimitiveI32, typeAt(a))
	require.Equal(t, api.PrimitiveI32, typeAt(c))
	require.Equal(t, api.PrimitiveF32, typeAt(b))
	require.Equal(t, 4, env.TotalLocals())
}

func TestAllocateLocalRejectsI64(t *testing.T) {
	sig := &api.FunctionSignature{}
	env := New(sig, nil, nil)
	_, err := env.AllocateLocal(api.PrimitiveI64)
	require.Error(t, err)
}

func TestLocalTypeOutOfBounds(t *testing.T) {
	sig := &api.FunctionSignature{Params: []api.PrimitiveType{api.PrimitiveI32}}
	env := New(sig, nil, nil)
	_, ok := env.LocalType(5)
	require.False(t, ok)
}

func TestNewSeedsDeclaredLocalGroups(t *testing.T) {
	sig := &api.FunctionSignature{}
	env := New(sig, nil, []api.PrimitiveType{api.PrimitiveI32, api.PrimitiveF64})
	// A new i32 must land before the pre-declared f64, not after it.
	idx, err := env.AllocateLocal(api.PrimitiveI32)
	require.NoError(t, err)
	require.Equal(t, uint32(1), idx)
	ty, ok := env.LocalType(2)
	require.True(t, ok)
	require.Equal(t, api.PrimitiveF64, ty)
}
