package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrimitiveTypeString(t *testing.T) {
	tests := []struct {
		input    PrimitiveType
		expected string
	}{
		{PrimitiveI32, "i32"},
		{PrimitiveI64, "i64"},
		{PrimitiveF32, "f32"},
		{PrimitiveF64, "f64"},
		{PrimitiveStmt, "stmt"},
		{PrimitiveEnd, "end"},
		{PrimitiveType(0xff), "PrimitiveType(255)"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.expected, tc.input.String())
	}
}

func TestPrimitiveTypeIsValue(t *testing.T) {
	require.True(t, PrimitiveI32.IsValue())
	require.True(t, PrimitiveF64.IsValue())
	require.False(t, PrimitiveStmt.IsValue())
	require.False(t, PrimitiveEnd.IsValue())
}

func TestMemTypeWidthAndSign(t *testing.T) {
	tests := []struct {
		input        MemType
		width        uint32
		signed       bool
		resultOfLoad PrimitiveType
	}{
		{MemI8, 1, true, PrimitiveI32},
		{MemU8, 1, false, PrimitiveI32},
		{MemI16, 2, true, PrimitiveI32},
		{MemU16, 2, false, PrimitiveI32},
		{MemI32, 4, true, PrimitiveI32},
		{MemU32, 4, false, PrimitiveI32},
		{MemI64, 8, true, PrimitiveI64},
		{MemU64, 8, false, PrimitiveI64},
		{MemF32, 4, false, PrimitiveF32},
		{MemF64, 8, false, PrimitiveF64},
	}
	for _, tc := range tests {
		t.Run(tc.input.String(), func(t *testing.T) {
			require.Equal(t, tc.width, tc.input.Width())
			require.Equal(t, tc.signed, tc.input.Signed())
			require.Equal(t, tc.resultOfLoad, tc.input.ValueType())
		})
	}
}

func TestFunctionSignatureString(t *testing.T) {
	i32 := PrimitiveI32
	sig := &FunctionSignature{Params: []PrimitiveType{PrimitiveI32, PrimitiveF64}, Result: &i32}
	require.Equal(t, "(i32, f64) -> i32", sig.String())

	voidSig := &FunctionSignature{}
	require.Equal(t, "() -> stmt", voidSig.String())
	require.Equal(t, PrimitiveStmt, voidSig.ReturnType())
}
