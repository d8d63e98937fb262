package main

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/treeir/api"
)

// parseSignature parses "i32,i32:i32" (two i32 params, i32 result) or
// "i32,f64:" (void return) into a *api.FunctionSignature.
func parseSignature(s string) (*api.FunctionSignature, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("signature %q: expected \"params:result\"", s)
	}

	params, err := parseTypeList(parts[0])
	if err != nil {
		return nil, fmt.Errorf("signature %q params: %w", s, err)
	}

	sig := &api.FunctionSignature{Params: params}
	if result := strings.TrimSpace(parts[1]); result != "" {
		t, err := parseType(result)
		if err != nil {
			return nil, fmt.Errorf("signature %q result: %w", s, err)
		}
		sig.Result = &t
	}
	return sig, nil
}

func parseTypeList(s string) ([]api.PrimitiveType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []api.PrimitiveType
	for _, tok := range strings.Split(s, ",") {
		t, err := parseType(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func parseType(s string) (api.PrimitiveType, error) {
	switch strings.TrimSpace(s) {
	case "i32":
		return api.PrimitiveI32, nil
	case "i64":
		return api.PrimitiveI64, nil
	case "f32":
		return api.PrimitiveF32, nil
	case "f64":
		return api.PrimitiveF64, nil
	default:
		return 0, fmt.Errorf("unknown primitive type %q, want one of i32, i64, f32, f64", s)
	}
}

func parseMemType(s string) (api.MemType, error) {
	switch strings.TrimSpace(s) {
	case "i8":
		return api.MemI8, nil
	case "u8":
		return api.MemU8, nil
	case "i16":
		return api.MemI16, nil
	case "u16":
		return api.MemU16, nil
	case "i32":
		return api.MemI32, nil
	case "u32":
		return api.MemU32, nil
	case "i64":
		return api.MemI64, nil
	case "u64":
		return api.MemU64, nil
	case "f32":
		return api.MemF32, nil
	case "f64":
		return api.MemF64, nil
	default:
		return 0, fmt.Errorf("unknown memory access type %q", s)
	}
}
