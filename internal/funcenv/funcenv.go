// Package funcenv implements the Function Environment: the per-function
// decode/build state described by spec.md §3 — signature, declared local
// counts by primitive type, total locals, and the bound module environment.
package funcenv

import (
	"fmt"

	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/moduleenv"
)

// Environment is scoped to one function decode; only AllocateLocal mutates
// it, and only the decoder calls AllocateLocal (spec.md §3).
type Environment struct {
	Signature *api.FunctionSignature
	Module    moduleenv.Environment // nil is legal: verification-only context.

	// locals holds every local's declared type, in the order spec.md §3
	// requires: parameters first (in declaration order), then declared
	// locals grouped first by i32, then f32, then f64.
	locals []api.PrimitiveType

	// counts[t] is the number of declared (non-parameter) locals of type t
	// currently allocated. Insertion position for a new local of type t is
	// always paramCount + sum of counts for every type that sorts before t
	// in (i32, f32, f64) order, plus counts[t] itself — i.e. right after
	// the existing run of type t, which is what keeps "allocation of a
	// local never renumbers earlier locals" true: everything before the
	// insertion point is untouched, only same-or-later locals shift by one.
	counts map[api.PrimitiveType]int
}

var allocationOrder = []api.PrimitiveType{api.PrimitiveI32, api.PrimitiveF32, api.PrimitiveF64}

// New builds a Function Environment for one function decode. declaredLocals
// is the local-count vector the surrounding module context already
// computed (spec.md §3: "Produced by the surrounding module context"), in
// the same i32-then-f32-then-f64 grouping AllocateLocal itself maintains.
func New(sig *api.FunctionSignature, module moduleenv.Environment, declaredLocals []api.PrimitiveType) *Environment {
	locals := make([]api.PrimitiveType, 0, len(sig.Params)+len(declaredLocals))
	locals = append(locals, sig.Params...)
	locals = append(locals, declaredLocals...)

	counts := map[api.PrimitiveType]int{}
	for _, d := range declaredLocals {
		counts[d]++
	}

	return &Environment{
		Signature: sig,
		Module:    module,
		locals:    locals,
		counts:    counts,
	}
}

// TotalLocals returns the number of locals visible to get_local/set_local,
// parameters included.
func (e *Environment) TotalLocals() int { return len(e.locals) }

// ParamCount is the number of leading locals that are parameters.
func (e *Environment) ParamCount() int { return len(e.Signature.Params) }

// LocalType returns the declared type of local index i, or false if i is
// out of range (spec.md's LocalIndexOutOfBounds).
func (e *Environment) LocalType(i uint32) (api.PrimitiveType, bool) {
	if int(i) >= len(e.locals) {
		return 0, false
	}
	return e.locals[int(i)], true
}

// AllocateLocal declares a new local of type t and returns its index. Per
// spec.md's data model and DESIGN.md's open-question decision, only i32,
// f32 and f64 may be allocated this way.
func (e *Environment) AllocateLocal(t api.PrimitiveType) (uint32, error) {
	insertAt := len(e.Signature.Params)
	found := false
	for _, grp := range allocationOrder {
		if grp == t {
			insertAt += e.counts[grp]
			found = true
			break
		}
		insertAt += e.counts[grp]
	}
	if !found {
		return 0, fmt.Errorf("funcenv: cannot allocate a local of type %s through AllocateLocal", t)
	}

	e.locals = append(e.locals, 0)
	copy(e.locals[insertAt+1:], e.locals[insertAt:])
	e.locals[insertAt] = t
	e.counts[t]++

	return uint32(insertAt), nil
}
