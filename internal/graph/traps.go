package graph

// TrapReason enumerates the runtime-trap kinds the builder inserts checks
// for (spec.md §4.4). These are distinct from the decoder's own
// diagnostic.Code failure taxonomy: a trap is a successful compilation
// whose IR branches to a runtime-throw at run time (spec.md §7).
type TrapReason byte

const (
	TrapUnreachable TrapReason = iota
	TrapMemOutOfBounds
	TrapDivByZero
	TrapDivUnrepresentable
	TrapRemByZero
	TrapFuncInvalid
	TrapFuncSigMismatch
)

func (r TrapReason) String() string {
	names := [...]string{
		"unreachable",
		"memory access out of bounds",
		"divide by zero",
		"divide result unrepresentable",
		"remainder by zero",
		"invalid function",
		"function signature mismatch",
	}
	if int(r) < len(names) {
		return names[r]
	}
	return "unknown trap"
}

// TrapInserter is implemented by internal/traps.Cache. graph never imports
// internal/traps — the dependency runs the other way (traps imports graph
// to build the trap blocks) — so Binop/Unop/LoadMem/StoreMem/CallIndirect
// take a TrapInserter parameter instead of owning one, breaking what would
// otherwise be an import cycle between "the builder drives the trap
// helper" and "the trap helper builds graph nodes."
type TrapInserter interface {
	// TrapIf emits a Branch at the builder's current control; the side of
	// the branch it names traps (joins the shared per-reason trap block),
	// and the other side becomes the builder's new current control with
	// effect restored to the value it had before the check (spec.md §4.4).
	TrapIf(reason TrapReason, cond *Node, iftrueMeansTrap bool)
}
