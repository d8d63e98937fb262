// Package diagnostic implements the Diagnostic Channel (spec.md §4.5,
// §6.3): a single structured result reported once per decode, never a
// running log of every error seen.
//
// Grounded on internal/wasm/errors.go's pattern of typed sentinel errors
// wrapped with a formatted message, and on wasm-js.cc's convention of
// naming the opcode mnemonic and byte offset(s) in the surfaced text.
package diagnostic

import "fmt"

// Code enumerates the decode failure taxonomy from spec.md §4.2, exactly.
type Code byte

const (
	UnknownOpcode Code = iota
	UnsupportedOpcode
	Truncated
	TypeError
	LocalIndexOutOfBounds
	GlobalIndexOutOfBounds
	FunctionIndexOutOfBounds
	BreakDepth
	ArityMismatch
	NoMemory
	InternalError
)

func (c Code) String() string {
	names := [...]string{
		"UnknownOpcode", "UnsupportedOpcode", "Truncated", "TypeError",
		"LocalIndexOutOfBounds", "GlobalIndexOutOfBounds", "FunctionIndexOutOfBounds",
		"BreakDepth", "ArityMismatch", "NoMemory", "InternalError",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("Code(%d)", byte(c))
}

// Diagnostic is the decode result's error half (spec.md §6.3's
// `{ ok | error{...} }`). Diagnostics carry no host-heap pointers — every
// field is a plain value the caller owns independently of the decode.
type Diagnostic struct {
	Code Code
	// PC is the byte offset of the failing opcode.
	PC uint32
	// PT is a secondary offset for the production's token, populated
	// whenever the production spans more than one byte before the point
	// of failure (block arity, call argument count, switch case count).
	// Zero when not applicable.
	PT      uint32
	Message string
}

// Error implements the error interface so a Diagnostic can travel through
// ordinary Go error-handling paths inside the decoder before being
// surfaced at the package boundary (SPEC_FULL.md §1.1).
func (d *Diagnostic) Error() string {
	return d.Message
}

// New builds a Diagnostic whose Message always includes the code and pc;
// WithSecondary appends pt to the same Message, so a Diagnostic carrying
// both offsets names both (spec.md §4.5).
func New(code Code, pc uint32, format string, args ...any) *Diagnostic {
	return &Diagnostic{Code: code, PC: pc, Message: fmt.Sprintf("%s at 0x%x: %s", code, pc, fmt.Sprintf(format, args...))}
}

// WithSecondary attaches a secondary token offset (spec.md §4.5's `pt`) and
// returns d for chaining at the call site.
func (d *Diagnostic) WithSecondary(pt uint32) *Diagnostic {
	d.PT = pt
	d.Message = fmt.Sprintf("%s (production started at 0x%x)", d.Message, pt)
	return d
}

// Result is the outer {ok | error} envelope spec.md §6.3 names; the
// decoder's public entry point returns one of these rather than a bare
// (*Diagnostic, error) pair, so a caller can't accidentally treat a nil
// error as success while still holding a non-nil Diagnostic.
type Result struct {
	Diagnostic *Diagnostic
}

// OK reports a successful decode.
func (r Result) OK() bool { return r.Diagnostic == nil }

// Success is the zero-value Result: no diagnostic, decode succeeded.
var Success = Result{}

// Failure wraps d into a Result.
func Failure(d *Diagnostic) Result { return Result{Diagnostic: d} }
