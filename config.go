package treeir

import (
	"github.com/tetratelabs/treeir/internal/opcode"
	"github.com/tetratelabs/treeir/internal/traps"
)

// CompilationConfig controls one Compile call, with the default
// implementation as NewCompilationConfig.
//
// Grounded on config.go's RuntimeConfig: immutable value, WithXxx setters
// each returning a modified clone rather than mutating in place, so a
// caller can share a base config across many Compile calls without
// aliasing surprises.
type CompilationConfig struct {
	trapTerminator traps.Terminator
	throwTarget    any
	asmJS          bool
	caps           opcode.Capabilities
}

// baselineConfig helps avoid copy/pasting the wrong defaults.
var baselineConfig = &CompilationConfig{
	trapTerminator: traps.TerminatorReturn,
	asmJS:          false,
	caps:           opcode.FullCapabilities,
}

// NewCompilationConfig returns a CompilationConfig with the original's
// actual defaults: a Return-sentinel trap terminator (see DESIGN.md's Open
// Question decision 1), strict (non-asm.js) bounds-check semantics, and
// every optional opcode capability enabled.
func NewCompilationConfig() *CompilationConfig {
	return baselineConfig.clone()
}

// clone ensures all fields are copied even if a future field is a pointer
// or slice.
func (c *CompilationConfig) clone() *CompilationConfig {
	ret := *c
	return &ret
}

// WithTrapTerminatorReturn selects TerminatorReturn: every trap block ends
// in a Return of a sentinel value, matching what the original actually
// executes.
func (c *CompilationConfig) WithTrapTerminatorReturn() *CompilationConfig {
	ret := c.clone()
	ret.trapTerminator = traps.TerminatorReturn
	return ret
}

// WithTrapTerminatorThrow selects TerminatorThrow: every trap block ends in
// a call to throwTarget instead of returning. throwTarget is an opaque code
// handle threaded through unmodified to internal/graph.Builder.CallDirect.
func (c *CompilationConfig) WithTrapTerminatorThrow(throwTarget any) *CompilationConfig {
	ret := c.clone()
	ret.trapTerminator = traps.TerminatorThrow
	ret.throwTarget = throwTarget
	return ret
}

// WithAsmJS toggles module-wide asm.js out-of-bounds semantics: an
// out-of-bounds load silently yields zero and an out-of-bounds store
// silently drops, instead of trapping (spec.md §4.3).
func (c *CompilationConfig) WithAsmJS(enabled bool) *CompilationConfig {
	ret := c.clone()
	ret.asmJS = enabled
	return ret
}

// WithCapabilities sets the target capability bitset gating which opcodes
// decode successfully (spec.md §4.1). Defaults to opcode.FullCapabilities.
func (c *CompilationConfig) WithCapabilities(caps opcode.Capabilities) *CompilationConfig {
	ret := c.clone()
	ret.caps = caps
	return ret
}
