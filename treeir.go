// Package treeir compiles one function body of the tree bytecode (spec.md
// §6.1) into a sea-of-nodes IR graph (spec.md §3), verifying structure and
// types as it goes.
//
// Grounded on wazero's own top-level runtime.go: a small set of exported
// entry points over an otherwise entirely internal/ implementation.
package treeir

import (
	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/decoder"
	"github.com/tetratelabs/treeir/internal/diagnostic"
	"github.com/tetratelabs/treeir/internal/funcenv"
	"github.com/tetratelabs/treeir/internal/graph"
	"github.com/tetratelabs/treeir/internal/moduleenv"
	"github.com/tetratelabs/treeir/internal/traps"
)

// Compile decodes and verifies one function body, building its IR graph.
// module may be nil for a verification-only build with no linear memory,
// globals, or call targets (spec.md §6.2). declaredLocals is the
// module-computed local vector beyond sig.Params (spec.md §3).
//
// A non-OK diagnostic.Result means the returned *graph.Graph is partial and
// must not be inspected further.
func Compile(body []byte, sig *api.FunctionSignature, module moduleenv.Environment, declaredLocals []api.PrimitiveType, config *CompilationConfig) (diagnostic.Result, *graph.Graph) {
	if config == nil {
		config = NewCompilationConfig()
	}
	if config.asmJS && module != nil {
		module = asmJSOverride{module}
	}

	b := graph.NewBuilder(config.caps)
	env := funcenv.New(sig, module, declaredLocals)
	trapCache := traps.NewCache(b, config.trapTerminator, config.throwTarget, module)

	result := decoder.Decode(body, env, b, trapCache, config.caps)
	return result, b.Graph
}

// asmJSOverride forces AsmJS() to true regardless of what the wrapped
// module environment reports, implementing CompilationConfig.WithAsmJS's
// "module-wide default" — every other method delegates unchanged.
type asmJSOverride struct {
	moduleenv.Environment
}

func (asmJSOverride) AsmJS() bool { return true }
