// Package decoder implements the Bytecode Decoder / Verifier (spec.md
// §4.2): a recursive-descent walk over one function body that verifies
// structure and types while driving internal/graph.Builder in lockstep.
//
// Grounded on internal/wasm/binary/function.go's bytes.Reader plus
// fmt.Errorf("...: %w", err) decode idiom for the general shape of "read
// one production, recurse into children, check the result." The wire
// format itself (spec.md §6.1) is this codebase's own fixed-width,
// prefix-encoded tree format, not wazero's LEB128/section-table format, so
// only the idiom is reused, not the byte-level routines.
package decoder

import (
	"bytes"
	"encoding/binary"

	"github.com/tetratelabs/treeir/api"
	"github.com/tetratelabs/treeir/internal/diagnostic"
	"github.com/tetratelabs/treeir/internal/funcenv"
	"github.com/tetratelabs/treeir/internal/graph"
	"github.com/tetratelabs/treeir/internal/opcode"
)

// blockKind classifies a pushed block context (spec.md §3's "Block
// context" entity).
type blockKind byte

const (
	blockKindBlock blockKind = iota
	blockKindLoop
	blockKindSwitch
)

// blockContext is one frame of the decoder's control stack, used to
// resolve `break K` (spec.md §4.2: "the K-th enclosing pushed context, 0 =
// innermost"). exitMerge/exitEffectPhi are created lazily on the first
// break or natural exit that targets this frame, then widened by every
// subsequent one — the same lazy-materialize-then-widen shape as the trap
// helper (spec.md §4.4), applied here to ordinary block exits instead of
// traps.
type blockContext struct {
	kind          blockKind
	exitMerge     *graph.Node
	exitEffectPhi *graph.Node
}

// Decoder holds the state of one function-body decode: the byte cursor,
// the function/module environment, the graph builder, and the trap
// inserter it drives (spec.md §2's "Composition").
type Decoder struct {
	r    *bytes.Reader
	body []byte

	env   *funcenv.Environment
	b     *graph.Builder
	traps graph.TrapInserter
	caps  opcode.Capabilities

	blocks []*blockContext

	// unreachable is true immediately after a break or return: the
	// decoder keeps consuming and verifying bytes (spec.md's termination
	// guarantee does not depend on reachability), but stops threading
	// control/effect through the nodes it builds, since there is no live
	// predecessor edge for them to join. Sibling constructs (if/else,
	// block, switch case) consult this to correctly degenerate a
	// two-sided merge into "just the live side" when one side terminated.
	unreachable bool
}

// New creates a Decoder for one function body over [0, len(body)).
func New(body []byte, env *funcenv.Environment, b *graph.Builder, traps graph.TrapInserter, caps opcode.Capabilities) *Decoder {
	return &Decoder{r: bytes.NewReader(body), body: body, env: env, b: b, traps: traps, caps: caps}
}

// Decode runs the top-level statement sequence: spec.md's function body is
// zero or more statement productions decoded back-to-back until the byte
// window is exhausted, with the decoder driving b.Start beforehand and
// synthesizing a terminating return afterward if none was seen.
func Decode(body []byte, env *funcenv.Environment, b *graph.Builder, traps graph.TrapInserter, caps opcode.Capabilities) diagnostic.Result {
	b.Start(env.ParamCount())
	d := New(body, env, b, traps, caps)

	if len(body) == 0 {
		// Empty body: void return synthesized (spec.md §4.2 tie-break).
		b.ReturnVoid()
		return diagnostic.Success
	}

	for d.r.Len() > 0 {
		if err := d.decodeStatement(); err != nil {
			return diagnostic.Failure(toDiagnostic(err))
		}
		if d.unreachable {
			break
		}
	}

	if !d.unreachable {
		// Fell off the end of the body with live control: same
		// well-formedness requirement as an explicitly empty body.
		b.ReturnVoid()
	}
	return diagnostic.Success
}

func toDiagnostic(err error) *diagnostic.Diagnostic {
	var d *diagnostic.Diagnostic
	if asDiag(err, &d) {
		return d
	}
	return diagnostic.New(diagnostic.InternalError, 0, "%v", err)
}

func asDiag(err error, target **diagnostic.Diagnostic) bool {
	if d, ok := err.(*diagnostic.Diagnostic); ok {
		*target = d
		return true
	}
	return false
}

// wrapSecondary attaches productionPC as a failure's secondary token offset
// (spec.md §4.5's pt) when the failure came from somewhere inside a
// multi-byte production's children rather than the production's own
// immediate — block arity, call argument count, switch case count
// (SPEC_FULL.md §4). A Diagnostic that already carries a PT keeps the
// innermost one, since that is the production actually responsible.
func wrapSecondary(err error, productionPC uint32) error {
	if d, ok := err.(*diagnostic.Diagnostic); ok && d.PT == 0 {
		d.WithSecondary(productionPC)
	}
	return err
}

func (d *Decoder) pos() uint32 { return uint32(len(d.body) - d.r.Len()) }

func (d *Decoder) readByte() (byte, uint32, error) {
	pc := d.pos()
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, pc, diagnostic.New(diagnostic.Truncated, pc, "ran off end reading a byte")
	}
	return b, pc, nil
}

func (d *Decoder) readN(n int) ([]byte, uint32, error) {
	pc := d.pos()
	buf := make([]byte, n)
	// bytes.Reader.Read only returns io.EOF when nothing at all remains,
	// so a partial read (fewer bytes left than requested) must be
	// detected by checking the count, not just the error.
	got, err := d.r.Read(buf)
	if err != nil || got != n {
		return nil, pc, diagnostic.New(diagnostic.Truncated, pc, "ran off end reading %d bytes", n)
	}
	return buf, pc, nil
}

func (d *Decoder) readU32() (uint32, error) {
	buf, _, err := d.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// branchToExit widens ctx's shared exit merge/effect-phi, materializing it
// on first use (spec.md §4.4's widen-by-one-input pattern, applied to
// ordinary control joins rather than traps).
func (d *Decoder) branchToExit(ctx *blockContext, control, effect *graph.Node) {
	if ctx.exitMerge == nil {
		ctx.exitMerge = d.b.Merge(control)
		ctx.exitEffectPhi = d.b.EffectPhi(ctx.exitMerge, effect)
		return
	}
	d.b.AppendToMerge(ctx.exitMerge, control)
	d.b.AppendToPhi(ctx.exitEffectPhi, effect)
}

func (d *Decoder) pushBlock(kind blockKind) *blockContext {
	ctx := &blockContext{kind: kind}
	d.blocks = append(d.blocks, ctx)
	return ctx
}

func (d *Decoder) popBlock() { d.blocks = d.blocks[:len(d.blocks)-1] }

// checkType verifies a decoded expression's type against what the caller
// expects, spec.md §4.2's "the child's actual type is end/void when a
// value was required fails TypeError" generalized to any mismatch.
func (d *Decoder) checkType(pc uint32, expected, actual api.PrimitiveType) error {
	if expected == actual {
		return nil
	}
	return diagnostic.New(diagnostic.TypeError, pc, "expected type %s, got %s", expected, actual)
}
