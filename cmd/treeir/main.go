// Command treeir decodes and verifies one function body against the tree
// bytecode format (spec.md §6.1), printing the resulting IR graph's node
// counts or a structured diagnostic on failure.
//
// Grounded on cmd/wazero/wazero.go's overall shape (a thin main() over a
// testable doMain(args, stdout, stderr) that returns an exit code instead
// of calling os.Exit itself), including its stdlib flag.NewFlagSet usage.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tetratelabs/treeir"
	"github.com/tetratelabs/treeir/internal/graph"
	"github.com/tetratelabs/treeir/internal/moduleenv"
	"github.com/tetratelabs/treeir/internal/opcode"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

func doMain(args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	flags := flag.NewFlagSet("treeir", flag.ContinueOnError)
	flags.SetOutput(stderr)

	sigFlag := flags.String("sig", "", `function signature, "params:result" e.g. "i32,i32:i32" (required)`)
	localsFlag := flags.String("locals", "", "declared locals beyond the parameters, comma-separated (e.g. \"i32,f64\")")
	moduleFlag := flags.String("module", "", "path to a JSON module descriptor (omit for a verification-only build)")
	trapFlag := flags.String("trap-terminator", "return", "trap block terminator: \"return\" or \"throw\"")
	throwTargetFlag := flags.String("throw-target", "", "opaque code handle for the runtime-throw call, required when --trap-terminator=throw")
	asmJSFlag := flags.Bool("asmjs", false, "force asm.js checked memory-access semantics module-wide")
	capsFlag := flags.String("caps", "full", `target capabilities: "full" or "none"`)

	if err := flags.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stderr, "usage: treeir [flags] <function-body-file>")
		flags.PrintDefaults()
		return 2
	}
	if *sigFlag == "" {
		fmt.Fprintln(stderr, "--sig is required")
		return 2
	}

	sig, err := parseSignature(*sigFlag)
	if err != nil {
		logger.Error("invalid signature", "error", err)
		return 2
	}
	declaredLocals, err := parseTypeList(*localsFlag)
	if err != nil {
		logger.Error("invalid --locals", "error", err)
		return 2
	}

	var module moduleenv.Environment
	if *moduleFlag != "" {
		module, err = loadModuleDescriptor(*moduleFlag)
		if err != nil {
			logger.Error("invalid --module descriptor", "error", err)
			return 2
		}
	}

	body, err := os.ReadFile(flags.Arg(0))
	if err != nil {
		logger.Error("reading function body", "error", err)
		return 2
	}

	config := treeir.NewCompilationConfig().WithAsmJS(*asmJSFlag)
	switch *trapFlag {
	case "return":
		config = config.WithTrapTerminatorReturn()
	case "throw":
		if *throwTargetFlag == "" {
			logger.Error("--throw-target is required when --trap-terminator=throw")
			return 2
		}
		config = config.WithTrapTerminatorThrow(*throwTargetFlag)
	default:
		logger.Error("invalid --trap-terminator", "value", *trapFlag)
		return 2
	}
	switch *capsFlag {
	case "full":
		config = config.WithCapabilities(opcode.FullCapabilities)
	case "none":
		config = config.WithCapabilities(opcode.NoExtraCapabilities)
	default:
		logger.Error("invalid --caps", "value", *capsFlag)
		return 2
	}

	result, g := treeir.Compile(body, sig, module, declaredLocals, config)
	if !result.OK() {
		d := result.Diagnostic
		logger.Error("compile failed", "code", d.Code, "pc", d.PC, "pt", d.PT, "message", d.Message)
		return 1
	}

	printGraphSummary(stdout, g)
	return 0
}

func printGraphSummary(w io.Writer, g *graph.Graph) {
	counts := g.CountByKind()
	total := 0
	for _, n := range counts {
		total += n
	}
	fmt.Fprintf(w, "ok: %d reachable nodes\n", total)
	for kind, n := range counts {
		fmt.Fprintf(w, "  %-16s %d\n", kind, n)
	}
}
