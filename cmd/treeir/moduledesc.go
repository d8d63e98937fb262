package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tetratelabs/treeir/internal/moduleenv"
)

// moduleDescriptor is the JSON shape a caller supplies to describe a module
// environment for a standalone function decode (spec.md §6.2's Module
// Environment has no on-disk format of its own — the module-level loader
// that would produce one is an explicit external collaborator — so this is
// the CLI's own convenience format, mirroring moduleenv.Fake's fields,
// except that it has no field for code handles: toFake leaves every
// signature's code handle nil).
type moduleDescriptor struct {
	Memory *struct {
		Start uint64 `json:"start"`
		End   uint64 `json:"end"`
	} `json:"memory"`
	AsmJS       bool `json:"asmJS"`
	GlobalsBase uint64 `json:"globalsBase"`
	Globals     []struct {
		Offset uint32 `json:"offset"`
		Type   string `json:"type"`
	} `json:"globals"`
	Table []struct {
		SignatureIndex uint32 `json:"signatureIndex"`
	} `json:"table"`
	Signatures []string `json:"signatures"`
	TableSigs  []string `json:"tableSignatures"`
	HasContext bool     `json:"hasContext"`
	Context    string   `json:"context"`
}

func loadModuleDescriptor(path string) (moduleenv.Environment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading module descriptor: %w", err)
	}
	var d moduleDescriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing module descriptor: %w", err)
	}
	return d.toFake()
}

func (d *moduleDescriptor) toFake() (*moduleenv.Fake, error) {
	f := &moduleenv.Fake{
		AsmJSMode:    d.AsmJS,
		GlobalsBase:  uintptr(d.GlobalsBase),
		HasModuleCtx: d.HasContext,
	}
	if d.HasContext {
		f.ModuleCtx = d.Context
	}
	if d.Memory != nil {
		f.Memory = &moduleenv.FakeMemory{Start: uintptr(d.Memory.Start), End: uintptr(d.Memory.End)}
	}
	for _, g := range d.Globals {
		t, err := parseMemType(g.Type)
		if err != nil {
			return nil, fmt.Errorf("global: %w", err)
		}
		f.Globals = append(f.Globals, moduleenv.Global{Offset: g.Offset, Type: t})
	}
	for _, e := range d.Table {
		f.Table = append(f.Table, moduleenv.FunctionTableEntry{SignatureIndex: e.SignatureIndex})
	}
	for _, s := range d.Signatures {
		sig, err := parseSignature(s)
		if err != nil {
			return nil, fmt.Errorf("signatures: %w", err)
		}
		f.Signatures = append(f.Signatures, sig)
		f.CodeHandles = append(f.CodeHandles, nil)
	}
	for _, s := range d.TableSigs {
		sig, err := parseSignature(s)
		if err != nil {
			return nil, fmt.Errorf("tableSignatures: %w", err)
		}
		f.TableSigs = append(f.TableSigs, sig)
	}
	return f, nil
}
