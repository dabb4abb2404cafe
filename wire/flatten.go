// flatten.go - recursive inlining of module instances into a single flat
// netlist with a global wire-index space, per §4.4.
//
// Forward references are handled by pre-registering every module
// instance's output wires (with their declared widths, which are always
// known statically from the callee's port list) before either recursing
// into the callee or emitting any primitive node in the current scope.
// By the time a primitive references `instance.field`, the index for
// that wire already exists no matter what order the statements appeared
// in source — the callee's producer writes directly into it once
// recursion reaches that instance.
//
// All allocation state lives on the flattener value created fresh inside
// Flatten, never at package scope, so concurrent compilations never race.

// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package wire

import "strings"

// FlatPort names an input or output of the flattened circuit.
type FlatPort struct {
	Name  string
	Index int
	Width int
}

// FlatNode is a primitive node with every operand and output rewritten to
// a wire index. Masks are precomputed once here so the evaluator's hot
// loop never recomputes them.
type FlatNode struct {
	Kind  NodeKind
	Out   int
	Width int
	Mask  uint32

	ConstValue uint32

	A, B int // nand operands, or dff (d, clk)

	// ABroadcast/BBroadcast mark a 1-bit nand operand paired with a wider
	// one: its single bit is replicated across the node width before the
	// AND, so nand(x, 1) over an 8-bit x reads as ~x.
	ABroadcast, BBroadcast bool

	Input      int // index/slice operand
	Start, End int

	Inputs      []int
	InputWidths []int

	Addr, Data, Write, Clk int
	AddrWidth              int
}

// FlatCircuit is the fully inlined netlist, ready for scheduling.
type FlatCircuit struct {
	WireCount  int
	WireNames  map[string]int
	WireWidths []int
	Inputs     []FlatPort
	Outputs    []FlatPort
	Nodes      []FlatNode
	DFFNodes   []int
	RAMNodes   []int
	ROMNodes   []int
}

type flattener struct {
	compiled   map[string]*Netlist
	wireNames  map[string]int
	wireWidths []int
	nodes      []FlatNode
}

// Flatten inlines every module instance reachable from topName into a
// single FlatCircuit.
func Flatten(compiled map[string]*Netlist, topName string) (*FlatCircuit, error) {
	top, ok := compiled[topName]
	if !ok {
		return nil, errf(0, 0, "unknown top module %q", topName)
	}
	f := &flattener{compiled: compiled, wireNames: make(map[string]int)}

	for _, p := range top.Inputs {
		f.alloc(p.Name, p.Width)
	}

	if err := f.flattenModule(top, ""); err != nil {
		return nil, err
	}

	fc := &FlatCircuit{
		WireCount:  len(f.wireNames),
		WireNames:  f.wireNames,
		WireWidths: f.wireWidths,
		Nodes:      f.nodes,
	}
	for _, p := range top.Inputs {
		idx, ok := f.wireNames[p.Name]
		if !ok {
			return nil, errf(0, 0, "input %q never allocated", p.Name)
		}
		fc.Inputs = append(fc.Inputs, FlatPort{Name: p.Name, Index: idx, Width: p.Width})
	}
	for _, p := range top.Outputs {
		idx, err := f.resolveLocal(top, "", p.Name)
		if err != nil {
			return nil, err
		}
		fc.Outputs = append(fc.Outputs, FlatPort{Name: p.Name, Index: idx, Width: p.Width})
	}
	for i, n := range fc.Nodes {
		switch n.Kind {
		case NodeDFF:
			fc.DFFNodes = append(fc.DFFNodes, i)
		case NodeRAM:
			fc.RAMNodes = append(fc.RAMNodes, i)
		case NodeROM:
			fc.ROMNodes = append(fc.ROMNodes, i)
		}
	}
	return fc, nil
}

// alloc returns the index for global, allocating a fresh one with the
// given width if it does not exist yet.
func (f *flattener) alloc(global string, width int) int {
	if idx, ok := f.wireNames[global]; ok {
		return idx
	}
	idx := len(f.wireWidths)
	f.wireNames[global] = idx
	f.wireWidths = append(f.wireWidths, width)
	return idx
}

// bind makes global resolve to an already-allocated index, typically the
// caller's wire that a callee's input or output is inlined directly into.
func (f *flattener) bind(global string, idx int) {
	f.wireNames[global] = idx
}

// remap redirects every name currently resolving to from so it resolves
// to to instead. Used when a callee output turns out to be a passthrough
// of a wire that already has an index (an input bound to the caller's
// argument): the caller-side wire pre-registered for that output unifies
// with the existing index rather than keeping its own.
func (f *flattener) remap(from, to int) {
	for name, idx := range f.wireNames {
		if idx == from {
			f.wireNames[name] = to
		}
	}
}

// resolveLocal follows nl's alias chain for a local (possibly dotted)
// name, prefixes the result with the current inlining scope, and returns
// the global wire index. The index must already have been allocated by
// the time this is called for any dotted (instance.field) name — the
// module-node phase of flattenModule guarantees that.
func (f *flattener) resolveLocal(nl *Netlist, prefix, local string) (int, error) {
	resolved, ok := nl.resolveAlias(local)
	if !ok {
		return 0, errf(0, 0, "alias cycle resolving %q in module %q", local, nl.ModuleName)
	}
	global := prefix + resolved
	if idx, ok := f.wireNames[global]; ok {
		return idx, nil
	}
	if strings.Contains(resolved, ".") {
		return 0, errf(0, 0, "%q is not a known submodule output in module %q", resolved, nl.ModuleName)
	}
	width, ok := nl.Wires[resolved]
	if !ok {
		return 0, errf(0, 0, "undeclared wire %q in module %q", resolved, nl.ModuleName)
	}
	return f.alloc(global, width), nil
}

// flattenModule emits nl's contents into the global wire space, with every
// wire name prefixed by prefix (the dotted instantiation path leading to
// this scope; "" at the root).
func (f *flattener) flattenModule(nl *Netlist, prefix string) error {
	type pending struct {
		node       Node
		calleeName string
		callee     *Netlist
		outIdx     map[string]int // callee output name -> caller-side wire index
	}
	var modules []pending

	// Module-node phase, part 1: pre-register every instance's output
	// wires under their declared widths before recursing into any of
	// them, so sibling instances and primitives that reference
	// `instance.field` out of source order already find a home for it.
	for _, node := range nl.Nodes {
		if node.Kind != NodeModule {
			continue
		}
		callee, ok := f.compiled[node.Callee]
		if !ok {
			return errf(node.Line, 0, "unknown module %q called from %q", node.Callee, nl.ModuleName)
		}
		if len(node.Args) != len(callee.Inputs) {
			return errf(node.Line, 0, "module %q expects %d argument(s), got %d", node.Callee, len(callee.Inputs), len(node.Args))
		}
		if len(callee.Outputs) == 0 {
			return errf(node.Line, 0, "module %q declares no outputs", node.Callee)
		}
		primaryGlobal := prefix + node.Output
		primaryIdx := f.alloc(primaryGlobal, callee.Outputs[0].Width)

		// The first output is addressable both as the instance base name
		// and as instance.firstOutput; secondary outputs only by their
		// dotted form.
		outIdx := map[string]int{callee.Outputs[0].Name: primaryIdx}
		f.bind(prefix+node.Output+"."+callee.Outputs[0].Name, primaryIdx)
		for _, out := range callee.Outputs[1:] {
			dotted := prefix + node.Output + "." + out.Name
			outIdx[out.Name] = f.alloc(dotted, out.Width)
		}
		modules = append(modules, pending{node: node, calleeName: node.Callee, callee: callee, outIdx: outIdx})
	}

	// Module-node phase, part 2: bind each instance's inputs to the
	// caller's argument wires, bind its outputs to the indices
	// pre-registered above, and recurse.
	for _, pm := range modules {
		calleePrefix := prefix + pm.node.Output + "."
		for i, argExpr := range pm.node.Args {
			argIdx, err := f.resolveLocal(nl, prefix, argExpr)
			if err != nil {
				return err
			}
			inPort := pm.callee.Inputs[i]
			if f.wireWidths[argIdx] != inPort.Width {
				return errf(pm.node.Line, 0, "argument %d to %q: width %d does not match input %q (width %d)",
					i, pm.calleeName, f.wireWidths[argIdx], inPort.Name, inPort.Width)
			}
			f.bind(calleePrefix+inPort.Name, argIdx)
		}
		// Pre-map each callee output to the caller-side index registered in
		// part 1 — through the callee's alias chain, so a declared output
		// that is a whole-wire passthrough of an internal wire (or of a
		// nested instance's dotted output) makes its real producer write
		// straight into the caller's wire. If the alias lands on a wire
		// already bound (an input passthrough), the caller's wire unifies
		// with that existing index instead.
		for _, out := range pm.callee.Outputs {
			callerIdx := pm.outIdx[out.Name]
			resolved, ok := pm.callee.resolveAlias(out.Name)
			if !ok {
				return errf(pm.node.Line, 0, "alias cycle resolving output %q of module %q", out.Name, pm.calleeName)
			}
			target := calleePrefix + resolved
			if existing, bound := f.wireNames[target]; bound && existing != callerIdx {
				f.remap(callerIdx, existing)
			} else {
				f.bind(target, callerIdx)
				if resolved != out.Name {
					f.bind(calleePrefix+out.Name, callerIdx)
				}
			}
		}
		if err := f.flattenModule(pm.callee, calleePrefix); err != nil {
			return err
		}
	}

	// Primitive-node phase: now that every instance in this scope (and
	// recursively below it) has real wire indices, resolve and emit the
	// primitives in source order.
	for _, node := range nl.Nodes {
		if node.Kind == NodeModule {
			continue
		}
		if err := f.emitPrimitive(nl, prefix, node); err != nil {
			return err
		}
	}
	return nil
}

func widthMask(width int) uint32 {
	if width >= 32 {
		return 0xFFFFFFFF
	}
	return (uint32(1) << uint(width)) - 1
}

func (f *flattener) emitPrimitive(nl *Netlist, prefix string, node Node) error {
	outIdx, err := f.resolveLocal(nl, prefix, node.Output)
	if err != nil {
		return err
	}
	fn := FlatNode{Kind: node.Kind, Out: outIdx, Width: node.Width, Mask: widthMask(node.Width)}

	switch node.Kind {
	case NodeConst:
		fn.ConstValue = node.ConstValue & fn.Mask

	case NodeNand:
		a, err := f.resolveLocal(nl, prefix, node.A)
		if err != nil {
			return err
		}
		b, err := f.resolveLocal(nl, prefix, node.B)
		if err != nil {
			return err
		}
		fn.A, fn.B = a, b
		fn.ABroadcast = node.Width > 1 && f.wireWidths[a] == 1
		fn.BBroadcast = node.Width > 1 && f.wireWidths[b] == 1

	case NodeDFF:
		d, err := f.resolveLocal(nl, prefix, node.A)
		if err != nil {
			return err
		}
		clk, err := f.resolveLocal(nl, prefix, node.B)
		if err != nil {
			return err
		}
		fn.A, fn.B = d, clk

	case NodeIndex:
		in, err := f.resolveLocal(nl, prefix, node.Input)
		if err != nil {
			return err
		}
		fn.Input, fn.Start = in, node.Start

	case NodeSlice:
		in, err := f.resolveLocal(nl, prefix, node.Input)
		if err != nil {
			return err
		}
		fn.Input, fn.Start, fn.End = in, node.Start, node.End

	case NodeConcat:
		for i, src := range node.Inputs {
			idx, err := f.resolveLocal(nl, prefix, src)
			if err != nil {
				return err
			}
			fn.Inputs = append(fn.Inputs, idx)
			fn.InputWidths = append(fn.InputWidths, node.InputWidths[i])
		}

	case NodeRAM, NodeROM:
		addr, err := f.resolveLocal(nl, prefix, node.Addr)
		if err != nil {
			return err
		}
		fn.Addr, fn.AddrWidth = addr, node.AddrWidth
		if node.Kind == NodeRAM {
			data, err := f.resolveLocal(nl, prefix, node.Data)
			if err != nil {
				return err
			}
			write, err := f.resolveLocal(nl, prefix, node.Write)
			if err != nil {
				return err
			}
			clk, err := f.resolveLocal(nl, prefix, node.Clk)
			if err != nil {
				return err
			}
			fn.Data, fn.Write, fn.Clk = data, write, clk
		}

	default:
		return errf(node.Line, 0, "internal: unhandled node kind %d in flatten", node.Kind)
	}

	f.nodes = append(f.nodes, fn)
	return nil
}
