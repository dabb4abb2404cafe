// compiler.go - per-module compilation: turns a parsed Module's statements
// into a Netlist of wires, aliases and nodes, inferring every wire's width
// from its defining expression per §4.3.
//
// Modules are compiled in source order. A call to a module that has not
// been compiled yet (a forward reference within the same file) is not an
// error here — it is recorded with Width 0 as a placeholder. Any declared
// output width check against such a call is deferred (see
// pendingWidthCheck) until every module in the file has been compiled;
// the flattener independently re-resolves the call's real wire width from
// the callee's declared ports once it too has the complete set available.

// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package wire

import "fmt"

const (
	primNand   = "nand"
	primDFF    = "dff"
	primRAM    = "ram"
	primROM    = "rom"
	primConcat = "concat"
)

func isPrimitiveName(name string) bool {
	switch name {
	case primNand, primDFF, primRAM, primROM, primConcat:
		return true
	default:
		return false
	}
}

// Compiler compiles a sequence of Modules into per-module Netlists,
// keeping the netlists already produced so later modules can resolve
// calls to earlier ones.
type Compiler struct {
	compiled map[string]*Netlist
	tmp      int
}

// NewCompiler creates an empty Compiler.
func NewCompiler() *Compiler {
	return &Compiler{compiled: make(map[string]*Netlist)}
}

// Compile compiles every module in mods, in order, and returns the full set
// of netlists keyed by module name.
func Compile(mods []Module) (map[string]*Netlist, error) {
	c := NewCompiler()
	for _, m := range mods {
		nl, err := c.compileModule(m)
		if err != nil {
			return nil, err
		}
		c.compiled[m.Name] = nl
	}
	// Every module is now compiled, so any output whose declared width
	// check was deferred because it was assigned from a forward-referenced
	// module call can finally be checked against the callee's real width.
	for _, nl := range c.compiled {
		if err := c.resolvePendingChecks(nl); err != nil {
			return nil, err
		}
	}
	return c.compiled, nil
}

// pendingWidthCheck records an output-width check that could not be done
// at the point of assignment because the statement called a module not yet
// compiled (a forward reference within the same file). It is resolved once
// every module has been compiled, in resolvePendingChecks.
type pendingWidthCheck struct {
	target   string
	declared int
	line     int
	col      int
}

// nodeFor returns the last node in nl.Nodes whose Output is target, which
// is the node (if any) produced by assigning to that wire.
func nodeFor(nl *Netlist, target string) (*Node, bool) {
	for i := len(nl.Nodes) - 1; i >= 0; i-- {
		if nl.Nodes[i].Output == target {
			return &nl.Nodes[i], true
		}
	}
	return nil, false
}

// resolvePendingChecks validates every width check that compileModule
// deferred for nl, now that c.compiled holds every module in the file.
func (c *Compiler) resolvePendingChecks(nl *Netlist) error {
	for _, pc := range nl.pendingChecks {
		node, ok := nodeFor(nl, pc.target)
		if !ok || node.Kind != NodeModule {
			continue
		}
		callee, ok := c.compiled[node.Callee]
		if !ok {
			return errf(pc.line, pc.col, "module %q calls undeclared module %q", nl.ModuleName, node.Callee)
		}
		if len(callee.Outputs) == 0 {
			return errf(pc.line, pc.col, "module %q declares no outputs", node.Callee)
		}
		w := callee.Outputs[0].Width
		if w != pc.declared {
			return errf(pc.line, pc.col, "output %q declared with width %d, assigned expression has width %d",
				pc.target, pc.declared, w)
		}
		node.Width = w
		nl.Wires[pc.target] = w
	}
	return nil
}

func (c *Compiler) freshTemp() string {
	c.tmp++
	return fmt.Sprintf("$t%d", c.tmp)
}

func (c *Compiler) compileModule(m Module) (*Netlist, error) {
	nl := newNetlist(m.Name)
	nl.Inputs = m.Inputs
	nl.Outputs = m.Outputs
	for _, p := range m.Inputs {
		nl.Wires[p.Name] = p.Width
	}
	// Output ports carry a declared width independent of their defining
	// expression, so they can be pre-registered before any statement is
	// compiled. This is what makes feedback loops (a sequential element
	// whose own output feeds its next-state logic) referenceable: the
	// producing statement may appear anywhere relative to its consumers.
	for _, p := range m.Outputs {
		nl.Wires[p.Name] = p.Width
	}

	declaredOutWidth := make(map[string]int, len(m.Outputs))
	for _, p := range m.Outputs {
		declaredOutWidth[p.Name] = p.Width
	}
	assigned := make(map[string]bool, len(m.Stmts))

	for _, stmt := range m.Stmts {
		if err := c.compileStmt(nl, stmt); err != nil {
			return nil, err
		}
		assigned[stmt.Target] = true
		w, isOutput := declaredOutWidth[stmt.Target]
		if !isOutput {
			continue
		}
		// A statement assigning an output from a call to a module not yet
		// compiled (forward reference within the same file) gets a 0-width
		// placeholder node here; the real width is only known once every
		// module in the file has been compiled, so the check is deferred
		// to resolvePendingChecks instead of firing a false mismatch now.
		// The producing statement may sit behind an alias chain (`tmp =
		// helper(a); y = tmp`), so the check targets the resolved name.
		resolved, ok := nl.resolveAlias(stmt.Target)
		if !ok {
			return nil, errf(stmt.Line, stmt.Col, "alias cycle detected resolving %q", stmt.Target)
		}
		if node, ok := nodeFor(nl, resolved); ok && node.Kind == NodeModule && len(node.Outputs) == 0 {
			nl.pendingChecks = append(nl.pendingChecks, pendingWidthCheck{
				target: resolved, declared: w, line: stmt.Line, col: stmt.Col,
			})
			continue
		}
		if nl.Wires[resolved] != w {
			return nil, errf(stmt.Line, stmt.Col, "output %q declared with width %d, assigned expression has width %d",
				stmt.Target, w, nl.Wires[resolved])
		}
	}

	for _, p := range m.Outputs {
		if !assigned[p.Name] {
			return nil, errf(m.Line, 0, "module %s: output %q is never assigned", m.Name, p.Name)
		}
	}
	return nl, nil
}

func (c *Compiler) compileStmt(nl *Netlist, stmt Stmt) error {
	if stmt.Expr.Kind == ExprIdent {
		// Bare identifier RHS: zero-cost alias, no node emitted.
		w, err := c.widthOf(nl, stmt.Expr)
		if err != nil {
			return err
		}
		nl.Aliases[stmt.Target] = stmt.Expr.Name
		nl.Wires[stmt.Target] = w
		return nil
	}
	_, _, err := c.compileExpr(nl, stmt.Expr, stmt.Target)
	return err
}

// compileExpr compiles e, emitting whatever nodes are necessary, and
// returns the wire name that now holds its value along with that wire's
// width. If preferred is non-empty, the top-level node produced for e (if
// any) is emitted with that wire as its output; nested sub-expressions
// always get a freshly synthesized name.
func (c *Compiler) compileExpr(nl *Netlist, e Expr, preferred string) (string, int, error) {
	switch e.Kind {
	case ExprIdent:
		w, err := c.widthOf(nl, e)
		return e.Name, w, err

	case ExprNumber:
		name := preferred
		if name == "" {
			name = c.freshTemp()
		}
		// A number's width defaults to the minimum needed to hold its
		// value, but when it is assigned directly to a wire with an
		// already-declared width and no producing node yet (an output
		// port, pre-registered before any statement compiles) it takes
		// that declared width instead, so `out:8: out = 1` yields an
		// 8-bit constant, not a 1-bit one. Once a node has produced the
		// wire, nl.Wires holds that node's width rather than a genuine
		// declaration, so a later reassignment must not inherit it.
		w := bitLength(e.Value)
		if _, hasNode := nodeFor(nl, name); !hasNode {
			if declared, ok := nl.Wires[name]; ok {
				w = declared
			}
		}
		nl.Nodes = append(nl.Nodes, Node{
			Kind: NodeConst, Output: name, Width: w,
			ConstValue: uint32(e.Value), Line: e.Line,
		})
		nl.Wires[name] = w
		return name, w, nil

	case ExprCall:
		return c.compileCall(nl, e, preferred)

	case ExprMember:
		return c.compileMember(nl, e, preferred)

	case ExprIndex:
		baseName, _, err := c.compileExpr(nl, *e.Base, "")
		if err != nil {
			return "", 0, err
		}
		name := preferred
		if name == "" {
			name = c.freshTemp()
		}
		nl.Nodes = append(nl.Nodes, Node{
			Kind: NodeIndex, Output: name, Width: 1,
			Input: baseName, Start: e.Bit, Line: e.Line,
		})
		nl.Wires[name] = 1
		return name, 1, nil

	case ExprSlice:
		baseName, baseW, err := c.compileExpr(nl, *e.Base, "")
		if err != nil {
			return "", 0, err
		}
		if e.Start < 0 || e.Start > e.End || (baseW > 0 && e.End >= baseW) {
			return "", 0, errf(e.Line, e.Col, "invalid slice range [%d:%d]", e.Start, e.End)
		}
		w := e.End - e.Start + 1
		name := preferred
		if name == "" {
			name = c.freshTemp()
		}
		nl.Nodes = append(nl.Nodes, Node{
			Kind: NodeSlice, Output: name, Width: w,
			Input: baseName, Start: e.Start, End: e.End, Line: e.Line,
		})
		nl.Wires[name] = w
		return name, w, nil

	default:
		return "", 0, errf(e.Line, e.Col, "unsupported expression")
	}
}

func (c *Compiler) compileCall(nl *Netlist, e Expr, preferred string) (string, int, error) {
	name := preferred
	if name == "" {
		name = c.freshTemp()
	}

	switch e.Name {
	case primNand:
		if len(e.Args) != 2 {
			return "", 0, errf(e.Line, e.Col, "nand requires 2 arguments, got %d", len(e.Args))
		}
		aName, aW, err := c.compileExpr(nl, e.Args[0], "")
		if err != nil {
			return "", 0, err
		}
		bName, bW, err := c.compileExpr(nl, e.Args[1], "")
		if err != nil {
			return "", 0, err
		}
		w := aW
		if bW > w {
			w = bW
		}
		if aW != bW && aW != 1 && bW != 1 {
			return "", 0, errf(e.Line, e.Col, "width mismatch in nand operands: %d vs %d", aW, bW)
		}
		nl.Nodes = append(nl.Nodes, Node{
			Kind: NodeNand, Output: name, Width: w, A: aName, B: bName, Line: e.Line,
		})
		nl.Wires[name] = w
		return name, w, nil

	case primDFF:
		if len(e.Args) != 2 {
			return "", 0, errf(e.Line, e.Col, "dff requires 2 arguments, got %d", len(e.Args))
		}
		dName, dW, err := c.compileExpr(nl, e.Args[0], "")
		if err != nil {
			return "", 0, err
		}
		clkName, clkW, err := c.compileExpr(nl, e.Args[1], "")
		if err != nil {
			return "", 0, err
		}
		if clkW != 1 {
			return "", 0, errf(e.Line, e.Col, "dff clk must be 1-bit, got width %d", clkW)
		}
		nl.Nodes = append(nl.Nodes, Node{
			Kind: NodeDFF, Output: name, Width: dW, A: dName, B: clkName, Line: e.Line,
		})
		nl.Wires[name] = dW
		return name, dW, nil

	case primRAM:
		if len(e.Args) != 4 {
			return "", 0, errf(e.Line, e.Col, "ram requires 4 arguments (addr, data, write, clk), got %d", len(e.Args))
		}
		addrName, addrW, err := c.compileExpr(nl, e.Args[0], "")
		if err != nil {
			return "", 0, err
		}
		dataName, _, err := c.compileExpr(nl, e.Args[1], "")
		if err != nil {
			return "", 0, err
		}
		writeName, _, err := c.compileExpr(nl, e.Args[2], "")
		if err != nil {
			return "", 0, err
		}
		clkName, _, err := c.compileExpr(nl, e.Args[3], "")
		if err != nil {
			return "", 0, err
		}
		nl.Nodes = append(nl.Nodes, Node{
			Kind: NodeRAM, Output: name, Width: 8,
			Addr: addrName, Data: dataName, Write: writeName, Clk: clkName,
			AddrWidth: addrW, Line: e.Line,
		})
		nl.Wires[name] = 8
		return name, 8, nil

	case primROM:
		if len(e.Args) != 1 {
			return "", 0, errf(e.Line, e.Col, "rom requires 1 argument (addr), got %d", len(e.Args))
		}
		addrName, addrW, err := c.compileExpr(nl, e.Args[0], "")
		if err != nil {
			return "", 0, err
		}
		nl.Nodes = append(nl.Nodes, Node{
			Kind: NodeROM, Output: name, Width: 8, Addr: addrName, AddrWidth: addrW, Line: e.Line,
		})
		nl.Wires[name] = 8
		return name, 8, nil

	case primConcat:
		if len(e.Args) < 1 {
			return "", 0, errf(e.Line, e.Col, "concat requires at least 1 argument")
		}
		var inputs []string
		var widths []int
		total := 0
		for _, arg := range e.Args {
			argName, argW, err := c.compileExpr(nl, arg, "")
			if err != nil {
				return "", 0, err
			}
			inputs = append(inputs, argName)
			widths = append(widths, argW)
			total += argW
		}
		nl.Nodes = append(nl.Nodes, Node{
			Kind: NodeConcat, Output: name, Width: total,
			Inputs: inputs, InputWidths: widths, Line: e.Line,
		})
		nl.Wires[name] = total
		return name, total, nil

	default:
		return c.compileModuleCall(nl, e, name)
	}
}

// compileModuleCall handles instantiation of another module. If the callee
// has already been compiled its first output's width is known immediately;
// otherwise width is left 0 and the Outputs list empty. Any declared-width
// check against this call is deferred to resolvePendingChecks, and the
// flattener separately re-resolves the actual wire width once every module
// in the file is available.
func (c *Compiler) compileModuleCall(nl *Netlist, e Expr, name string) (string, int, error) {
	var argNames []string
	for _, arg := range e.Args {
		argName, _, err := c.compileExpr(nl, arg, "")
		if err != nil {
			return "", 0, err
		}
		argNames = append(argNames, argName)
	}

	node := Node{Kind: NodeModule, Output: name, Callee: e.Name, Args: argNames, Line: e.Line}
	width := 0

	if callee, ok := c.compiled[e.Name]; ok {
		if len(callee.Inputs) != len(argNames) {
			return "", 0, errf(e.Line, e.Col, "module %q called with %d args, expects %d", e.Name, len(argNames), len(callee.Inputs))
		}
		for _, out := range callee.Outputs {
			node.Outputs = append(node.Outputs, out.Name)
		}
		if len(callee.Outputs) > 0 {
			width = callee.Outputs[0].Width
		}
		node.Width = width
	}
	// Unknown callee: deferred to flattening, per §4.3.

	nl.Nodes = append(nl.Nodes, node)
	nl.Wires[name] = width
	return name, width, nil
}

// compileMember resolves `base.field` by looking up the module-instance
// node that produced `base` and the callee output named `field`.
func (c *Compiler) compileMember(nl *Netlist, e Expr, preferred string) (string, int, error) {
	if e.Base.Kind != ExprIdent {
		return "", 0, errf(e.Line, e.Col, "member access is only supported on instance identifiers")
	}
	// The base may itself be an alias of an instance (`v = u` then `v.f`);
	// resolve the chain so the dotted wire is registered under the
	// canonical instance name the flattener pre-maps.
	baseName, ok := nl.resolveAlias(e.Base.Name)
	if !ok {
		return "", 0, errf(e.Line, e.Col, "alias cycle detected resolving %q", e.Base.Name)
	}
	var inst *Node
	for i := range nl.Nodes {
		if nl.Nodes[i].Kind == NodeModule && nl.Nodes[i].Output == baseName {
			inst = &nl.Nodes[i]
			break
		}
	}
	if inst == nil {
		return "", 0, errf(e.Line, e.Col, "%q is not a known module instance", baseName)
	}
	dotted := baseName + "." + e.Field
	width := 0
	if callee, ok := c.compiled[inst.Callee]; ok {
		found := false
		for _, out := range callee.Outputs {
			if out.Name == e.Field {
				width = out.Width
				found = true
				break
			}
		}
		if !found {
			return "", 0, errf(e.Line, e.Col, "module %q has no output %q", inst.Callee, e.Field)
		}
	}
	// The dotted wire is registered but produces no node of its own; the
	// flattener unifies it with the callee's corresponding output wire.
	// A still-unknown callee leaves width 0: the real width is filled in
	// by the flattener's pre-registration, so a pre-declared width (an
	// output port's) must not be clobbered with the placeholder here.
	if width > 0 || nl.Wires[dotted] == 0 {
		nl.Wires[dotted] = width
	}
	if preferred != "" && preferred != dotted {
		nl.Aliases[preferred] = dotted
		if width > 0 {
			nl.Wires[preferred] = width
		} else if _, declared := nl.Wires[preferred]; !declared {
			nl.Wires[preferred] = 0
		}
		return preferred, width, nil
	}
	return dotted, width, nil
}

// widthOf resolves the width of a bare identifier, following its whole
// alias chain via resolveAlias.
func (c *Compiler) widthOf(nl *Netlist, e Expr) (int, error) {
	resolved, ok := nl.resolveAlias(e.Name)
	if !ok {
		return 0, errf(e.Line, e.Col, "alias cycle detected resolving %q", e.Name)
	}
	w, found := nl.Wires[resolved]
	if !found {
		return 0, errf(e.Line, e.Col, "undeclared identifier %q", e.Name)
	}
	return w, nil
}

// bitLength returns the minimum number of bits needed to represent v,
// never less than 1.
func bitLength(v uint64) int {
	if v == 0 {
		return 1
	}
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}
