// eval.go - the circuit evaluator: wire values, sequential state, and the
// per-step update rule described in §4.6.
//
// A step is: DFF outputs keep whatever was latched by the previous
// step's edge-triggered update; every RAM/ROM read happens up front,
// using the address wire's start-of-step value; a single combinational
// pass runs in schedule order; then rising clock edges are detected on
// every DFF and RAM and, if any, the state change is committed and
// exactly one more combinational pass runs so consumers see the new
// state within the same step. Memory reads are not repeated in that
// second pass, and nothing iterates to a fixpoint — two passes, at most.

// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Circuit is a flattened netlist bound to mutable simulation state:
// current wire values, latched clocks for edge detection, and RAM/ROM
// backing memories.
type Circuit struct {
	Flat   *FlatCircuit
	Sched  *Schedule
	Values []uint32

	prevClk map[int]uint32 // node index -> previous clock sample
	ram     map[int][]uint32
	rom     map[int][]uint32
}

// NewCircuit builds a Circuit ready to simulate from a flattened netlist.
func NewCircuit(fc *FlatCircuit) *Circuit {
	c := &Circuit{
		Flat:    fc,
		Sched:   BuildSchedule(fc),
		Values:  make([]uint32, fc.WireCount),
		prevClk: make(map[int]uint32),
		ram:     make(map[int][]uint32),
		rom:     make(map[int][]uint32),
	}
	for _, i := range fc.RAMNodes {
		c.ram[i] = make([]uint32, 1<<uint(fc.Nodes[i].AddrWidth))
	}
	for _, i := range fc.ROMNodes {
		c.rom[i] = make([]uint32, 1<<uint(fc.Nodes[i].AddrWidth))
	}
	return c
}

// Reset zeroes every wire, every RAM cell and every latched clock sample.
// ROM contents survive a reset — they are program storage, not state.
func (c *Circuit) Reset() {
	for i := range c.Values {
		c.Values[i] = 0
	}
	for k := range c.prevClk {
		c.prevClk[k] = 0
	}
	for i := range c.ram {
		for j := range c.ram[i] {
			c.ram[i][j] = 0
		}
	}
}

func (c *Circuit) evalNode(n FlatNode) uint32 {
	switch n.Kind {
	case NodeConst:
		return n.ConstValue & n.Mask
	case NodeNand:
		a, b := c.Values[n.A], c.Values[n.B]
		if n.ABroadcast {
			if a&1 != 0 {
				a = n.Mask
			} else {
				a = 0
			}
		}
		if n.BBroadcast {
			if b&1 != 0 {
				b = n.Mask
			} else {
				b = 0
			}
		}
		return ^(a & b) & n.Mask
	case NodeIndex:
		return (c.Values[n.Input] >> uint(n.Start)) & 1
	case NodeSlice:
		width := n.End - n.Start + 1
		return (c.Values[n.Input] >> uint(n.Start)) & widthMask(width)
	case NodeConcat:
		var out uint32
		shift := 0
		for i := len(n.Inputs) - 1; i >= 0; i-- {
			v := c.Values[n.Inputs[i]] & widthMask(n.InputWidths[i])
			out |= v << uint(shift)
			shift += n.InputWidths[i]
		}
		return out & n.Mask
	default:
		return 0
	}
}

// runCombinational runs one combinational pass in schedule order. DFF,
// RAM and ROM nodes are skipped entirely: their output wires hold
// sequential state (DFF) or the read latched at the start of the step
// (RAM/ROM), neither of which is recomputed mid-pass.
func (c *Circuit) runCombinational() {
	for _, idx := range c.Sched.Order {
		n := c.Flat.Nodes[idx]
		switch n.Kind {
		case NodeDFF, NodeRAM, NodeROM:
			continue
		default:
			c.Values[n.Out] = c.evalNode(n)
		}
	}
}

// readMemories performs each RAM/ROM node's read, in declaration order,
// using the address wire's value as of the start of the step. The reads
// happen before the combinational pass so every consumer of a memory
// output observes the same snapshot regardless of schedule position.
func (c *Circuit) readMemories() {
	for _, idx := range c.Flat.ROMNodes {
		n := c.Flat.Nodes[idx]
		addr := c.Values[n.Addr] & widthMask(n.AddrWidth)
		c.Values[n.Out] = c.rom[idx][addr] & n.Mask
	}
	for _, idx := range c.Flat.RAMNodes {
		n := c.Flat.Nodes[idx]
		addr := c.Values[n.Addr] & widthMask(n.AddrWidth)
		c.Values[n.Out] = c.ram[idx][addr] & n.Mask
	}
}

// Step advances the circuit by one clock tick.
func (c *Circuit) Step() {
	c.readMemories()
	c.runCombinational()

	changed := false
	for _, idx := range c.Flat.DFFNodes {
		n := c.Flat.Nodes[idx]
		clk := c.Values[n.B]
		prev := c.prevClk[idx]
		if prev == 0 && clk != 0 {
			newVal := c.Values[n.A] & n.Mask
			if newVal != c.Values[n.Out] {
				c.Values[n.Out] = newVal
				changed = true
			}
		}
		c.prevClk[idx] = clk
	}
	for _, idx := range c.Flat.RAMNodes {
		n := c.Flat.Nodes[idx]
		clk := c.Values[n.Clk]
		prev := c.prevClk[idx]
		if prev == 0 && clk != 0 && c.Values[n.Write] != 0 {
			addr := c.Values[n.Addr] & widthMask(n.AddrWidth)
			data := c.Values[n.Data] & n.Mask
			if c.ram[idx][addr] != data {
				c.ram[idx][addr] = data
				changed = true
			}
		}
		c.prevClk[idx] = clk
	}

	if changed {
		c.runCombinational()
	}
}

// Run advances the circuit by n clock ticks.
func (c *Circuit) Run(n int) {
	for i := 0; i < n; i++ {
		c.Step()
	}
}

// SetInput sets the value of a top-level input wire, masked to its
// declared width. Writing to a name that is not an input is a silent
// no-op — the runtime lookup surface never aborts a session.
func (c *Circuit) SetInput(name string, value uint32) {
	for _, p := range c.Flat.Inputs {
		if p.Name == name {
			c.Values[p.Index] = value & widthMask(p.Width)
			return
		}
	}
}

// GetOutput returns the current value of a top-level output wire, or 0
// if no output has that name.
func (c *Circuit) GetOutput(name string) uint32 {
	for _, p := range c.Flat.Outputs {
		if p.Name == name {
			return c.Values[p.Index]
		}
	}
	return 0
}

// GetWire looks up any internal wire by its flattened dotted name,
// honoring an optional bit-index (`name[3]`) or inclusive slice
// (`name[7:0]`) suffix. An unknown wire name returns 0 and no error —
// per the runtime lookup contract, a missing wire reads as 0 rather
// than aborting a testbench session.
func (c *Circuit) GetWire(ref string) uint32 {
	base, bit, sliceHi, sliceLo, kind := parseWireRef(ref)
	idx, ok := c.Flat.WireNames[base]
	if !ok {
		return 0
	}
	v := c.Values[idx]
	switch kind {
	case wireRefBit:
		return (v >> uint(bit)) & 1
	case wireRefSlice:
		width := sliceHi - sliceLo + 1
		return (v >> uint(sliceLo)) & widthMask(width)
	default:
		return v
	}
}

// GetAllWires returns a snapshot of every flattened wire's value, keyed
// by its dotted global name.
func (c *Circuit) GetAllWires() map[string]uint32 {
	out := make(map[string]uint32, len(c.Flat.WireNames))
	for name, idx := range c.Flat.WireNames {
		out[name] = c.Values[idx]
	}
	return out
}

// LoadROM loads data into the nth ROM of the flattened circuit, in
// flattened node order (a submodule instance's ROMs come before the ROMs
// of the module that instantiates it). Passing -1 for romOrdinal selects the circuit's
// single ROM, and is an error if the circuit declares zero or more than one.
func (c *Circuit) LoadROM(romOrdinal int, data []uint32) error {
	if romOrdinal == -1 {
		switch len(c.Flat.ROMNodes) {
		case 0:
			return fmt.Errorf("circuit declares no rom")
		case 1:
			romOrdinal = 0
		default:
			return fmt.Errorf("circuit declares %d roms, ordinal required", len(c.Flat.ROMNodes))
		}
	}
	if romOrdinal < 0 || romOrdinal >= len(c.Flat.ROMNodes) {
		return fmt.Errorf("no such rom #%d", romOrdinal)
	}
	idx := c.Flat.ROMNodes[romOrdinal]
	mem := c.rom[idx]
	for i, v := range data {
		if i >= len(mem) {
			break
		}
		mem[i] = v & c.Flat.Nodes[idx].Mask
	}
	return nil
}

type wireRefKind int

const (
	wireRefWhole wireRefKind = iota
	wireRefBit
	wireRefSlice
)

// parseWireRef splits an optional [k] or [a:b] suffix off a wire name.
// Slice endpoints are accepted in either order ([0:7] HDL style or [7:0]
// verilog habit) and normalized to lo <= hi.
func parseWireRef(ref string) (base string, bit, sliceHi, sliceLo int, kind wireRefKind) {
	lb := strings.IndexByte(ref, '[')
	if lb < 0 || !strings.HasSuffix(ref, "]") {
		return ref, 0, 0, 0, wireRefWhole
	}
	base = ref[:lb]
	inner := ref[lb+1 : len(ref)-1]
	if colon := strings.IndexByte(inner, ':'); colon >= 0 {
		a, _ := strconv.Atoi(inner[:colon])
		b, _ := strconv.Atoi(inner[colon+1:])
		if a < b {
			a, b = b, a
		}
		return base, 0, a, b, wireRefSlice
	}
	b, _ := strconv.Atoi(inner)
	return base, b, 0, 0, wireRefBit
}
