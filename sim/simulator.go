// simulator.go - the public entry point for running a compiled Wire HDL
// circuit: parse, compile and flatten a source file once, then drive it
// step by step. This is the surface wiresim and the Lua testbench both
// build on.

// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package sim

import (
	"fmt"

	"github.com/wireforge/wirecore/wire"
)

// Simulator owns one flattened circuit and its mutable evaluation state.
type Simulator struct {
	circuit *wire.Circuit
}

// CreateSimulator parses, compiles and flattens source down to topModule
// and returns a Simulator ready to step.
func CreateSimulator(source, topModule string) (*Simulator, error) {
	mods, err := wire.ParseSource(source)
	if err != nil {
		return nil, err
	}
	compiled, err := wire.Compile(mods)
	if err != nil {
		return nil, err
	}
	flat, err := wire.Flatten(compiled, topModule)
	if err != nil {
		return nil, err
	}
	return &Simulator{circuit: wire.NewCircuit(flat)}, nil
}

// SetInput sets a top-level input wire. Unknown names are ignored.
func (s *Simulator) SetInput(name string, value uint32) {
	s.circuit.SetInput(name, value)
}

// GetOutput reads a top-level output wire; unknown names read as 0.
func (s *Simulator) GetOutput(name string) uint32 {
	return s.circuit.GetOutput(name)
}

// GetWire reads any internal wire by its flattened dotted name, with an
// optional bit or slice suffix (`alu.z[3]`, `alu.z[7:0]`). A name that
// does not resolve to a real wire reads as 0.
func (s *Simulator) GetWire(ref string) uint32 {
	return s.circuit.GetWire(ref)
}

// GetAllWires returns a snapshot of every wire in the flattened circuit.
func (s *Simulator) GetAllWires() map[string]uint32 {
	return s.circuit.GetAllWires()
}

// LoadROM loads data into the nth ROM of the flattened circuit (see
// wire.Circuit.LoadROM for the ordering and for ordinal -1).
func (s *Simulator) LoadROM(ordinal int, data []uint32) error {
	return s.circuit.LoadROM(ordinal, data)
}

// Step advances the circuit by one clock tick.
func (s *Simulator) Step() {
	s.circuit.Step()
}

// Run advances the circuit by n clock ticks.
func (s *Simulator) Run(n int) {
	s.circuit.Run(n)
}

// Reset zeroes every wire, latched clock and RAM cell.
func (s *Simulator) Reset() {
	s.circuit.Reset()
}

// Inputs lists every top-level input's name and width.
func (s *Simulator) Inputs() []wire.FlatPort {
	return s.circuit.Flat.Inputs
}

// Outputs lists every top-level output's name and width.
func (s *Simulator) Outputs() []wire.FlatPort {
	return s.circuit.Flat.Outputs
}

func (s *Simulator) String() string {
	return fmt.Sprintf("Simulator(wires=%d, nodes=%d)", s.circuit.Flat.WireCount, len(s.circuit.Flat.Nodes))
}
