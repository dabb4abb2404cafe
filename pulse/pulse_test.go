package pulse

import (
	"bytes"
	"testing"
)

func mustAssemble(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Assemble(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return prog
}

func newTestCPU(code []byte, origin uint16) (*CPU, *Memory) {
	mem := NewMemory()
	mem.LoadAt(origin, code)
	mem.SetResetVector(origin)
	cpu := NewCPU(mem)
	cpu.Reset()
	return cpu, mem
}

func TestAssembleSimpleProgram(t *testing.T) {
	prog := mustAssemble(t, `
		LDA #$05
		STA $00
		LDA #$03
		ADC $00
		HLT
	`)
	cpu, _ := newTestCPU(prog.Binary, prog.Origin)
	cpu.Run(100)
	if !cpu.Halted {
		t.Fatal("expected CPU to halt on HLT")
	}
	if cpu.A != 8 {
		t.Errorf("A = %d, want 8", cpu.A)
	}
}

func TestAssembleBranchLoop(t *testing.T) {
	prog := mustAssemble(t, `
		LDX #$05
	loop:
		DEX
		BNE loop
		HLT
	`)
	cpu, _ := newTestCPU(prog.Binary, prog.Origin)
	cpu.Run(100)
	if cpu.X != 0 {
		t.Errorf("X = %d, want 0", cpu.X)
	}
}

// TestBranchOffsetEncoding pins the canonical encoding of a backward
// branch: DEX at $0200 followed by BNE back to it assembles to
// CA D0 FD (offset -3 from the pc after the branch operand, $0203).
func TestBranchOffsetEncoding(t *testing.T) {
	prog := mustAssemble(t, ".org $0200\nloop: DEX\n BNE loop")
	want := []byte{0xCA, 0xD0, 0xFD}
	if !bytes.Equal(prog.Binary, want) {
		t.Errorf("binary = % X, want % X", prog.Binary, want)
	}
	if prog.Origin != 0x0200 {
		t.Errorf("origin = $%04X, want $0200", prog.Origin)
	}
	if prog.Symbols["loop"] != 0x0200 {
		t.Errorf("loop = $%04X, want $0200", prog.Symbols["loop"])
	}
}

// TestBranchOutOfRangeRejected exercises the assembler's relative-offset
// range check: a branch target more than 127 bytes forward must fail to
// assemble rather than silently truncate.
func TestBranchOutOfRangeRejected(t *testing.T) {
	var b []byte
	b = append(b, "BNE faraway\n"...)
	for i := 0; i < 130; i++ {
		b = append(b, "NOP\n"...)
	}
	b = append(b, "faraway:\n"...)
	b = append(b, "HLT\n"...)

	if _, err := Assemble(string(b)); err == nil {
		t.Fatal("expected out-of-range branch to fail assembly")
	}
}

// TestJSRRTS exercises a subroutine call and return: JSR pushes the
// return address (PC-1, the last byte of the JSR instruction) and RTS
// pops it back and adds one, landing on the instruction after JSR.
func TestJSRRTS(t *testing.T) {
	prog := mustAssemble(t, `
		.org $0200
		JSR sub
		HLT
		.org $0300
	sub:
		LDA #$99
		RTS
	`)
	cpu, _ := newTestCPU(prog.Binary, prog.Origin)
	steps := cpu.Run(100)
	if cpu.A != 0x99 {
		t.Errorf("A = %#x, want 0x99 (subroutine should have run)", cpu.A)
	}
	if cpu.SP != 0xFF {
		t.Errorf("SP = %#x, want 0xFF (stack should be balanced)", cpu.SP)
	}
	if cpu.Cycles != 4 {
		t.Errorf("cycles = %d, want 4 (JSR, LDA, RTS, HLT)", cpu.Cycles)
	}
	if steps != 4 {
		t.Errorf("steps = %d, want 4", steps)
	}
	// PC sits one past the HLT opcode at $0203.
	if cpu.PC != 0x0204 {
		t.Errorf("PC = $%04X, want $0204", cpu.PC)
	}
}

// TestStackPointerWrap checks the modulo-256 stack: pushing with SP=0
// stores at $0100 and leaves SP=$FF.
func TestStackPointerWrap(t *testing.T) {
	cpu, mem := newTestCPU([]byte{0x48}, 0x8000) // PHA
	cpu.SP = 0x00
	cpu.A = 0x5A
	cpu.Step()
	if got := mem.Read(0x0100); got != 0x5A {
		t.Errorf("stack byte at $0100 = %#x, want 0x5A", got)
	}
	if cpu.SP != 0xFF {
		t.Errorf("SP = %#x, want 0xFF after wrap", cpu.SP)
	}
}

func TestAdcSbcFlags(t *testing.T) {
	mem := NewMemory()
	cpu := NewCPU(mem)

	cpu.A = 0x50
	cpu.setFlag(FlagC, false)
	cpu.adc(0x50)
	if cpu.A != 0xA0 {
		t.Errorf("A = %#x, want 0xA0", cpu.A)
	}
	if !cpu.flag(FlagV) {
		t.Error("expected overflow flag set on 0x50+0x50")
	}
	if cpu.flag(FlagC) {
		t.Error("expected no carry from 0x50+0x50")
	}
	if !cpu.flag(FlagN) {
		t.Error("expected negative flag set on 0xA0")
	}
	if cpu.flag(FlagZ) {
		t.Error("expected zero flag clear on 0xA0")
	}

	cpu.A = 0x05
	cpu.setFlag(FlagC, true)
	cpu.sbc(0x03)
	if cpu.A != 0x02 {
		t.Errorf("A = %#x, want 0x02", cpu.A)
	}
	if !cpu.flag(FlagC) {
		t.Error("expected carry (no borrow) set from 5-3")
	}
}

// TestAssembleConstant exercises an EQUALS constant statement: the symbol
// is available to an immediate operand the same way a label would be.
func TestAssembleConstant(t *testing.T) {
	prog := mustAssemble(t, `
		VALUE = $2A
		LDA #VALUE
		HLT
	`)
	cpu, _ := newTestCPU(prog.Binary, prog.Origin)
	cpu.Run(100)
	if cpu.A != 0x2A {
		t.Errorf("A = %#x, want 0x2A", cpu.A)
	}
	if prog.Symbols["VALUE"] != 0x2A {
		t.Errorf("VALUE = %#x, want 0x2A in symbol table", prog.Symbols["VALUE"])
	}
}

// TestAssembleWordAndByteDirectives checks raw byte emission for .word
// (little-endian, 2 bytes) and .byte/.db (1 byte each, comma-separated).
func TestAssembleWordAndByteDirectives(t *testing.T) {
	prog := mustAssemble(t, `
		.org $0200
		.word $1234
		.byte $AA, $BB
		.db $CC
	`)
	if prog.Origin != 0x0200 {
		t.Errorf("origin = $%04X, want $0200", prog.Origin)
	}
	want := []byte{0x34, 0x12, 0xAA, 0xBB, 0xCC}
	if !bytes.Equal(prog.Binary, want) {
		t.Errorf("binary = % X, want % X", prog.Binary, want)
	}
}

// TestAssembleMultiRegionOrg exercises a second .org moving pc forward
// into a separate region: the gap between regions must read as 0, and an
// absolute reference to a label in the later region must resolve and load
// correctly at runtime.
func TestAssembleMultiRegionOrg(t *testing.T) {
	prog := mustAssemble(t, `
		.org $0200
		LDA table
		STA $00
		HLT
		.org $0300
	table:
		.byte $11, $22, $33
	`)
	if prog.Origin != 0x0200 {
		t.Errorf("origin = $%04X, want $0200", prog.Origin)
	}
	wantLen := 0x0300 + 3 - 0x0200
	if len(prog.Binary) != wantLen {
		t.Fatalf("binary length = %d, want %d", len(prog.Binary), wantLen)
	}
	// LDA table (3 bytes) + STA $00 (3 bytes) + HLT (1 byte) = 7 bytes of
	// instructions starting at offset 0; everything up to the $0300 region
	// (offset 0x0100) must read as a zero-filled gap.
	for i := 7; i < 0x0100; i++ {
		if prog.Binary[i] != 0 {
			t.Fatalf("gap byte at offset %d = %#x, want 0", i, prog.Binary[i])
		}
	}
	cpu, _ := newTestCPU(prog.Binary, prog.Origin)
	cpu.Run(100)
	if cpu.A != 0x11 {
		t.Errorf("A = %#x, want 0x11 (loaded from table)", cpu.A)
	}
}

// TestSourceMap checks that each instruction's first byte address maps
// back to the source line it was assembled from.
func TestSourceMap(t *testing.T) {
	prog := mustAssemble(t, ".org $0200\nLDA #$01\nSTA $00\nHLT")
	wantLines := map[uint16]int{
		0x0200: 2, // LDA #$01
		0x0202: 3, // STA $00
		0x0205: 4, // HLT
	}
	for addr, line := range wantLines {
		if got := prog.SourceMap[addr]; got != line {
			t.Errorf("source map[$%04X] = %d, want %d", addr, got, line)
		}
	}
}

func TestUnknownOpcodeHalts(t *testing.T) {
	cpu, _ := newTestCPU([]byte{0x03}, 0x8000) // $03 is unassigned in this set
	cpu.Step()
	if !cpu.Halted {
		t.Fatal("expected unknown opcode to halt the CPU")
	}
	if cpu.Cycles != 0 {
		t.Errorf("cycles = %d, want 0 (no instruction completed)", cpu.Cycles)
	}
}

// TestResetVectorWrap reads the reset vector little-endian from
// $FFFC/$FFFD, and checks that a word read starting at $FFFF wraps to
// $0000 for its high byte.
func TestResetVectorWrap(t *testing.T) {
	mem := NewMemory()
	mem.LoadAt(0xFFFC, []byte{0x34, 0x12})
	cpu := NewCPU(mem)
	cpu.Reset()
	if cpu.PC != 0x1234 {
		t.Errorf("PC = $%04X, want $1234", cpu.PC)
	}
	if cpu.ReadWord(0xFFFC) != 0x1234 {
		t.Errorf("ReadWord($FFFC) = $%04X, want $1234", cpu.ReadWord(0xFFFC))
	}
	// A word read straddling $FFFF wraps to $0000 for its high byte.
	cpu.WriteByte(0xFFFF, 0x78)
	cpu.WriteByte(0x0000, 0x56)
	if got := cpu.ReadWord(0xFFFF); got != 0x5678 {
		t.Errorf("ReadWord($FFFF) = $%04X, want $5678", got)
	}
}

func TestSerialIOLoopback(t *testing.T) {
	prog := mustAssemble(t, `
		LDA $F000
		STA $F001
		HLT
	`)
	mem := NewMemory()
	mem.LoadAt(prog.Origin, prog.Binary)
	mem.SetResetVector(prog.Origin)

	dev := newMockSerial()
	mem.IO = dev
	dev.rx = 'X'

	cpu := NewCPU(mem)
	cpu.Reset()
	cpu.Run(100)
	if dev.tx != 'X' {
		t.Errorf("tx = %q, want %q", dev.tx, 'X')
	}
}

type mockSerial struct {
	rx byte
	tx byte
}

func newMockSerial() *mockSerial { return &mockSerial{} }

func (m *mockSerial) ReadIO(addr uint16) byte {
	if addr == RegSerialRX {
		return m.rx
	}
	return 0
}

func (m *mockSerial) WriteIO(addr uint16, value byte) {
	if addr == RegSerialTX {
		m.tx = value
	}
}
