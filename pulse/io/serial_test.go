// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package io

import "testing"

// TestSerialStatusRegisterIsSingleBit checks that $F002 reports exactly the
// RX-ready bit: 0 when the RX buffer is empty, 1 when it holds a byte, and
// nothing else regardless of how many bytes are queued or how many times
// the register is polled.
func TestSerialStatusRegisterIsSingleBit(t *testing.T) {
	d := NewSerialDevice()

	if got := d.ReadIO(regStatus); got != 0 {
		t.Errorf("status on empty RX = %#x, want 0", got)
	}

	d.EnqueueByte('a')
	d.EnqueueByte('b')
	if got := d.ReadIO(regStatus); got != statusRXReady {
		t.Errorf("status with RX data = %#x, want %#x", got, statusRXReady)
	}

	// Draining RX should not affect status until the buffer is empty.
	d.ReadIO(regRX)
	if got := d.ReadIO(regStatus); got != statusRXReady {
		t.Errorf("status with one byte left = %#x, want %#x", got, statusRXReady)
	}

	d.ReadIO(regRX)
	if got := d.ReadIO(regStatus); got != 0 {
		t.Errorf("status after draining RX = %#x, want 0", got)
	}
}

func TestSerialTXAndLEDRoundTrip(t *testing.T) {
	d := NewSerialDevice()
	d.WriteIO(regTX, 'X')
	if got := d.DrainTX(); len(got) != 1 || got[0] != 'X' {
		t.Errorf("DrainTX = %v, want [X]", got)
	}

	d.WriteIO(regLED, 0x07)
	if got := d.LED(); got != 0x07 {
		t.Errorf("LED = %#x, want 0x07", got)
	}
	if got := d.ReadIO(regLED); got != 0x07 {
		t.Errorf("ReadIO(regLED) = %#x, want 0x07", got)
	}
}
