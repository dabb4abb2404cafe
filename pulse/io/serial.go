// serial.go - SerialDevice is a ring-buffered MMIO terminal device for the
// Pulse CPU's $F000-$F0FF window. Adapted from a ring-buffer terminal
// device built for a different CPU core; here it answers four registers
// (RX/TX/status/LED) instead of that device's full line-editing register set,
// since Pulse has no line-input mode of its own.

// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package io

import "sync"

const (
	regRX     = 0xF000
	regTX     = 0xF001
	regStatus = 0xF002
	regLED    = 0xF030
)

// statusRXReady is the only bit defined in the status register: 1 if the
// RX buffer is non-empty, else 0.
const statusRXReady = 1 << 0

// SerialDevice is a pure state-machine terminal: an input ring buffer fed
// by EnqueueByte, and TX bytes delivered either to a callback or buffered
// for later draining. It owns no goroutines itself — SerialHost supplies
// those for interactive use.
type SerialDevice struct {
	mu sync.Mutex

	rxBuf  [1024]byte
	rxHead int
	rxTail int
	rxLen  int

	txBuf []byte
	led   byte

	onTX func(byte)
}

// NewSerialDevice creates an empty serial device.
func NewSerialDevice() *SerialDevice {
	return &SerialDevice{txBuf: make([]byte, 0, 256)}
}

// OnTX registers a callback invoked (outside the device's lock) whenever
// the CPU writes a byte to the TX register. When set, TX bytes are
// delivered directly to it instead of being buffered.
func (d *SerialDevice) OnTX(fn func(byte)) {
	d.mu.Lock()
	d.onTX = fn
	d.mu.Unlock()
}

// EnqueueByte adds a byte to the RX ring buffer, dropping it if full.
func (d *SerialDevice) EnqueueByte(b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rxLen == len(d.rxBuf) {
		return
	}
	d.rxBuf[d.rxTail] = b
	d.rxTail = (d.rxTail + 1) % len(d.rxBuf)
	d.rxLen++
}

// DrainTX returns and clears everything written to TX so far (used when
// no OnTX callback is registered).
func (d *SerialDevice) DrainTX() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := append([]byte(nil), d.txBuf...)
	d.txBuf = d.txBuf[:0]
	return out
}

// LED returns the last byte written to the LED readback register.
func (d *SerialDevice) LED() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.led
}

// ReadIO implements pulse.IOHandler.
func (d *SerialDevice) ReadIO(addr uint16) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch addr {
	case regRX:
		if d.rxLen == 0 {
			return 0
		}
		b := d.rxBuf[d.rxHead]
		d.rxHead = (d.rxHead + 1) % len(d.rxBuf)
		d.rxLen--
		return b
	case regStatus:
		if d.rxLen > 0 {
			return statusRXReady
		}
		return 0
	case regLED:
		return d.led
	default:
		return 0
	}
}

// WriteIO implements pulse.IOHandler.
func (d *SerialDevice) WriteIO(addr uint16, value byte) {
	var fn func(byte)
	d.mu.Lock()
	switch addr {
	case regTX:
		if d.onTX != nil {
			fn = d.onTX
		} else {
			d.txBuf = append(d.txBuf, value)
		}
	case regLED:
		d.led = value
	}
	d.mu.Unlock()
	if fn != nil {
		fn(value)
	}
}
