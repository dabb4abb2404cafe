// host.go - SerialHost reads raw stdin and feeds bytes into a
// SerialDevice. Adapted from a raw-mode stdin reader built for a
// different terminal device; Pulse only has one input mode (no
// line-input toggle), so every byte is routed straight to EnqueueByte.

// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package io

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// SerialHost reads raw stdin in a background goroutine and forwards
// every byte to a SerialDevice. Only meant for interactive use — test
// code drives SerialDevice.EnqueueByte directly instead.
type SerialHost struct {
	dev          *SerialDevice
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	oldTermState *term.State
}

// NewSerialHost creates a host adapter over dev.
func NewSerialHost(dev *SerialDevice) *SerialHost {
	return &SerialHost{
		dev:    dev,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start puts stdin into raw, non-blocking mode and begins reading.
// Call Stop to restore the terminal.
func (h *SerialHost) Start() {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulse/io: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "pulse/io: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}

	go func() {
		defer close(h.done)
		buf := make([]byte, 1)
		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := syscall.Read(h.fd, buf)
			if n > 0 {
				b := buf[0]
				if b == '\r' {
					b = '\n'
				}
				if b == 0x7F {
					b = 0x08
				}
				h.dev.EnqueueByte(b)
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

// Stop terminates the reader goroutine and restores stdin.
func (h *SerialHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
		<-h.done
		if h.oldTermState != nil {
			_ = term.Restore(h.fd, h.oldTermState)
		}
	})
}
