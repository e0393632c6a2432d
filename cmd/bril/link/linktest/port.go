// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package linktest provides a scripted serial port for tests.
package linktest

import (
	"errors"
	"sync"
	"time"

	"github.com/digitech/bril/cmd/bril/board"
)

// ErrClosed is returned by a closed Port.
var ErrClosed = errors.New("port closed")

// Responder produces the bytes the board sends back after a frame. It
// runs with the port lock released.
type Responder func(frame []byte) string

// Port is an in-memory link.Port. Reads return whatever has been fed or
// produced by the responder, and 0, nil after a short pause when nothing is
// buffered, the way a serial port behaves on read timeout.
type Port struct {
	mu        sync.Mutex
	input     []byte
	written   [][]byte
	timeout   time.Duration
	resets    int
	closed    bool
	respond   Responder
	readErr   error
	writeErr  error
	idleSleep time.Duration
}

// New returns an empty port.
func New() *Port {
	return &Port{idleSleep: time.Millisecond}
}

// Respond installs r as the board.
func (p *Port) Respond(r Responder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.respond = r
}

// Feed makes s available to read.
func (p *Port) Feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input = append(p.input, s...)
}

// FailReads makes every following Read return err.
func (p *Port) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// FailWrites makes every following Write return err.
func (p *Port) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if p.readErr != nil {
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	}
	if len(p.input) == 0 {
		sleep := p.idleSleep
		if p.timeout > 0 && p.timeout < sleep {
			sleep = p.timeout
		}
		p.mu.Unlock()
		time.Sleep(sleep)
		return 0, nil
	}
	n := copy(b, p.input)
	p.input = p.input[n:]
	p.mu.Unlock()
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return 0, err
	}
	frame := append([]byte(nil), b...)
	p.written = append(p.written, frame)
	respond := p.respond
	p.mu.Unlock()

	if respond != nil {
		p.Feed(respond(frame))
	}
	return len(b), nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = t
	return nil
}

func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.input = nil
	p.resets++
	return nil
}

func (p *Port) ResetOutputBuffer() error {
	return nil
}

// Written returns a copy of every frame written so far.
func (p *Port) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([][]byte, len(p.written))
	copy(res, p.written)
	return res
}

// Commands decodes the opcode of every frame written so far.
func (p *Port) Commands() []board.Command {
	var res []board.Command
	for _, f := range p.Written() {
		if c, ok := board.Opcode(f); ok {
			res = append(res, c)
		}
	}
	return res
}

// Resets counts how often the input buffer was cleared.
func (p *Port) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// Closed reports whether Close was called.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
