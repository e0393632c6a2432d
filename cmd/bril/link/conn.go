// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package link

import (
	"bytes"
	"io"
	"time"

	"github.com/digitech/bril/cmd/bril/board"
	"github.com/digitech/bril/cmd/bril/metrics"
)

const (
	// pollTimeout bounds a single read of ReadAvailable.
	pollTimeout = 20 * time.Millisecond
	// maxReadSlice bounds a single read of ReadLine so the deadline is
	// honoured even when the port ignores long timeouts.
	maxReadSlice = 100 * time.Millisecond
)

// Conn is a line-oriented view of a serial port. It is not safe for
// concurrent use; the Arbiter hands it to one caller at a time.
type Conn struct {
	port    Port
	pending []byte
	chunk   []byte
	now     func() time.Time
}

// NewConn wraps port.
func NewConn(port Port) *Conn {
	return &Conn{
		port:  port,
		chunk: make([]byte, 512),
		now:   time.Now,
	}
}

// Write sends a whole frame.
func (c *Conn) Write(frame []byte) error {
	if err := c.writeAll(frame); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if cmd, ok := board.Opcode(frame); ok {
		metrics.FramesSent.WithLabelValues(cmd.String()).Inc()
	}
	return nil
}

func (c *Conn) writeAll(data []byte) error {
	for len(data) > 0 {
		count, err := c.port.Write(data)
		if err != nil {
			return err
		}
		if count == 0 {
			return io.ErrShortWrite
		}
		data = data[count:]
	}
	return nil
}

// ReadLine returns the next line without its terminator. Bytes of an
// incomplete line are kept for the next read.
func (c *Conn) ReadLine(timeout time.Duration) (string, error) {
	deadline := c.now().Add(timeout)
	for {
		if line, ok := c.nextLine(); ok {
			return line, nil
		}
		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return "", ErrTimeout
		}
		if remaining > maxReadSlice {
			remaining = maxReadSlice
		}
		if _, err := c.fill(remaining); err != nil {
			return "", err
		}
	}
}

// ReadAvailable returns the complete lines that can be read right now.
func (c *Conn) ReadAvailable() ([]string, error) {
	for {
		n, err := c.fill(pollTimeout)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	var lines []string
	for {
		line, ok := c.nextLine()
		if !ok {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// Reset discards everything buffered on both directions of the link.
func (c *Conn) Reset() error {
	c.pending = c.pending[:0]
	if err := c.port.ResetInputBuffer(); err != nil {
		return &TransportError{Op: "reset input", Err: err}
	}
	if err := c.port.ResetOutputBuffer(); err != nil {
		return &TransportError{Op: "reset output", Err: err}
	}
	return nil
}

// Close closes the underlying port.
func (c *Conn) Close() error {
	return c.port.Close()
}

func (c *Conn) fill(timeout time.Duration) (int, error) {
	if err := c.port.SetReadTimeout(timeout); err != nil {
		return 0, &TransportError{Op: "configure", Err: err}
	}
	n, err := c.port.Read(c.chunk)
	if n > 0 {
		c.pending = append(c.pending, c.chunk[:n]...)
	}
	if err != nil {
		return n, &TransportError{Op: "read", Err: err}
	}
	return n, nil
}

func (c *Conn) nextLine() (string, bool) {
	i := bytes.IndexByte(c.pending, board.Terminator)
	if i < 0 {
		return "", false
	}
	line := string(c.pending[:i])
	c.pending = c.pending[i+1:]
	return line, true
}
