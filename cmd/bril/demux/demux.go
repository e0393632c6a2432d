// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package demux reads everything the board sends and splits it into the
// control and data logs.
package demux

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/digitech/bril/cmd/bril/board"
	"github.com/digitech/bril/cmd/bril/link"
	"github.com/digitech/bril/cmd/bril/metrics"
)

// DefaultHandshake is the pause between two reads of the link.
const DefaultHandshake = 100 * time.Millisecond

type Demultiplexer struct {
	arb       *link.Arbiter
	control   Sink
	data      Sink
	handshake time.Duration
	log       logrus.FieldLogger
}

// New returns a demultiplexer that routes control lines to control and data
// lines to data. A non-positive handshake selects DefaultHandshake.
func New(arb *link.Arbiter, control, data Sink, handshake time.Duration, log logrus.FieldLogger) *Demultiplexer {
	if handshake <= 0 {
		handshake = DefaultHandshake
	}
	return &Demultiplexer{
		arb:       arb,
		control:   control,
		data:      data,
		handshake: handshake,
		log:       log.WithField("component", "reader"),
	}
}

// Run reads the link until ctx is done. Read faults are logged and the
// loop continues.
func (d *Demultiplexer) Run(ctx context.Context) {
	for {
		if err := d.Cycle(ctx); err != nil && ctx.Err() == nil {
			d.log.WithError(err).Warn("reading from the board failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.handshake):
		}
	}
}

// Cycle reads once what is available and routes it.
func (d *Demultiplexer) Cycle(ctx context.Context) error {
	var lines []string
	err := d.arb.WithExclusiveLink(ctx, func(c *link.Conn) error {
		var err error
		lines, err = c.ReadAvailable()
		return err
	})
	if err != nil {
		if link.IsTransport(err) {
			metrics.TransportFaults.WithLabelValues("reader").Inc()
		}
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	}

	var sinkErr error
	for _, raw := range lines {
		line := board.Classify(raw)
		if line.Text == "" {
			continue
		}
		metrics.LinesReceived.WithLabelValues(line.Class.String()).Inc()
		d.log.WithField("stream", line.Class.String()).Info(line.Text)

		sink := d.data
		if line.Class == board.Control {
			sink = d.control
		}
		if err := sink.Append(line.Text); err != nil && sinkErr == nil {
			sinkErr = err
		}
	}
	return sinkErr
}
