// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package poller asks the board for its counters at a fixed interval.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/digitech/bril/cmd/bril/board"
	"github.com/digitech/bril/cmd/bril/link"
)

const (
	DefaultInterval = 20 * time.Second
	DefaultWarmup   = 10 * time.Second
)

// Config is the immutable configuration of a Poller.
type Config struct {
	Board    board.Address
	Interval time.Duration
	// Warmup delays the first request so the board can finish booting.
	Warmup time.Duration
}

// Poller sends getdata requests. The replies are picked up by whoever reads
// the link.
type Poller struct {
	cfg   Config
	arb   *link.Arbiter
	frame []byte
	log   logrus.FieldLogger
}

func New(cfg Config, arb *link.Arbiter, log logrus.FieldLogger) (*Poller, error) {
	if arb == nil {
		return nil, errors.New("poller: arbiter required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.Warmup < 0 {
		return nil, errors.New("poller: warmup must be >= 0")
	}
	frame, err := board.EncodeCommand(cfg.Board, board.GetData, "")
	if err != nil {
		return nil, err
	}
	return &Poller{
		cfg:   cfg,
		arb:   arb,
		frame: frame,
		log:   log.WithFields(logrus.Fields{"component": "poller", "board": cfg.Board.ID()}),
	}, nil
}

// PollOnce sends exactly one request.
func (p *Poller) PollOnce(ctx context.Context) error {
	return p.arb.WithExclusiveLink(ctx, func(c *link.Conn) error {
		return c.Write(p.frame)
	})
}
