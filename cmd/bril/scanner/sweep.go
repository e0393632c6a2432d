// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/digitech/bril/cmd/bril/board"
)

// DefaultStep is the threshold increment between two points, in mV.
const DefaultStep = 50

// Sweep is an inclusive range of DAC thresholds in mV.
type Sweep struct {
	Min  int
	Max  int
	Step int
}

// Validate checks the range before anything is sent to the board.
func (s Sweep) Validate() error {
	switch {
	case s.Step <= 0:
		return fmt.Errorf("%w: step %d mV must be positive", board.ErrInvalidArgument, s.Step)
	case s.Min < 0:
		return fmt.Errorf("%w: minimum %d mV is negative", board.ErrInvalidArgument, s.Min)
	case s.Min > s.Max:
		return fmt.Errorf("%w: minimum %d mV is above maximum %d mV", board.ErrInvalidArgument, s.Min, s.Max)
	case s.Max > board.MaxDACMillivolts:
		return fmt.Errorf("%w: maximum %d mV is above %d mV", board.ErrInvalidArgument, s.Max, board.MaxDACMillivolts)
	}
	return nil
}

// Points lists the thresholds in ascending order.
func (s Sweep) Points() []int {
	if s.Validate() != nil {
		return nil
	}
	var res []int
	for mV := s.Min; ; mV += s.Step {
		res = append(res, mV)
		// Compared by difference so a huge step cannot overflow.
		if s.Max-mV < s.Step {
			return res
		}
	}
}

// Config holds the timing of a sweep. The zero value of a field selects its
// default.
type Config struct {
	// ConnectWait lets the board settle after the port is opened.
	ConnectWait time.Duration
	// Settle is the pause between a request and reading its reply.
	Settle time.Duration
	// ReadTimeout bounds the wait for a single reply line.
	ReadTimeout time.Duration
	// ResetWait is the time the board needs to reboot.
	ResetWait time.Duration
	// Window is how long the board counts at each threshold.
	Window   time.Duration
	Attempts int

	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
	// Progress is called on every state change with the 1-based index of
	// the current point.
	Progress func(state State, point, total int)
	Log      logrus.FieldLogger
}

// DefaultConfig returns the timing the board firmware expects.
func DefaultConfig() Config {
	return Config{
		ConnectWait: time.Second,
		Settle:      time.Second,
		ReadTimeout: time.Second,
		ResetWait:   5 * time.Second,
		Window:      10 * time.Second,
		Attempts:    3,
		Sleep:       sleep,
		Now:         time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectWait <= 0 {
		c.ConnectWait = d.ConnectWait
	}
	if c.Settle <= 0 {
		c.Settle = d.Settle
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.ResetWait <= 0 {
		c.ResetWait = d.ResetWait
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.Sleep == nil {
		c.Sleep = d.Sleep
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
