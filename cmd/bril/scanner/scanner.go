// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package scanner runs threshold calibration sweeps: it steps the DAC
// thresholds of a board through a range and records the counters the board
// reports at each step.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/digitech/bril/cmd/bril/board"
	"github.com/digitech/bril/cmd/bril/link"
	"github.com/digitech/bril/cmd/bril/metrics"
)

// channelGroups are the DAC groups programmed at every point.
var channelGroups = []byte("abcdefgh")

// maxDrainLines bounds how many stale lines are discarded in one flush.
const maxDrainLines = 256

// Result summarizes a sweep.
type Result struct {
	RunID string
	State State
	// Points is the number of thresholds in the sweep.
	Points int
	// Rows is the number of rows written to the output.
	Rows int
}

type Scanner struct {
	arb   *link.Arbiter
	addr  board.Address
	cfg   Config
	out   *Output
	runID string
	log   logrus.FieldLogger

	state State
	point int
	total int
}

// New returns a scanner that writes its table to out.
func New(arb *link.Arbiter, addr board.Address, cfg Config, out io.Writer) *Scanner {
	cfg = cfg.withDefaults()
	runID := uuid.NewString()
	return &Scanner{
		arb:   arb,
		addr:  addr,
		cfg:   cfg,
		out:   NewOutput(out),
		runID: runID,
		log: cfg.Log.WithFields(logrus.Fields{
			"run":   runID,
			"board": addr.ID(),
		}),
	}
}

// RunCalibrationSweep validates the sweep, truncates outputPath and runs the
// sweep against the board. Rows written before a failure stay in the file.
func RunCalibrationSweep(ctx context.Context, arb *link.Arbiter, sweep Sweep, boardID int, outputPath string, cfg Config) (Result, error) {
	if err := sweep.Validate(); err != nil {
		return Result{State: Failed}, err
	}
	addr, err := board.NewAddress(boardID)
	if err != nil {
		return Result{State: Failed}, err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return Result{State: Failed}, err
	}
	res, err := New(arb, addr, cfg, f).Run(ctx, sweep)
	if cerr := f.Close(); cerr != nil && err == nil {
		return res, cerr
	}
	return res, err
}

// Run drives the sweep to Complete or Failed.
func (s *Scanner) Run(ctx context.Context, sweep Sweep) (Result, error) {
	res := Result{RunID: s.runID, State: Failed}
	if err := sweep.Validate(); err != nil {
		return res, err
	}
	points := sweep.Points()
	s.total = len(points)
	res.Points = s.total

	s.log.WithFields(logrus.Fields{
		"min_mv":  sweep.Min,
		"max_mv":  sweep.Max,
		"step_mv": sweep.Step,
	}).Info("starting calibration sweep")

	err := s.prepare(ctx)
	if err == nil {
		for i, mV := range points {
			s.point = i + 1
			if err = ctx.Err(); err != nil {
				break
			}
			if err = s.measure(ctx, mV); err != nil {
				break
			}
			res.Rows++
		}
	}
	if err != nil {
		s.enter(Failed)
		if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		s.log.WithError(err).WithField("rows", res.Rows).Error("calibration sweep failed")
		return res, err
	}

	s.enter(Complete)
	res.State = Complete
	s.log.WithField("rows", res.Rows).Info("calibration sweep complete")
	return res, nil
}

func (s *Scanner) enter(state State) {
	s.state = state
	s.log.WithFields(logrus.Fields{"state": state.String(), "point": s.point}).Debug("entering state")
	if s.cfg.Progress != nil {
		s.cfg.Progress(state, s.point, s.total)
	}
}

// prepare runs the steps before the first point and writes the header.
func (s *Scanner) prepare(ctx context.Context) error {
	s.enter(Connect)
	if err := s.cfg.Sleep(ctx, s.cfg.ConnectWait); err != nil {
		return err
	}

	s.enter(SyncClock)
	now := s.cfg.Now()
	if err := s.exchange(ctx, board.SetDate, board.DatePayload(now)); err != nil {
		return err
	}
	if err := s.exchange(ctx, board.SetTime, board.TimePayload(now)); err != nil {
		return err
	}

	s.enter(Reset)
	if err := s.exchange(ctx, board.Reset, ""); err != nil {
		return err
	}
	err := s.arb.WithExclusiveLink(ctx, func(c *link.Conn) error {
		return c.Reset()
	})
	if err != nil {
		return err
	}
	if err := s.cfg.Sleep(ctx, s.cfg.ResetWait); err != nil {
		return err
	}
	return s.out.WriteHeader()
}

// measure records one threshold point.
func (s *Scanner) measure(ctx context.Context, mV int) error {
	log := s.log.WithField("threshold_mv", mV)

	s.enter(ProgramChannels)
	for _, group := range channelGroups {
		payload, err := board.DACPayloadMillivolts(group, mV)
		if err != nil {
			return err
		}
		if err := s.exchange(ctx, board.SetDAC, payload); err != nil {
			return err
		}
	}

	s.enter(StartAcquisition)
	if err := s.exchange(ctx, board.Start, ""); err != nil {
		return err
	}

	s.enter(FlushStaleBuffer)
	if err := s.flush(ctx, log); err != nil {
		return err
	}

	s.enter(Wait)
	if err := s.cfg.Sleep(ctx, s.cfg.Window); err != nil {
		return err
	}

	s.enter(ReadResult)
	row, err := s.readResult(ctx, log)
	if err != nil {
		return err
	}

	s.enter(RecordRow)
	if err := s.out.WriteRow(row, mV); err != nil {
		return err
	}
	metrics.ScanPoints.Inc()
	log.Info("recorded threshold point")

	s.enter(StopAcquisition)
	return s.exchange(ctx, board.Stop, "")
}

// exchange sends a command until the board acknowledges it.
func (s *Scanner) exchange(ctx context.Context, cmd board.Command, payload string) error {
	return s.retry(ctx, cmd, payload, func(c *link.Conn) error {
		line, err := c.ReadLine(s.cfg.ReadTimeout)
		if err != nil {
			return err
		}
		if !board.IsAck(strings.TrimSpace(line)) {
			return fmt.Errorf("%w: %q", ErrUnexpectedReply, strings.TrimSpace(line))
		}
		return nil
	})
}

// flush requests data and throws away what arrives, clearing counts left
// over from the previous point.
func (s *Scanner) flush(ctx context.Context, log logrus.FieldLogger) error {
	return s.retry(ctx, board.GetData, "", func(c *link.Conn) error {
		for i := 0; i < maxDrainLines; i++ {
			line, err := c.ReadLine(s.cfg.ReadTimeout)
			if errors.Is(err, link.ErrTimeout) {
				break
			}
			if err != nil {
				return err
			}
			log.WithField("line", strings.TrimSpace(line)).Debug("discarded stale line")
		}
		return c.Reset()
	})
}

// readResult requests data and returns the first complete row of the reply.
func (s *Scanner) readResult(ctx context.Context, log logrus.FieldLogger) ([]string, error) {
	var row []string
	err := s.retry(ctx, board.GetData, "", func(c *link.Conn) error {
		row = nil
		for i := 0; i < maxDrainLines; i++ {
			line, err := c.ReadLine(s.cfg.ReadTimeout)
			if errors.Is(err, link.ErrTimeout) {
				break
			}
			if err != nil {
				return err
			}
			text := board.Classify(line).Text
			if text == "" {
				continue
			}
			if board.IsAck(text) {
				break
			}
			fields := strings.Split(text, "\t")
			if row == nil && len(fields) >= rowFields {
				row = fields[:rowFields]
				continue
			}
			log.WithField("line", text).Warn("dropped extra data line")
		}
		if row == nil {
			return ErrNoResult
		}
		return nil
	})
	return row, err
}

// retry runs one attempt per permit: write the frame, wait for the board to
// answer, then let read consume the reply.
func (s *Scanner) retry(ctx context.Context, cmd board.Command, payload string, read func(c *link.Conn) error) error {
	frame, err := board.EncodeCommand(s.addr, cmd, payload)
	if err != nil {
		return err
	}

	var last error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		err := s.arb.WithExclusiveLink(ctx, func(c *link.Conn) error {
			if err := c.Write(frame); err != nil {
				return err
			}
			if err := s.cfg.Sleep(ctx, s.cfg.Settle); err != nil {
				return err
			}
			return read(c)
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s in state %s: %w", cmd, s.state, ctx.Err())
		}
		last = err
		metrics.ExchangeFailures.WithLabelValues(s.state.String()).Inc()
		if link.IsTransport(err) {
			metrics.TransportFaults.WithLabelValues("scanner").Inc()
		}
		s.log.WithError(err).WithFields(logrus.Fields{
			"command": cmd.String(),
			"attempt": attempt,
			"state":   s.state.String(),
		}).Warn("exchange failed")
	}
	return &AbortError{
		State:    s.state,
		Command:  cmd,
		Attempts: s.cfg.Attempts,
		Err:      last,
	}
}
