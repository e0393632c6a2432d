// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitech/bril/cmd/bril/board"
	"github.com/digitech/bril/cmd/bril/link"
	"github.com/digitech/bril/cmd/bril/link/linktest"
)

// fakeBoard acknowledges every command and answers getdata with a stale row
// right after start and with a fresh row afterwards.
type fakeBoard struct {
	mu        sync.Mutex
	mV        int
	staleNext bool
	// silent makes the board ignore commands once it returns true.
	silent func(cmd board.Command, mV int) bool
	// fresh overrides the reply to a fresh getdata.
	fresh func(mV int) string
}

func dataRow(marker string, mV int) string {
	fields := []string{"12/01/2024", "10:00:00"}
	for ch := 1; ch <= Channels; ch++ {
		fields = append(fields, fmt.Sprintf("%s%d-%d", marker, mV, ch))
	}
	return strings.Join(fields, "\t")
}

func (b *fakeBoard) respond(frame []byte) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	cmd, ok := board.Opcode(frame)
	if !ok {
		return ""
	}
	if frame[0] == board.Terminator {
		frame = frame[1:]
	}
	payload := string(frame[2 : len(frame)-1])

	if cmd == board.SetDAC {
		b.mV, _ = strconv.Atoi(payload[1:])
	}
	if b.silent != nil && b.silent(cmd, b.mV) {
		return ""
	}
	switch cmd {
	case board.Start:
		b.staleNext = true
	case board.GetData:
		if b.staleNext {
			b.staleNext = false
			return dataRow("stale", b.mV) + "\n"
		}
		if b.fresh != nil {
			return b.fresh(b.mV)
		}
		return dataRow("", b.mV) + "\r\n" + dataRow("extra", b.mV) + "\n>OK\n"
	}
	return ">OK\r\n"
}

type harness struct {
	port   *linktest.Port
	arb    *link.Arbiter
	cfg    Config
	states []State
	hook   *test.Hook
}

func newHarness(b *fakeBoard) *harness {
	port := linktest.New()
	port.Respond(b.respond)
	logger, hook := test.NewNullLogger()
	h := &harness{
		port: port,
		arb:  link.NewArbiter(link.NewConn(port)),
		hook: hook,
	}
	h.cfg = Config{
		ReadTimeout: 5 * time.Millisecond,
		Sleep: func(ctx context.Context, d time.Duration) error {
			return ctx.Err()
		},
		Now: func() time.Time {
			return time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC)
		},
		Progress: func(state State, point, total int) {
			h.states = append(h.states, state)
		},
		Log: logger,
	}
	return h
}

func readTable(t *testing.T, path string) [][]string {
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	var res [][]string
	for _, line := range strings.Split(strings.TrimSuffix(string(content), "\n"), "\n") {
		res = append(res, strings.Split(line, "\t"))
	}
	return res
}

func TestSweepPoints(t *testing.T) {
	assert.Equal(t, []int{125, 175, 225}, Sweep{Min: 125, Max: 250, Step: 50}.Points())
	assert.Equal(t, []int{100}, Sweep{Min: 100, Max: 100, Step: 50}.Points())
	assert.Equal(t, []int{1}, Sweep{Min: 1, Max: 9999, Step: math.MaxInt}.Points())
	assert.Equal(t, []int{9990, 9999}, Sweep{Min: 9990, Max: 9999, Step: 9}.Points())

	for _, s := range []Sweep{
		{Min: 0, Max: 100, Step: 0},
		{Min: 200, Max: 100, Step: 50},
		{Min: 0, Max: 10000, Step: 50},
		{Min: -50, Max: 100, Step: 50},
	} {
		assert.ErrorIs(t, s.Validate(), board.ErrInvalidArgument, "%+v", s)
		assert.Nil(t, s.Points())
	}
}

func TestHeader(t *testing.T) {
	h := Header()
	require.Len(t, h, 51)
	assert.Equal(t, "DATE", h[0])
	assert.Equal(t, "TIME", h[1])
	assert.Equal(t, "CH_01", h[2])
	assert.Equal(t, "CH_48", h[49])
	assert.Equal(t, "THRESHOLD", h[50])
}

func TestSweepHappyPath(t *testing.T) {
	h := newHarness(&fakeBoard{})
	out := filepath.Join(t.TempDir(), "scan.tsv")

	res, err := RunCalibrationSweep(context.Background(), h.arb, Sweep{Min: 100, Max: 200, Step: 50}, 5, out, h.cfg)
	require.NoError(t, err)
	assert.Equal(t, Complete, res.State)
	assert.Equal(t, 3, res.Points)
	assert.Equal(t, 3, res.Rows)
	assert.NotEmpty(t, res.RunID)

	table := readTable(t, out)
	require.Len(t, table, 4)
	assert.Equal(t, Header(), table[0])
	for i, mV := range []int{100, 150, 200} {
		row := table[i+1]
		require.Len(t, row, 51)
		assert.Equal(t, "12/01/2024", row[0])
		assert.Equal(t, fmt.Sprintf("%d-1", mV), row[2])
		assert.Equal(t, fmt.Sprintf("%d-48", mV), row[49])
		assert.Equal(t, fmt.Sprintf("%.3f", float64(mV)/1000), row[50])
	}

	var perPoint []board.Command
	for range channelGroups {
		perPoint = append(perPoint, board.SetDAC)
	}
	perPoint = append(perPoint, board.Start, board.GetData, board.GetData, board.Stop)
	want := []board.Command{board.SetDate, board.SetTime, board.Reset}
	for i := 0; i < 3; i++ {
		want = append(want, perPoint...)
	}
	assert.Equal(t, want, h.port.Commands())

	written := h.port.Written()
	assert.Equal(t, []byte{5 + board.IDOffset, 'c', '1', '2', '0', '1', '2', '0', '2', '4', '\n'}, written[0])
	assert.Equal(t, "ga0100", string(written[3][1:7]))
	assert.Equal(t, "gh0100", string(written[10][1:7]))

	assert.Equal(t, Complete, h.states[len(h.states)-1])
	assert.Equal(t, Connect, h.states[0])
}

func TestSweepAbortsAfterThreeTimeouts(t *testing.T) {
	b := &fakeBoard{
		silent: func(cmd board.Command, mV int) bool {
			return cmd == board.SetDAC && mV == 150
		},
	}
	h := newHarness(b)
	out := filepath.Join(t.TempDir(), "scan.tsv")

	res, err := RunCalibrationSweep(context.Background(), h.arb, Sweep{Min: 100, Max: 200, Step: 50}, 0, out, h.cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSweepAborted)
	assert.ErrorIs(t, err, link.ErrTimeout)

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, ProgramChannels, abort.State)
	assert.Equal(t, board.SetDAC, abort.Command)
	assert.Equal(t, 3, abort.Attempts)

	assert.Equal(t, Failed, res.State)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, Failed, h.states[len(h.states)-1])

	table := readTable(t, out)
	require.Len(t, table, 2)
	assert.Equal(t, "0.100", table[1][50])

	// Eight groups at 100 mV, then three attempts for group a at 150 mV.
	counts := map[board.Command]int{}
	for _, c := range h.port.Commands() {
		counts[c]++
	}
	assert.Equal(t, 8+3, counts[board.SetDAC])
	assert.Equal(t, 1, counts[board.Start])
	assert.Equal(t, 1, counts[board.Stop])
}

// healOnWarn clears the write fault of port once a failed exchange has been
// logged.
type healOnWarn struct {
	port *linktest.Port
}

func (h *healOnWarn) Levels() []logrus.Level {
	return []logrus.Level{logrus.WarnLevel}
}

func (h *healOnWarn) Fire(*logrus.Entry) error {
	h.port.FailWrites(nil)
	return nil
}

func TestSweepTransportFault(t *testing.T) {
	t.Run("aborts after three attempts", func(t *testing.T) {
		h := newHarness(&fakeBoard{})
		h.port.FailWrites(errors.New("unplugged"))
		out := filepath.Join(t.TempDir(), "scan.tsv")

		res, err := RunCalibrationSweep(context.Background(), h.arb, Sweep{Min: 100, Max: 200, Step: 50}, 0, out, h.cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSweepAborted)
		assert.True(t, link.IsTransport(err))

		var abort *AbortError
		require.ErrorAs(t, err, &abort)
		assert.Equal(t, SyncClock, abort.State)
		assert.Equal(t, board.SetDate, abort.Command)
		assert.Equal(t, 3, abort.Attempts)
		assert.Equal(t, Failed, res.State)
		assert.Equal(t, 0, res.Rows)
		assert.Empty(t, h.port.Written())
	})

	t.Run("recovers after one failed write", func(t *testing.T) {
		h := newHarness(&fakeBoard{})
		h.cfg.Log.(*logrus.Logger).AddHook(&healOnWarn{port: h.port})
		h.port.FailWrites(errors.New("unplugged"))
		out := filepath.Join(t.TempDir(), "scan.tsv")

		res, err := RunCalibrationSweep(context.Background(), h.arb, Sweep{Min: 300, Max: 300, Step: 50}, 0, out, h.cfg)
		require.NoError(t, err)
		assert.Equal(t, Complete, res.State)
		assert.Equal(t, 1, res.Rows)
		failed := 0
		for _, e := range h.hook.AllEntries() {
			if e.Message == "exchange failed" {
				failed++
			}
		}
		assert.Equal(t, 1, failed)
		assert.Equal(t, board.SetDate, h.port.Commands()[0])
	})
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, Complete.Terminal())
	assert.True(t, Failed.Terminal())
	assert.False(t, Wait.Terminal())
	assert.False(t, Connect.Terminal())
}

func TestSweepMalformedResultIsRetried(t *testing.T) {
	b := &fakeBoard{
		fresh: func(mV int) string {
			return "12/01/2024\t10:00:00\t1\t2\n>OK\n"
		},
	}
	h := newHarness(b)
	out := filepath.Join(t.TempDir(), "scan.tsv")

	res, err := RunCalibrationSweep(context.Background(), h.arb, Sweep{Min: 100, Max: 100, Step: 50}, 0, out, h.cfg)
	assert.ErrorIs(t, err, ErrSweepAborted)
	assert.ErrorIs(t, err, ErrNoResult)

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, ReadResult, abort.State)
	assert.Equal(t, board.GetData, abort.Command)
	assert.Equal(t, 0, res.Rows)

	table := readTable(t, out)
	assert.Len(t, table, 1)
}

func TestSweepRecoversFromOneMissedAck(t *testing.T) {
	var mu sync.Mutex
	missed := false
	b := &fakeBoard{
		silent: func(cmd board.Command, mV int) bool {
			mu.Lock()
			defer mu.Unlock()
			if cmd == board.Start && !missed {
				missed = true
				return true
			}
			return false
		},
	}
	h := newHarness(b)
	out := filepath.Join(t.TempDir(), "scan.tsv")

	res, err := RunCalibrationSweep(context.Background(), h.arb, Sweep{Min: 300, Max: 300, Step: 50}, 0, out, h.cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
	assert.NotEmpty(t, h.hook.AllEntries())
}

func TestSweepCancelled(t *testing.T) {
	h := newHarness(&fakeBoard{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.cfg.Progress = func(state State, point, total int) {
		h.states = append(h.states, state)
		if state == Wait {
			cancel()
		}
	}
	out := filepath.Join(t.TempDir(), "scan.tsv")

	res, err := RunCalibrationSweep(ctx, h.arb, Sweep{Min: 100, Max: 200, Step: 50}, 0, out, h.cfg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrSweepAborted))
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, 0, res.Rows)
	assert.Equal(t, Failed, h.states[len(h.states)-1])
}

func TestSweepInvalidArguments(t *testing.T) {
	h := newHarness(&fakeBoard{})
	out := filepath.Join(t.TempDir(), "scan.tsv")

	_, err := RunCalibrationSweep(context.Background(), h.arb, Sweep{Min: 100, Max: 200, Step: 0}, 0, out, h.cfg)
	assert.ErrorIs(t, err, board.ErrInvalidArgument)
	_, err = RunCalibrationSweep(context.Background(), h.arb, Sweep{Min: 100, Max: 200, Step: 50}, 62, out, h.cfg)
	assert.ErrorIs(t, err, board.ErrInvalidArgument)

	assert.Empty(t, h.port.Written())
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}
