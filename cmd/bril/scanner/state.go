// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package scanner

// State is a step of a calibration sweep.
type State int

const (
	Connect State = iota
	SyncClock
	Reset
	ProgramChannels
	StartAcquisition
	FlushStaleBuffer
	Wait
	ReadResult
	RecordRow
	StopAcquisition
	Complete
	Failed
)

var stateNames = [...]string{
	Connect:          "connect",
	SyncClock:        "sync-clock",
	Reset:            "reset",
	ProgramChannels:  "program-channels",
	StartAcquisition: "start-acquisition",
	FlushStaleBuffer: "flush-stale-buffer",
	Wait:             "wait",
	ReadResult:       "read-result",
	RecordRow:        "record-row",
	StopAcquisition:  "stop-acquisition",
	Complete:         "complete",
	Failed:           "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the sweep has ended in s.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}
