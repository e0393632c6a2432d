// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package scanner

import (
	"errors"
	"fmt"

	"github.com/digitech/bril/cmd/bril/board"
)

var (
	// ErrSweepAborted is returned when an exchange ran out of attempts.
	ErrSweepAborted = errors.New("calibration sweep aborted")
	// ErrUnexpectedReply is the cause of an attempt answered with something
	// other than an acknowledgement.
	ErrUnexpectedReply = errors.New("unexpected reply")
	// ErrNoResult is the cause of an attempt that did not yield a data row.
	ErrNoResult = errors.New("no data row in reply")
)

// AbortError describes the exchange that ended a sweep. It matches both
// ErrSweepAborted and the cause of the last attempt.
type AbortError struct {
	State    State
	Command  board.Command
	Attempts int
	Err      error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%v: %s failed %d times in state %s: %v", ErrSweepAborted, e.Command, e.Attempts, e.State, e.Err)
}

func (e *AbortError) Unwrap() []error {
	return []error{ErrSweepAborted, e.Err}
}
