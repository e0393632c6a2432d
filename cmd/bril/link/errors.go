// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package link

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when no complete line arrives within the read
// timeout.
var ErrTimeout = errors.New("timed out waiting for the board")

// TransportError is a read or write failure of the serial link.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("serial %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is caused by a serial link failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
