// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package board

import "errors"

var (
	// ErrUnknownCommand is returned for command names outside the catalog.
	// Nothing is transmitted.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidArgument is returned when a payload or board id fails
	// validation. Nothing is transmitted.
	ErrInvalidArgument = errors.New("invalid argument")
)
