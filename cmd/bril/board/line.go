// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package board

import (
	"strings"
)

// Class is the stream a received line belongs to.
type Class int

const (
	Data Class = iota
	Control
)

func (c Class) String() string {
	if c == Control {
		return "control"
	}
	return "data"
}

// LogLine is one classified line received from the board.
type LogLine struct {
	Class Class
	Text  string
}

// DataPrefix marks acknowledgements that carry measurement data.
const DataPrefix = ">Data"

// Classify sorts a raw line into the control or data stream. Only trailing
// line endings and spaces are trimmed since a leading tab is significant.
func Classify(raw string) LogLine {
	// Leading tabs are kept: they mark a control line.
	text := strings.TrimLeft(strings.TrimRight(raw, "\r\n "), " ")
	return LogLine{Class: classOf(text), Text: text}
}

func classOf(text string) Class {
	if strings.HasPrefix(text, DataPrefix) {
		return Data
	}
	if text == "" {
		return Data
	}
	switch text[0] {
	case '>', '=', 'U', '\t':
		return Control
	}
	return Data
}

// IsAck reports whether a line acknowledges a command.
func IsAck(line string) bool {
	return strings.HasPrefix(line, ">")
}
