// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package board

import (
	"fmt"
)

// Terminator ends every frame and every line the board sends.
const Terminator byte = '\n'

// Encode builds the frame for the named command. The payload must already
// have the shape the command expects; see the *Payload helpers.
func Encode(addr Address, name string, payload string) ([]byte, error) {
	c, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return EncodeCommand(addr, c, payload)
}

// EncodeCommand is Encode for a command that has already been resolved.
func EncodeCommand(addr Address, c Command, payload string) ([]byte, error) {
	info, ok := catalog[c]
	if !ok {
		return nil, fmt.Errorf("%w: opcode %q", ErrUnknownCommand, byte(c))
	}
	if err := checkPayload(info.payload, payload); err != nil {
		return nil, fmt.Errorf("%s: %w", info.name, err)
	}

	frame := make([]byte, 0, len(payload)+4)
	if info.flush {
		frame = append(frame, Terminator)
	}
	frame = append(frame, addr.Byte(), c.Opcode())
	frame = append(frame, payload...)
	frame = append(frame, Terminator)
	return frame, nil
}

// Opcode returns the opcode byte of an encoded frame.
func Opcode(frame []byte) (Command, bool) {
	if len(frame) > 0 && frame[0] == Terminator {
		frame = frame[1:]
	}
	if len(frame) < 3 {
		return 0, false
	}
	c := Command(frame[1])
	return c, c.Valid()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func checkPayload(kind payloadKind, p string) error {
	switch kind {
	case payloadNone:
		if p != "" {
			return fmt.Errorf("%w: command takes no payload, got %q", ErrInvalidArgument, p)
		}
		return nil
	case payloadDate:
		if len(p) != 8 || !allDigits(p) {
			return fmt.Errorf("%w: date payload %q (want DDMMYYYY)", ErrInvalidArgument, p)
		}
	case payloadTime:
		if len(p) != 6 || !allDigits(p) {
			return fmt.Errorf("%w: time payload %q (want HHMMSS)", ErrInvalidArgument, p)
		}
	case payloadDAC:
		if len(p) != 5 || !validChannel(p[0]) || !allDigits(p[1:]) {
			return fmt.Errorf("%w: DAC payload %q (want channel a..h and 4 digits)", ErrInvalidArgument, p)
		}
	case payloadID:
		if len(p) != 1 || !ValidateSetID(int(p[0])-IDOffset) {
			return fmt.Errorf("%w: id payload %q", ErrInvalidArgument, p)
		}
	case payloadVoltage:
		if len(p) != 5 || !allDigits(p) {
			return fmt.Errorf("%w: voltage payload %q (want 5 digits)", ErrInvalidArgument, p)
		}
	case payloadTemperature:
		if len(p) != 5 || (p[0] != '+' && p[0] != '-') || !allDigits(p[1:]) {
			return fmt.Errorf("%w: temperature payload %q (want sign and 4 digits)", ErrInvalidArgument, p)
		}
	default:
		return fmt.Errorf("%w: unsupported payload kind %d", ErrInvalidArgument, kind)
	}
	return nil
}
