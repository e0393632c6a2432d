// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package board

import (
	"fmt"
	"strconv"
	"time"
)

// Request is a command together with its encoded payload.
type Request struct {
	Command Command
	Payload string
}

// Encode builds the frame for r.
func (r Request) Encode(addr Address) ([]byte, error) {
	return EncodeCommand(addr, r.Command, r.Payload)
}

func (r Request) String() string {
	if r.Payload == "" {
		return r.Command.String()
	}
	return fmt.Sprintf("%s %q", r.Command, r.Payload)
}

// ParseRequest turns the words an operator types into a request:
//
//	setdac a 1.3
//	setid 23
//	setoverv 16.5
//	setovert -5.5
//
// setdate and settime take no arguments and use now.
func ParseRequest(name string, args []string, now time.Time) (Request, error) {
	c, err := Lookup(name)
	if err != nil {
		return Request{}, err
	}
	req := Request{Command: c}

	kind := catalog[c].payload
	want := 0
	switch kind {
	case payloadDAC:
		want = 2
	case payloadID, payloadVoltage, payloadTemperature:
		want = 1
	}
	if len(args) != want {
		if want == 0 {
			return Request{}, fmt.Errorf("%w: %s takes no arguments", ErrInvalidArgument, c)
		}
		return Request{}, fmt.Errorf("%w: usage: %s %s", ErrInvalidArgument, c, c.Usage())
	}

	switch kind {
	case payloadDate:
		req.Payload = DatePayload(now)
	case payloadTime:
		req.Payload = TimePayload(now)
	case payloadDAC:
		if len(args[0]) != 1 {
			return Request{}, fmt.Errorf("%w: channel %q (must be a..h)", ErrInvalidArgument, args[0])
		}
		v, err := parseFloat(args[1])
		if err != nil {
			return Request{}, err
		}
		req.Payload, err = DACPayload(args[0][0], v)
		if err != nil {
			return Request{}, err
		}
	case payloadID:
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return Request{}, fmt.Errorf("%w: board id %q", ErrInvalidArgument, args[0])
		}
		req.Payload, err = IDPayload(id)
		if err != nil {
			return Request{}, err
		}
	case payloadVoltage:
		v, err := parseFloat(args[0])
		if err != nil {
			return Request{}, err
		}
		req.Payload, err = VoltagePayload(v)
		if err != nil {
			return Request{}, err
		}
	case payloadTemperature:
		v, err := parseFloat(args[0])
		if err != nil {
			return Request{}, err
		}
		req.Payload, err = TemperaturePayload(v)
		if err != nil {
			return Request{}, err
		}
	}
	return req, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidArgument, s)
	}
	return v, nil
}
