// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package board implements the wire codec of the Bril acquisition board:
// the command catalog, board addressing, payload encoding and the
// classification of the lines the board sends back.
package board

import (
	"fmt"
	"strings"
)

// Command is a board operation. Its value is the opcode byte sent on the wire.
type Command byte

const (
	GetStatus   Command = 'a'
	GetData     Command = 'b'
	SetDate     Command = 'c'
	SetTime     Command = 'd'
	GetDateTime Command = 'e'
	GetDAC      Command = 'f'
	SetDAC      Command = 'g'
	GetTemp     Command = 'h'
	Reset       Command = 'i'
	SetID       Command = 'j'
	GetID       Command = 'k'
	SetOverV    Command = 'l'
	SetUnderV   Command = 'm'
	SetOverT    Command = 'n'
	SetUnderT   Command = 'o'
	GetConfig   Command = 'p'
	Start       Command = 'q'
	Stop        Command = 'r'
)

// payloadKind selects the payload shape a command carries.
type payloadKind int

const (
	payloadNone payloadKind = iota
	payloadDate
	payloadTime
	payloadDAC
	payloadID
	payloadVoltage
	payloadTemperature
)

type commandInfo struct {
	name    string
	usage   string
	help    string
	payload payloadKind
	// flush prefixes the frame with a terminator so the board drops any
	// partial command it is still holding.
	flush bool
}

var catalog = map[Command]commandInfo{
	GetStatus:   {name: "getstatus", help: "Get status", flush: true},
	GetData:     {name: "getdata", help: "Get data", flush: true},
	SetDate:     {name: "setdate", help: "Set date (now)", payload: payloadDate},
	SetTime:     {name: "settime", help: "Set time (now)", payload: payloadTime},
	GetDateTime: {name: "getdatetime", help: "Get date and time", flush: true},
	GetDAC:      {name: "getdac", help: "Get DAC threshold"},
	SetDAC:      {name: "setdac", usage: "CH THR_V", help: "Set DAC threshold", payload: payloadDAC},
	GetTemp:     {name: "gettemp", help: "Get temperature"},
	Reset:       {name: "reset", help: "Soft reset"},
	SetID:       {name: "setid", usage: "NEW_ID", help: "Set board ID", payload: payloadID},
	GetID:       {name: "getid", help: "Get board ID"},
	SetOverV:    {name: "setoverv", usage: "THR_V", help: "Set over-voltage threshold", payload: payloadVoltage},
	SetUnderV:   {name: "setundv", usage: "THR_V", help: "Set under-voltage threshold", payload: payloadVoltage},
	SetOverT:    {name: "setovert", usage: "THR_C", help: "Set over-temperature threshold", payload: payloadTemperature},
	SetUnderT:   {name: "setundt", usage: "THR_C", help: "Set under-temperature threshold", payload: payloadTemperature},
	GetConfig:   {name: "getconf", help: "Get voltage and temperature threshold configuration"},
	Start:       {name: "start", help: "Start acquisition", flush: true},
	Stop:        {name: "stop", help: "Stop acquisition", flush: true},
}

var byName = func() map[string]Command {
	m := make(map[string]Command, len(catalog))
	for c, info := range catalog {
		m[info.name] = c
	}
	return m
}()

// Lookup returns the command with the given name. Names are case-insensitive.
func Lookup(name string) (Command, error) {
	c, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: '%s'", ErrUnknownCommand, name)
	}
	return c, nil
}

// Valid reports whether c is part of the catalog.
func (c Command) Valid() bool {
	_, ok := catalog[c]
	return ok
}

func (c Command) String() string {
	if info, ok := catalog[c]; ok {
		return info.name
	}
	return fmt.Sprintf("Command(%q)", byte(c))
}

// Opcode is the byte that identifies c on the wire.
func (c Command) Opcode() byte {
	return byte(c)
}

// HasPayload reports whether c requires a payload.
func (c Command) HasPayload() bool {
	return catalog[c].payload != payloadNone
}

// Usage describes the operator arguments of c, or "" if it takes none.
func (c Command) Usage() string {
	return catalog[c].usage
}

// Help is a one-line description of c.
func (c Command) Help() string {
	return catalog[c].help
}

// Catalog returns all commands in opcode order.
func Catalog() []Command {
	res := make([]Command, 0, len(catalog))
	for c := GetStatus; c <= Stop; c++ {
		res = append(res, c)
	}
	return res
}
