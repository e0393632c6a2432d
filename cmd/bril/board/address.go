// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package board

import "fmt"

const (
	// IDOffset shifts board ids into printable ASCII, clear of NUL and the
	// terminator.
	IDOffset = 33
	// MaxID is the highest configurable board id.
	MaxID = 61
	// MagicID is accepted by every board, whatever its configured id.
	MagicID = 67
	// DefaultID is the id of a board fresh from the factory.
	DefaultID = 0
)

// Address is the validated target of a frame.
type Address struct {
	id uint8
}

// Broadcast addresses every board on the link.
var Broadcast = Address{id: MagicID}

// NewAddress validates id as a frame target.
func NewAddress(id int) (Address, error) {
	if !ValidTarget(id) {
		return Address{}, fmt.Errorf("%w: board id %d (must be 0..%d or %d)", ErrInvalidArgument, id, MaxID, MagicID)
	}
	return Address{id: uint8(id)}, nil
}

// ID is the numeric board id.
func (a Address) ID() int {
	return int(a.id)
}

// Byte is the address field of a frame.
func (a Address) Byte() byte {
	return AddressByte(a.id)
}

func (a Address) String() string {
	if a.id == MagicID {
		return fmt.Sprintf("%d (broadcast)", a.id)
	}
	return fmt.Sprintf("%d", a.id)
}

// AddressByte encodes a board id. It wraps around for ids above 222; only
// ids accepted by ValidTarget are meaningful.
func AddressByte(id uint8) byte {
	return id + IDOffset
}

// ValidTarget reports whether id addresses a board.
func ValidTarget(id int) bool {
	return (id >= 0 && id <= MaxID) || id == MagicID
}

// ValidateSetID reports whether id may be assigned with setid.
// The magic id is accepted as well.
func ValidateSetID(id int) bool {
	return (id >= 0 && id < MaxID+1) || id == MagicID
}
