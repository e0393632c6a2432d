// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package board

import (
	"fmt"
	"math"
	"time"
)

const (
	// MaxDACMillivolts is the highest DAC threshold a channel group accepts.
	MaxDACMillivolts = 9999
	// MaxVoltageMillivolts is the highest supply threshold.
	MaxVoltageMillivolts = 99999
	// MaxCentiCelsius bounds the magnitude of a temperature threshold.
	MaxCentiCelsius = 9999
)

// The board firmware ships with these DAC calibration values. They are
// never used to encode a payload.
const (
	DACReferenceVolts = 3
	// DACMaxCode is the highest code of the 10 bit DAC.
	DACMaxCode = 1023
)

// DatePayload formats t as DDMMYYYY.
func DatePayload(t time.Time) string {
	return t.Format("02012006")
}

// TimePayload formats t as HHMMSS.
func TimePayload(t time.Time) string {
	return t.Format("150405")
}

// truncScaled multiplies v by scale and drops the fraction. The firmware
// expects truncation, so 1.2999 V becomes 1299 mV.
func truncScaled(v float64, scale float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v is not a number", ErrInvalidArgument, v)
	}
	s := v * scale
	if s > math.MaxInt32 || s < math.MinInt32 {
		return 0, fmt.Errorf("%w: %v out of range", ErrInvalidArgument, v)
	}
	return int(s), nil
}

func validChannel(ch byte) bool {
	return ch >= 'a' && ch <= 'h'
}

// DACPayload encodes a threshold in volts for a channel group 'a'..'h'.
func DACPayload(ch byte, volts float64) (string, error) {
	mV, err := truncScaled(volts, 1000)
	if err != nil {
		return "", err
	}
	return DACPayloadMillivolts(ch, mV)
}

// DACPayloadMillivolts encodes a threshold already expressed in mV.
func DACPayloadMillivolts(ch byte, mV int) (string, error) {
	if !validChannel(ch) {
		return "", fmt.Errorf("%w: channel '%c' (must be a..h)", ErrInvalidArgument, ch)
	}
	if mV < 0 || mV > MaxDACMillivolts {
		return "", fmt.Errorf("%w: DAC threshold %d mV (must be 0..%d)", ErrInvalidArgument, mV, MaxDACMillivolts)
	}
	return fmt.Sprintf("%c%04d", ch, mV), nil
}

// IDPayload encodes the new id of a setid frame.
func IDPayload(id int) (string, error) {
	if !ValidateSetID(id) {
		return "", fmt.Errorf("%w: board id %d (must be 0..%d or %d)", ErrInvalidArgument, id, MaxID, MagicID)
	}
	return string([]byte{AddressByte(uint8(id))}), nil
}

// VoltagePayload encodes an over- or under-voltage threshold.
func VoltagePayload(volts float64) (string, error) {
	mV, err := truncScaled(volts, 1000)
	if err != nil {
		return "", err
	}
	if mV < 0 || mV > MaxVoltageMillivolts {
		return "", fmt.Errorf("%w: voltage threshold %d mV (must be 0..%d)", ErrInvalidArgument, mV, MaxVoltageMillivolts)
	}
	return fmt.Sprintf("%05d", mV), nil
}

// TemperaturePayload encodes an over- or under-temperature threshold. The
// sign follows the truncated value, so -0.001 °C is sent as "+0000".
func TemperaturePayload(celsius float64) (string, error) {
	c, err := truncScaled(celsius, 100)
	if err != nil {
		return "", err
	}
	sign := byte('+')
	if c < 0 {
		sign = '-'
		c = -c
	}
	if c > MaxCentiCelsius {
		return "", fmt.Errorf("%w: temperature threshold %.2f °C (magnitude must be at most %.2f)", ErrInvalidArgument, celsius, float64(MaxCentiCelsius)/100)
	}
	return fmt.Sprintf("%c%04d", sign, c), nil
}
