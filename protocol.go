// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package relay

import (
	"fmt"
)

// Command is a single byte opcode of the USB-RLY command set.
// There is no framing, no checksum and no length prefix on the wire.
type Command byte

const (
	CmdGetSerial    Command = 56
	CmdGetSwVersion Command = 90
	CmdGetStates    Command = 91
	CmdSetStates    Command = 92
	CmdAllOn        Command = 100
	CmdFirstOn      Command = 101
	CmdAllOff       Command = 110
	CmdFirstOff     Command = 111
)

const (
	// RelayCount is the number of outputs on the board.
	RelayCount = 8
	// MaxRelay is the highest valid relay index.
	MaxRelay Relay = RelayCount - 1

	serialLength  = 8
	versionLength = 2
	statesLength  = 1
)

var commandNames = map[Command]string{
	CmdGetSerial:    "GET_SERIAL",
	CmdGetSwVersion: "GET_SW_VERSION",
	CmdGetStates:    "GET_STATES",
	CmdSetStates:    "SET_STATES",
	CmdAllOn:        "ALL_ON",
	CmdFirstOn:      "FIRST_ON",
	CmdAllOff:       "ALL_OFF",
	CmdFirstOff:     "FIRST_OFF",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	if r, on, err := DecodeRelayOpcode(byte(c)); err == nil {
		if on {
			return fmt.Sprintf("FIRST_ON+%d", r)
		}
		return fmt.Sprintf("FIRST_OFF+%d", r)
	}
	return fmt.Sprintf("Command(%d)", byte(c))
}

// ResponseLength returns the number of bytes the board answers to c.
func ResponseLength(c Command) int {
	switch c {
	case CmdGetSerial:
		return serialLength
	case CmdGetSwVersion:
		return versionLength
	case CmdGetStates:
		return statesLength
	}
	return 0
}

// Relay identifies one output channel, 0 through 7.
type Relay uint8

// ParseRelay converts i into a Relay, rejecting values outside [0,7].
func ParseRelay(i int) (Relay, error) {
	if i < 0 || i > int(MaxRelay) {
		return 0, fmt.Errorf("relay %d is out of range [0, %d]: %w", i, MaxRelay, ErrInvalidArgument)
	}
	return Relay(i), nil
}

// Valid reports whether r addresses an existing output.
func (r Relay) Valid() bool {
	return r <= MaxRelay
}

func (r Relay) check() error {
	if !r.Valid() {
		return fmt.Errorf("relay %d is out of range [0, %d]: %w", r, MaxRelay, ErrInvalidArgument)
	}
	return nil
}

// Mask holds the state of all relays, bit i is relay i.
//  0x01 = 1st relay on
//  0x0A = 2nd and 4th relays on
//  0xF1 = 1st and 5th to 8th relays on
type Mask uint8

// NewMask converts v into a Mask, rejecting values outside [0,255].
func NewMask(v int) (Mask, error) {
	if v < 0 || v > 0xff {
		return 0, fmt.Errorf("mask %d is out of range [0, 255]: %w", v, ErrInvalidArgument)
	}
	return Mask(v), nil
}

// MaskOf returns a mask with the given relays on. Invalid relays are ignored.
func MaskOf(relays ...Relay) Mask {
	var m Mask
	for _, r := range relays {
		m = m.With(r, true)
	}
	return m
}

// IsOn reports whether relay r is on in m.
func (m Mask) IsOn(r Relay) bool {
	if !r.Valid() {
		return false
	}
	return m&(1<<r) != 0
}

// With returns m with relay r switched to on.
func (m Mask) With(r Relay, on bool) Mask {
	if !r.Valid() {
		return m
	}
	if on {
		return m | 1<<r
	}
	return m &^ (1 << r)
}

// States expands m into one bool per relay.
func (m Mask) States() []bool {
	states := make([]bool, RelayCount)
	for i := range states {
		states[i] = m.IsOn(Relay(i))
	}
	return states
}

func (m Mask) String() string {
	return fmt.Sprintf("0x%.2x", uint8(m))
}

// SerialNumber is the 8 character serial number burned into the board.
type SerialNumber string

// SwVersion is the answer to GET_SW_VERSION. The bytes are reported as is.
type SwVersion struct {
	ModuleID byte
	Version  byte
}

func (v SwVersion) String() string {
	return fmt.Sprintf("%.2x %.2x", v.ModuleID, v.Version)
}

// RelayOpcode computes the opcode switching relay r on or off.
func RelayOpcode(r Relay, on bool) (byte, error) {
	// guard before the arithmetic, FIRST_ON+8 would alias an unrelated opcode
	if err := r.check(); err != nil {
		return 0, err
	}
	if on {
		return byte(CmdFirstOn) + byte(r), nil
	}
	return byte(CmdFirstOff) + byte(r), nil
}

// DecodeRelayOpcode is the inverse of RelayOpcode.
func DecodeRelayOpcode(op byte) (r Relay, on bool, err error) {
	switch {
	case op >= byte(CmdFirstOn) && op <= byte(CmdFirstOn)+byte(MaxRelay):
		return Relay(op - byte(CmdFirstOn)), true, nil
	case op >= byte(CmdFirstOff) && op <= byte(CmdFirstOff)+byte(MaxRelay):
		return Relay(op - byte(CmdFirstOff)), false, nil
	}
	return 0, false, fmt.Errorf("opcode %d is not a relay command: %w", op, ErrInvalidArgument)
}
