package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for out of range relays and masks.
	// Nothing is written to the channel when it occurs.
	ErrInvalidArgument = errors.New("relay: invalid argument")
	// ErrShortRead is matched by every ProtocolError.
	ErrShortRead = errors.New("relay: short read")
	// ErrDecode is matched by every DecodeError.
	ErrDecode = errors.New("relay: decode error")
)

// ProtocolError reports that the board answered with fewer bytes than the
// command requires.
type ProtocolError struct {
	Cmd  Command
	Want int
	Got  int
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("relay: %v: short read: got %d of %d bytes", e.Cmd, e.Got, e.Want)
}

// Is makes errors.Is(err, ErrShortRead) hold.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrShortRead
}

// DecodeError reports a byte that is not valid ASCII.
type DecodeError struct {
	Offset int
	Byte   byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("relay: byte 0x%.2x at offset %d is not ascii", e.Byte, e.Offset)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
