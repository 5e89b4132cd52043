// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package relay

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/rs/zerolog"
)

const (
	// Default settings of the USB-RLY virtual COM port.
	serialBaudRate = 19200
	serialDataBits = 8
	serialStopBits = 2
	serialParity   = "N"
	serialTimeout  = 1 * time.Second
)

// SerialChannel implements Channel over a serial port.
type SerialChannel struct {
	serial.Config

	// Logger traces the bytes on the wire at debug level.
	Logger zerolog.Logger

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewSerialChannel allocates a SerialChannel with the board defaults.
// The port is opened on Connect or on first use.
func NewSerialChannel(address string) *SerialChannel {
	ch := &SerialChannel{Logger: zerolog.Nop()}
	ch.Address = address
	ch.BaudRate = serialBaudRate
	ch.DataBits = serialDataBits
	ch.StopBits = serialStopBits
	ch.Parity = serialParity
	ch.Timeout = serialTimeout
	return ch
}

// Connect opens the serial port if it is not open yet.
func (ch *SerialChannel) Connect() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.connect()
}

func (ch *SerialChannel) connect() error {
	if ch.port != nil {
		return nil
	}
	port, err := serial.Open(&ch.Config)
	if err != nil {
		return fmt.Errorf("serial: could not open %s: %w", ch.Address, err)
	}
	ch.port = port
	ch.Logger.Debug().Str("port", ch.Address).Int("baud", ch.BaudRate).Msg("serial: connected")
	return nil
}

// Close closes the serial port. Closing a closed channel is a no-op.
func (ch *SerialChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.port == nil {
		return nil
	}
	err := ch.port.Close()
	ch.port = nil
	return err
}

// Write sends p in full.
func (ch *SerialChannel) Write(p []byte) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if err := ch.connect(); err != nil {
		return err
	}
	ch.Logger.Debug().Hex("data", p).Msg("serial: sending")
	n, err := ch.port.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

// Read reads up to n bytes. It returns early, without error, when the port
// times out or stops delivering data.
func (ch *SerialChannel) Read(n int) ([]byte, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if err := ch.connect(); err != nil {
		return nil, err
	}
	data := make([]byte, n)
	read := 0
	for read < n {
		k, err := ch.port.Read(data[read:])
		read += k
		if errors.Is(err, serial.ErrTimeout) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if k == 0 {
			break
		}
	}
	ch.Logger.Debug().Hex("data", data[:read]).Int("want", n).Msg("serial: received")
	return data[:read], nil
}
