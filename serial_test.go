package relay

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/goburrow/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPort delivers its input in chunks and times out once drained.
type memPort struct {
	in     [][]byte
	out    bytes.Buffer
	err    error
	closed bool
}

func (p *memPort) Read(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if len(p.in) == 0 {
		return 0, serial.ErrTimeout
	}
	n := copy(b, p.in[0])
	if n == len(p.in[0]) {
		p.in = p.in[1:]
	} else {
		p.in[0] = p.in[0][n:]
	}
	return n, nil
}

func (p *memPort) Write(b []byte) (int, error) {
	return p.out.Write(b)
}

func (p *memPort) Close() error {
	p.closed = true
	return nil
}

func newTestSerialChannel(port *memPort) *SerialChannel {
	ch := NewSerialChannel("/dev/null")
	ch.port = port
	return ch
}

func TestNewSerialChannel(t *testing.T) {
	ch := NewSerialChannel("/dev/ttyACM0")
	assert.Equal(t, "/dev/ttyACM0", ch.Address)
	assert.Equal(t, 19200, ch.BaudRate)
	assert.Equal(t, 8, ch.DataBits)
	assert.Equal(t, 2, ch.StopBits)
	assert.Equal(t, "N", ch.Parity)
	assert.Equal(t, serialTimeout, ch.Timeout)
}

func TestSerialChannel_ReadChunks(t *testing.T) {
	port := &memPort{in: [][]byte{[]byte("ABC"), []byte("D12"), []byte("34")}}
	ch := newTestSerialChannel(port)
	data, err := ch.Read(8)
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCD1234"), data)
}

func TestSerialChannel_ReadTimeoutIsShort(t *testing.T) {
	port := &memPort{in: [][]byte{[]byte("ABCD1")}}
	ch := newTestSerialChannel(port)
	data, err := ch.Read(8)
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCD1"), data)

	data, err = ch.Read(1)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestSerialChannel_ReadError(t *testing.T) {
	failure := errors.New("i/o error")
	ch := newTestSerialChannel(&memPort{err: failure})
	_, err := ch.Read(1)
	assert.Same(t, failure, err)
}

func TestSerialChannel_WriteAndClose(t *testing.T) {
	port := &memPort{}
	ch := newTestSerialChannel(port)
	require.NoError(t, ch.Write([]byte{92, 0x0a}))
	assert.Equal(t, []byte{92, 0x0a}, port.out.Bytes())

	require.NoError(t, ch.Close())
	assert.True(t, port.closed)
	require.NoError(t, ch.Close())
}

func TestSerialChannel_Client(t *testing.T) {
	port := &memPort{in: [][]byte{{0x0a}}}
	client := NewClient(newTestSerialChannel(port))
	m, err := client.GetStates()
	require.NoError(t, err)
	assert.Equal(t, MaskOf(1, 3), m)

	_, err = client.GetSerial()
	require.ErrorIs(t, err, ErrShortRead)
	assert.Equal(t, []byte{91, 56}, port.out.Bytes())
}

var _ io.ReadWriteCloser = (*memPort)(nil)
