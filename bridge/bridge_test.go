package bridge

import (
	"encoding/json"
	"errors"
	"testing"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relay "github.com/zing-dev/usbrly-sdk"
)

// board simulates a USB-RLY08 behind a relay.Channel.
type board struct {
	mask    byte
	pending []byte
	fail    error
}

func (b *board) Write(p []byte) error {
	if b.fail != nil {
		return b.fail
	}
	for i := 0; i < len(p); i++ {
		switch op := relay.Command(p[i]); {
		case op == relay.CmdGetSerial:
			b.pending = append(b.pending, "ABCD1234"...)
		case op == relay.CmdGetSwVersion:
			b.pending = append(b.pending, 5, 2)
		case op == relay.CmdGetStates:
			b.pending = append(b.pending, b.mask)
		case op == relay.CmdSetStates:
			i++
			b.mask = p[i]
		case op == relay.CmdAllOn:
			b.mask = 0xff
		case op == relay.CmdAllOff:
			b.mask = 0
		default:
			r, on, err := relay.DecodeRelayOpcode(p[i])
			if err != nil {
				return err
			}
			b.mask = byte(relay.Mask(b.mask).With(r, on))
		}
	}
	return nil
}

func (b *board) Read(n int) ([]byte, error) {
	if n > len(b.pending) {
		n = len(b.pending)
	}
	data := b.pending[:n]
	b.pending = b.pending[n:]
	return data, nil
}

type message struct {
	topic    string
	retained bool
	payload  string
}

type recorder struct {
	messages []message
}

func (r *recorder) publish(topic string, retained bool, payload []byte) error {
	r.messages = append(r.messages, message{topic, retained, string(payload)})
	return nil
}

func (r *recorder) last(t *testing.T) message {
	require.NotEmpty(t, r.messages)
	return r.messages[len(r.messages)-1]
}

func newTestBridge() (*Bridge, *board, *recorder) {
	dev := &board{}
	rec := &recorder{}
	return newBridge(relay.NewClient(dev), "lab/", rec.publish), dev, rec
}

func decodeState(t *testing.T, m message) State {
	require.Equal(t, TopicState, m.topic)
	var s State
	require.NoError(t, json.Unmarshal([]byte(m.payload), &s))
	return s
}

func TestBridge_RelaySet(t *testing.T) {
	b, dev, rec := newTestBridge()
	require.NoError(t, b.Handle("relay/1/set", []byte("on")))
	require.NoError(t, b.Handle("relay/3/set", []byte(" TRUE\n")))
	assert.Equal(t, byte(0x0a), dev.mask)

	s := decodeState(t, rec.last(t))
	assert.Equal(t, uint8(10), s.Mask)
	assert.Equal(t, []bool{false, true, false, true, false, false, false, false}, s.Relays)

	require.NoError(t, b.Handle("relay/1/set", []byte("0")))
	assert.Equal(t, byte(0x08), dev.mask)
}

func TestBridge_RelaySetInvalid(t *testing.T) {
	b, dev, rec := newTestBridge()
	assert.ErrorIs(t, b.Handle("relay/8/set", []byte("on")), relay.ErrInvalidArgument)
	assert.ErrorIs(t, b.Handle("relay/x/set", []byte("on")), relay.ErrInvalidArgument)
	assert.ErrorIs(t, b.Handle("relay/2/set", []byte("maybe")), relay.ErrInvalidArgument)
	assert.Zero(t, dev.mask)
	assert.Empty(t, rec.messages)
}

func TestBridge_RelaysSet(t *testing.T) {
	b, dev, _ := newTestBridge()
	require.NoError(t, b.Handle(TopicRelaysSet, []byte("on")))
	assert.Equal(t, byte(0xff), dev.mask)
	require.NoError(t, b.Handle(TopicRelaysSet, []byte("off")))
	assert.Equal(t, byte(0), dev.mask)
	require.NoError(t, b.Handle(TopicRelaysSet, []byte("0xf1")))
	assert.Equal(t, byte(0xf1), dev.mask)
	require.NoError(t, b.Handle(TopicRelaysSet, []byte("10")))
	assert.Equal(t, byte(10), dev.mask)

	assert.ErrorIs(t, b.Handle(TopicRelaysSet, []byte("256")), relay.ErrInvalidArgument)
	assert.ErrorIs(t, b.Handle(TopicRelaysSet, []byte("lots")), relay.ErrInvalidArgument)
	assert.Equal(t, byte(10), dev.mask)
}

func TestBridge_RelaysGet(t *testing.T) {
	b, dev, rec := newTestBridge()
	dev.mask = 0x81
	require.NoError(t, b.Handle(TopicRelaysGet, nil))
	m := rec.last(t)
	assert.False(t, m.retained)
	assert.Equal(t, uint8(0x81), decodeState(t, m).Mask)
}

func TestBridge_PublishInfo(t *testing.T) {
	b, _, rec := newTestBridge()
	require.NoError(t, b.PublishInfo())
	m := rec.last(t)
	assert.Equal(t, TopicInfo, m.topic)
	assert.True(t, m.retained)
	assert.JSONEq(t, `{"serial":"ABCD1234","module_id":5,"version":2}`, m.payload)
}

func TestBridge_UnknownTopic(t *testing.T) {
	b, _, _ := newTestBridge()
	assert.EqualError(t, b.Handle("relays/toggle", nil), `unknown topic "relays/toggle"`)
}

func TestBridge_ReportError(t *testing.T) {
	b, dev, rec := newTestBridge()
	dev.fail = errors.New("device unplugged")
	err := b.Handle(TopicRelaysSet, []byte("on"))
	require.Error(t, err)
	b.reportError(TopicRelaysSet, err)
	m := rec.last(t)
	assert.Equal(t, TopicError, m.topic)
	assert.JSONEq(t, `{"topic":"relays/set","error":"device unplugged"}`, m.payload)
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

func TestBridge_Dispatch(t *testing.T) {
	b, dev, rec := newTestBridge()
	b.dispatch(nil, &fakeMessage{topic: "lab/relay/2/set", payload: []byte("on")})
	assert.Equal(t, byte(0x04), dev.mask)
	assert.Equal(t, uint8(0x04), decodeState(t, rec.last(t)).Mask)

	n := len(rec.messages)
	b.dispatch(nil, &fakeMessage{topic: "other/relay/3/set", payload: []byte("on")})
	assert.Equal(t, byte(0x04), dev.mask)
	assert.Len(t, rec.messages, n)

	b.dispatch(nil, &fakeMessage{topic: "lab/relay/9/set", payload: []byte("on")})
	m := rec.last(t)
	assert.Equal(t, TopicError, m.topic)
	var report ErrorReport
	require.NoError(t, json.Unmarshal([]byte(m.payload), &report))
	assert.Equal(t, "relay/9/set", report.Topic)
	assert.Contains(t, report.Error, "out of range")
	assert.Equal(t, byte(0x04), dev.mask)
}
