// Package bridge exposes one relay board on an MQTT broker.
//
// Topics are relative to the prefix taken from the broker URL path:
//
//	relay/<i>/set   on|off|1|0|true|false    switch relay i
//	relays/set      on|off                   switch every relay
//	relays/set      10 | 0x0a                set all relays from a mask
//	relays/get      (any)                    publish relays/state
//
// The bridge publishes relays/state after every command, info (retained)
// once connected, status online/offline (retained, offline as will) and
// error when a command fails.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	relay "github.com/zing-dev/usbrly-sdk"
)

const (
	TopicRelaySet  = "relay/+/set"
	TopicRelaysSet = "relays/set"
	TopicRelaysGet = "relays/get"
	TopicState     = "relays/state"
	TopicInfo      = "info"
	TopicStatus    = "status"
	TopicError     = "error"
)

// State is the payload of relays/state.
type State struct {
	Mask   uint8  `json:"mask"`
	Relays []bool `json:"relays"`
}

// Info is the payload of info.
type Info struct {
	Serial   string `json:"serial"`
	ModuleID uint8  `json:"module_id"`
	Version  uint8  `json:"version"`
}

// ErrorReport is the payload of error.
type ErrorReport struct {
	Topic string `json:"topic"`
	Error string `json:"error"`
}

type publishFunc func(topic string, retained bool, payload []byte) error

// Bridge serializes MQTT commands onto a single relay.Client.
type Bridge struct {
	Client      paho.Client
	TopicPrefix string

	// relay.Client does no locking, every use goes through mu
	mu    sync.Mutex
	relay *relay.Client

	publish publishFunc
}

// New creates a Bridge connecting with options.
func New(rc *relay.Client, options *paho.ClientOptions, topicPrefix string) *Bridge {
	b := newBridge(rc, topicPrefix, nil)
	options.SetWill(topicPrefix+TopicStatus, "offline", 0, true)
	options.SetOnConnectHandler(b.OnConnectHandler)
	options.SetConnectionLostHandler(b.ConnectionLostHandler)
	b.Client = paho.NewClient(options)
	b.publish = b.pahoPublish
	return b
}

// NewFromURL creates a Bridge from a broker URL, see ClientOptionsFromURL.
func NewFromURL(rc *relay.Client, brokerURL string) (*Bridge, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return New(rc, opts, topicPrefix), nil
}

func newBridge(rc *relay.Client, topicPrefix string, publish publishFunc) *Bridge {
	return &Bridge{
		TopicPrefix: topicPrefix,
		relay:       rc,
		publish:     publish,
	}
}

// Run connects and serves until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	if token := b.Client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	<-ctx.Done()
	if err := b.publish(TopicStatus, true, []byte("offline")); err != nil {
		glog.Warningf("publish offline: %v", err)
	}
	b.Client.Disconnect(250)
	glog.Info("disconnected")
	return nil
}

// OnConnectHandler subscribes the command topics and announces the board.
func (b *Bridge) OnConnectHandler(c paho.Client) {
	glog.Info("connected")
	filters := map[string]byte{
		b.TopicPrefix + TopicRelaySet:  0,
		b.TopicPrefix + TopicRelaysSet: 0,
		b.TopicPrefix + TopicRelaysGet: 0,
	}
	if glog.V(2) {
		for key := range filters {
			glog.Infof("SUB %q", key)
		}
	}
	if token := c.SubscribeMultiple(filters, b.dispatch); token.Wait() && token.Error() != nil {
		glog.Errorf("subscribe: %v", token.Error())
	}
	if err := b.publish(TopicStatus, true, []byte("online")); err != nil {
		glog.Warningf("publish online: %v", err)
	}
	if err := b.PublishInfo(); err != nil {
		glog.Warningf("publish info: %v", err)
	}
	if err := b.PublishState(); err != nil {
		glog.Warningf("publish state: %v", err)
	}
}

// ConnectionLostHandler logs the loss, paho reconnects on its own.
func (b *Bridge) ConnectionLostHandler(c paho.Client, err error) {
	glog.Warningf("connection lost: %v", err)
}

func (b *Bridge) dispatch(c paho.Client, msg paho.Message) {
	topic := msg.Topic()
	if !strings.HasPrefix(topic, b.TopicPrefix) {
		return
	}
	glog.V(2).Infof("RCV %q", topic)
	topic = topic[len(b.TopicPrefix):]
	if err := b.Handle(topic, msg.Payload()); err != nil {
		glog.Warningf("%s: %v", topic, err)
		b.reportError(topic, err)
	}
}

// Handle executes the command addressed by topic (without prefix).
func (b *Bridge) Handle(topic string, payload []byte) error {
	value := strings.ToLower(strings.TrimSpace(string(payload)))
	switch {
	case topic == TopicRelaysGet:
		return b.PublishState()
	case topic == TopicRelaysSet:
		if err := b.setRelays(value); err != nil {
			return err
		}
		return b.PublishState()
	case strings.HasPrefix(topic, "relay/") && strings.HasSuffix(topic, "/set"):
		r, err := parseRelay(strings.TrimSuffix(strings.TrimPrefix(topic, "relay/"), "/set"))
		if err != nil {
			return err
		}
		on, err := parseSwitch(value)
		if err != nil {
			return err
		}
		b.mu.Lock()
		err = b.relay.SetState(r, on)
		b.mu.Unlock()
		if err != nil {
			return err
		}
		return b.PublishState()
	}
	return fmt.Errorf("unknown topic %q", topic)
}

func (b *Bridge) setRelays(value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch value {
	case "on":
		return b.relay.OnAll()
	case "off":
		return b.relay.OffAll()
	}
	v, err := strconv.ParseInt(value, 0, 0)
	if err != nil {
		return fmt.Errorf("invalid mask %q: %w", value, relay.ErrInvalidArgument)
	}
	return b.relay.SetStatesInt(int(v))
}

// PublishState queries the relays and publishes relays/state.
func (b *Bridge) PublishState() error {
	b.mu.Lock()
	m, err := b.relay.GetStates()
	b.mu.Unlock()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(State{Mask: uint8(m), Relays: m.States()})
	if err != nil {
		return err
	}
	return b.publish(TopicState, false, payload)
}

// PublishInfo queries serial number and version and publishes info.
func (b *Bridge) PublishInfo() error {
	b.mu.Lock()
	serial, err := b.relay.GetSerial()
	if err != nil {
		b.mu.Unlock()
		return err
	}
	version, err := b.relay.GetSwVersion()
	b.mu.Unlock()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Info{
		Serial:   string(serial),
		ModuleID: version.ModuleID,
		Version:  version.Version,
	})
	if err != nil {
		return err
	}
	return b.publish(TopicInfo, true, payload)
}

func (b *Bridge) reportError(topic string, cause error) {
	payload, err := json.Marshal(ErrorReport{Topic: topic, Error: cause.Error()})
	if err != nil {
		return
	}
	if err := b.publish(TopicError, false, payload); err != nil {
		glog.Warningf("publish error: %v", err)
	}
}

func (b *Bridge) pahoPublish(topic string, retained bool, payload []byte) error {
	token := b.Client.Publish(b.TopicPrefix+topic, 0, retained, payload)
	token.Wait()
	return token.Error()
}

func parseRelay(s string) (relay.Relay, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid relay %q: %w", s, relay.ErrInvalidArgument)
	}
	return relay.ParseRelay(i)
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid state %q: %w", s, relay.ErrInvalidArgument)
}
