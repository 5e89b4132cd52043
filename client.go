package relay

// Client speaks the USB-RLY command set over a Channel.
//
// A Client has no state besides the channel and does no locking: callers
// sharing one board between goroutines must serialize the calls.
// The channel is never opened or closed by the Client.
type Client struct {
	channel Channel
}

// NewClient creates a new relay client on top of ch.
func NewClient(ch Channel) *Client {
	return &Client{channel: ch}
}

//sendNil writes a command without response
func (c *Client) sendNil(data ...byte) error {
	return c.channel.Write(data)
}

//send writes cmd and reads exactly the response length of cmd
func (c *Client) send(cmd Command) ([]byte, error) {
	if err := c.channel.Write([]byte{byte(cmd)}); err != nil {
		return nil, err
	}
	want := ResponseLength(cmd)
	data, err := c.channel.Read(want)
	if err != nil {
		return nil, err
	}
	if len(data) != want {
		return nil, &ProtocolError{Cmd: cmd, Want: want, Got: len(data)}
	}
	return data, nil
}

// SetState switches a single relay.
func (c *Client) SetState(r Relay, on bool) error {
	op, err := RelayOpcode(r, on)
	if err != nil {
		return err
	}
	return c.sendNil(op)
}

// OnOne switches relay r on.
func (c *Client) OnOne(r Relay) error {
	return c.SetState(r, true)
}

// OffOne switches relay r off.
func (c *Client) OffOne(r Relay) error {
	return c.SetState(r, false)
}

// SetStates sets every relay at once from m.
func (c *Client) SetStates(m Mask) error {
	return c.sendNil(byte(CmdSetStates), byte(m))
}

// SetStatesInt is SetStates for an unchecked integer.
func (c *Client) SetStatesInt(v int) error {
	m, err := NewMask(v)
	if err != nil {
		return err
	}
	return c.SetStates(m)
}

// GetStates reads the state of all relays.
func (c *Client) GetStates() (Mask, error) {
	data, err := c.send(CmdGetStates)
	if err != nil {
		return 0, err
	}
	return Mask(data[0]), nil
}

// StateOne reports whether relay r is on.
func (c *Client) StateOne(r Relay) (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	m, err := c.GetStates()
	if err != nil {
		return false, err
	}
	return m.IsOn(r), nil
}

// SetAll switches every relay on or off.
func (c *Client) SetAll(on bool) error {
	if on {
		return c.sendNil(byte(CmdAllOn))
	}
	return c.sendNil(byte(CmdAllOff))
}

// OnAll switches every relay on.
func (c *Client) OnAll() error {
	return c.SetAll(true)
}

// OffAll switches every relay off.
func (c *Client) OffAll() error {
	return c.SetAll(false)
}

// GetSerial reads the serial number of the board.
func (c *Client) GetSerial() (SerialNumber, error) {
	data, err := c.send(CmdGetSerial)
	if err != nil {
		return "", err
	}
	for i, b := range data {
		if b > 0x7f {
			return "", &DecodeError{Offset: i, Byte: b}
		}
	}
	return SerialNumber(data), nil
}

// GetSwVersion reads the module id and the firmware version.
func (c *Client) GetSwVersion() (SwVersion, error) {
	data, err := c.send(CmdGetSwVersion)
	if err != nil {
		return SwVersion{}, err
	}
	return SwVersion{ModuleID: data[0], Version: data[1]}, nil
}
