package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/rs/zerolog"

	relay "github.com/zing-dev/usbrly-sdk"
	"github.com/zing-dev/usbrly-sdk/bridge"
)

const version = "0.1"

// usageError makes main exit with status 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// relayList collects a repeatable relay flag.
type relayList []relay.Relay

func (l *relayList) String() string {
	parts := make([]string, len(*l))
	for i, r := range *l {
		parts[i] = strconv.Itoa(int(r))
	}
	return strings.Join(parts, ",")
}

func (l *relayList) Set(s string) error {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid relay %q", s)
	}
	r, err := relay.ParseRelay(i)
	if err != nil {
		return err
	}
	*l = append(*l, r)
	return nil
}

type options struct {
	settings

	Config   string
	All      string
	On       relayList
	Off      relayList
	Mask     string
	Relays   bool
	Serial   bool
	Version  bool
	Shell    bool
	Verbose  bool
	set      map[string]bool
	args     []string
	maskSet  bool
	maskBits relay.Mask
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{settings: defaultSettings()}
	var timeout int

	fs := flag.NewFlagSet("usbrly", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "USB-RLY controlling tool version %s\n\nUsage: usbrly -p PORT [options] [shell command]\n\n", version)
		fs.PrintDefaults()
	}

	stringVar := func(p *string, short, long, usage string) {
		fs.StringVar(p, short, *p, usage)
		fs.StringVar(p, long, *p, usage)
	}
	boolVar := func(p *bool, short, long, usage string) {
		fs.BoolVar(p, short, false, usage)
		fs.BoolVar(p, long, false, usage)
	}
	stringVar(&o.Port, "p", "port", "Serial port of the USB-RLY device")
	fs.IntVar(&timeout, "t", 0, "Timeout in SECONDS for serial communications")
	fs.IntVar(&timeout, "timeout", 0, "Timeout in SECONDS for serial communications")
	fs.IntVar(&o.Baud, "b", o.Baud, "Baud rate")
	fs.IntVar(&o.Baud, "baud", o.Baud, "Baud rate")
	stringVar(&o.Config, "c", "config", "TOML config file")

	stringVar(&o.All, "a", "all-relays", "Set all relays to specified state (on|off)")
	fs.Var(&o.On, "n", "Set a relay (0-7) to ON state, repeatable")
	fs.Var(&o.On, "relay-on", "Set a relay (0-7) to ON state, repeatable")
	fs.Var(&o.Off, "f", "Set a relay (0-7) to OFF state, repeatable")
	fs.Var(&o.Off, "relay-off", "Set a relay (0-7) to OFF state, repeatable")
	stringVar(&o.Mask, "m", "mask", "Set all relays from a bit mask (0-255, 0x prefix for hex)")

	boolVar(&o.Relays, "g", "relays", "Get the state of the relays")
	boolVar(&o.Serial, "s", "get-serial", "Get serial number of the board")
	boolVar(&o.Version, "i", "get-version", "Get SW version of the board")

	fs.BoolVar(&o.Shell, "shell", false, "Run the interactive shell, or the shell command given as arguments")
	stringVar(&o.MQTT, "mqtt", "mqtt-url", "Bridge the board to an MQTT broker, mqtt://[user:pass@]host:port/prefix")
	boolVar(&o.Verbose, "v", "verbose", "Log serial traffic")

	if err := fs.Parse(args); err != nil {
		return nil, usageError{err}
	}
	o.args = fs.Args()
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if o.Config != "" {
		cfg, err := loadSettings(o.Config, o.settings)
		if err != nil {
			return nil, usageError{err}
		}
		o.mergeSettings(cfg)
	}
	if o.isSet("t", "timeout") {
		if timeout <= 0 {
			return nil, usageError{fmt.Errorf("timeout must be positive, got %d", timeout)}
		}
		o.Timeout = time.Duration(timeout) * time.Second
	}
	if o.Verbose {
		o.LogLevel = zerolog.DebugLevel
	}
	if err := o.validate(); err != nil {
		return nil, usageError{err}
	}
	return o, nil
}

func (o *options) isSet(names ...string) bool {
	for _, name := range names {
		if o.set[name] {
			return true
		}
	}
	return false
}

// mergeSettings takes values from the config file unless given as flags.
func (o *options) mergeSettings(cfg settings) {
	if !o.isSet("p", "port") {
		o.Port = cfg.Port
	}
	if !o.isSet("b", "baud") {
		o.Baud = cfg.Baud
	}
	o.Timeout = cfg.Timeout
	if !o.isSet("mqtt", "mqtt-url") {
		o.MQTT = cfg.MQTT
	}
	o.LogLevel = cfg.LogLevel
}

func (o *options) validate() error {
	if o.Port == "" {
		return errors.New("serial port is required (-p or port in config)")
	}
	switch o.All {
	case "", "on", "off":
	default:
		return fmt.Errorf("invalid -all-relays %q, choose from on, off", o.All)
	}
	if o.Mask != "" {
		m, err := parseMask(o.Mask)
		if err != nil {
			return err
		}
		o.maskSet, o.maskBits = true, m
	}
	if len(o.args) > 0 && !o.Shell {
		return fmt.Errorf("unexpected arguments %q", o.args)
	}
	return nil
}

func parseMask(s string) (relay.Mask, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 0)
	if err != nil {
		return 0, fmt.Errorf("invalid mask %q: %w", s, relay.ErrInvalidArgument)
	}
	return relay.NewMask(int(v))
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid state %q, choose from on, off", s)
}

// execute runs the requested operations in a fixed order: control first,
// then queries.
func execute(c *relay.Client, o *options, out io.Writer) error {
	if o.All != "" {
		on, err := parseOnOff(o.All)
		if err != nil {
			return err
		}
		if err := c.SetAll(on); err != nil {
			return err
		}
	}
	for _, r := range o.On {
		if err := c.SetState(r, true); err != nil {
			return err
		}
	}
	for _, r := range o.Off {
		if err := c.SetState(r, false); err != nil {
			return err
		}
	}
	if o.maskSet {
		if err := c.SetStates(o.maskBits); err != nil {
			return err
		}
	}
	if o.Relays {
		if err := printStates(c, out); err != nil {
			return err
		}
	}
	if o.Serial {
		if err := printSerial(c, out); err != nil {
			return err
		}
	}
	if o.Version {
		if err := printVersion(c, out); err != nil {
			return err
		}
	}
	return nil
}

func printStates(c *relay.Client, out io.Writer) error {
	m, err := c.GetStates()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, m)
	for i, on := range m.States() {
		state := "off"
		if on {
			state = "on"
		}
		fmt.Fprintf(out, "%d %s\n", i, state)
	}
	return nil
}

func printSerial(c *relay.Client, out io.Writer) error {
	serial, err := c.GetSerial()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, serial)
	return nil
}

func printVersion(c *relay.Client, out io.Writer) error {
	v, err := c.GetSwVersion()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, v)
	return nil
}

func run(o *options, logger zerolog.Logger) error {
	ch := relay.NewSerialChannel(o.Port)
	ch.BaudRate = o.Baud
	ch.Timeout = o.Timeout
	ch.Logger = logger
	if err := ch.Connect(); err != nil {
		return err
	}
	defer ch.Close()
	client := relay.NewClient(ch)

	if err := execute(client, o, os.Stdout); err != nil {
		return err
	}
	if o.Shell {
		return runShell(client, o.Port, o.args)
	}
	if o.MQTT != "" {
		setupGlog(o.Verbose)
		defer glog.Flush()
		b, err := bridge.NewFromURL(client, o.MQTT)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.Info().Str("broker", o.MQTT).Msg("bridging relays")
		return b.Run(ctx)
	}
	return nil
}

// setupGlog sends the bridge log to stderr. glog reads its settings from
// flag.CommandLine, which the usbrly flag set never parses.
func setupGlog(verbose bool) {
	_ = flag.Set("logtostderr", "true")
	if verbose {
		_ = flag.Set("v", "2")
	}
	if !flag.Parsed() {
		_ = flag.CommandLine.Parse(nil)
	}
}

// exitCode maps run errors: invalid arguments are usage errors.
func exitCode(err error) int {
	var uerr usageError
	if errors.As(err, &uerr) || errors.Is(err, relay.ErrInvalidArgument) {
		return 2
	}
	return 1
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "usbrly:", err)
		os.Exit(2)
	}
	logger := newLogger(os.Stderr, o.LogLevel)
	if err := run(o, logger); err != nil {
		logger.Error().Err(err).Msg("usbrly failed")
		os.Exit(exitCode(err))
	}
}
