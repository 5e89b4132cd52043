package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/abiosoft/ishell"

	relay "github.com/zing-dev/usbrly-sdk"
)

// shellCmd is one command of the interactive shell.
type shellCmd struct {
	Name    string
	Aliases []string
	Help    string
	Run     func(c *relay.Client, args []string, out io.Writer) error
}

var shellCmds = []shellCmd{
	{
		Name: "on",
		Help: "N... switch relays on",
		Run: func(c *relay.Client, args []string, out io.Writer) error {
			return switchRelays(c, args, true)
		},
	},
	{
		Name: "off",
		Help: "N... switch relays off",
		Run: func(c *relay.Client, args []string, out io.Writer) error {
			return switchRelays(c, args, false)
		},
	},
	{
		Name: "all",
		Help: "on|off switch every relay",
		Run: func(c *relay.Client, args []string, out io.Writer) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: all on|off")
			}
			on, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			return c.SetAll(on)
		},
	},
	{
		Name: "set",
		Help: "MASK set every relay from a bit mask",
		Run: func(c *relay.Client, args []string, out io.Writer) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: set MASK")
			}
			m, err := parseMask(args[0])
			if err != nil {
				return err
			}
			return c.SetStates(m)
		},
	},
	{
		Name:    "states",
		Aliases: []string{"get", "g"},
		Help:    "print relay states",
		Run: func(c *relay.Client, args []string, out io.Writer) error {
			return printStates(c, out)
		},
	},
	{
		Name: "serial",
		Help: "print serial number",
		Run: func(c *relay.Client, args []string, out io.Writer) error {
			return printSerial(c, out)
		},
	},
	{
		Name: "version",
		Help: "print module id and software version",
		Run: func(c *relay.Client, args []string, out io.Writer) error {
			return printVersion(c, out)
		},
	},
}

func switchRelays(c *relay.Client, args []string, on bool) error {
	if len(args) == 0 {
		return fmt.Errorf("relay expected")
	}
	relays := make([]relay.Relay, 0, len(args))
	for _, arg := range args {
		i, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid relay %q", arg)
		}
		r, err := relay.ParseRelay(i)
		if err != nil {
			return err
		}
		relays = append(relays, r)
	}
	for _, r := range relays {
		if err := c.SetState(r, on); err != nil {
			return err
		}
	}
	return nil
}

type contextWriter struct {
	c *ishell.Context
}

func (w contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

// newShell creates an ishell shell driving c. The shell runs commands one
// at a time, so c is never used concurrently.
func newShell(c *relay.Client, port string) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt(port + " > ")
	for _, cmd := range shellCmds {
		cmd := cmd
		sh.AddCmd(&ishell.Cmd{
			Name:    cmd.Name,
			Aliases: cmd.Aliases,
			Help:    cmd.Help,
			Func: func(ctx *ishell.Context) {
				if err := cmd.Run(c, ctx.Args, contextWriter{ctx}); err != nil {
					ctx.Err(err)
				}
			},
		})
	}
	return sh
}

// runShell runs a single command given as args, or the interactive shell.
func runShell(c *relay.Client, port string, args []string) error {
	if len(args) > 0 {
		return runShellCmd(c, args, os.Stdout)
	}
	newShell(c, port).Run()
	return nil
}

// runShellCmd runs one shell command without ishell so that its error
// reaches the exit code.
func runShellCmd(c *relay.Client, args []string, out io.Writer) error {
	name := args[0]
	for _, cmd := range shellCmds {
		if cmd.Name == name || contains(cmd.Aliases, name) {
			return cmd.Run(c, args[1:], out)
		}
	}
	return usageError{fmt.Errorf("unknown shell command %q", name)}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
