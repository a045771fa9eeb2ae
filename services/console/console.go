// Package console is a line-oriented diagnostic shell over the HAL controls.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/shlex"
	"github.com/sirupsen/logrus"

	"barocode-go/bus"
	"barocode-go/errcode"
	"barocode-go/services/hal"
	"barocode-go/types"
)

const (
	serviceName    = "console"
	defaultPrompt  = "> "
	defaultDevice  = "baro0"
	requestTimeout = 2 * time.Second
)

var errUsage = errors.New("usage")

const help = `commands:
  pressure read       last pressure in mPa
  temperature read    last temperature in m°C
  mode <off|slow|fast|faster>
  status
  use | release | start | reset
  help
`

type Console struct {
	conn   *bus.Connection
	in     io.Reader
	out    io.Writer
	log    logrus.FieldLogger
	device string
	prompt string
}

func New(conn *bus.Connection, in io.Reader, out io.Writer, log logrus.FieldLogger) *Console {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Console{
		conn:   conn,
		in:     in,
		out:    out,
		log:    log.WithField("service", serviceName),
		device: defaultDevice,
		prompt: defaultPrompt,
	}
}

// Run waits for "config/console" and, when enabled, executes one command
// per input line until ctx ends or input closes.
func (c *Console) Run(ctx context.Context) {
	sub := c.conn.Subscribe(bus.T("config", serviceName))
	var cfg types.ConsoleConfig
	select {
	case <-ctx.Done():
		c.conn.Unsubscribe(sub)
		return
	case m, ok := <-sub.Channel():
		if !ok {
			return
		}
		cfg, _ = m.Payload.(types.ConsoleConfig)
	}
	c.conn.Unsubscribe(sub)
	if !cfg.Enabled {
		c.log.Debug("disabled")
		return
	}
	if cfg.Device != "" {
		c.device = cfg.Device
	}
	if cfg.Prompt != "" {
		c.prompt = cfg.Prompt
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprint(c.out, c.prompt)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			out, err := c.Exec(ctx, line)
			switch {
			case errors.Is(err, errUsage):
				fmt.Fprint(c.out, help)
			case err != nil:
				fmt.Fprintf(c.out, "error: %v\n", err)
			case out != "":
				fmt.Fprintln(c.out, out)
			}
			fmt.Fprint(c.out, c.prompt)
		}
	}
}

// Exec runs one command line and returns its output.
func (c *Console) Exec(ctx context.Context, line string) (string, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return "", err
	}
	if len(args) == 0 {
		return "", nil
	}
	switch args[0] {
	case "pressure", "temperature":
		if len(args) != 2 || args[1] != "read" {
			return "", errUsage
		}
		return c.read(ctx, args[0])
	case "mode":
		if len(args) != 2 {
			return "", errUsage
		}
		rep, err := c.control(ctx, types.KindBarometer, "set_mode", types.SetMode{Mode: args[1]})
		if err != nil {
			return "", err
		}
		return describe(rep), nil
	case "status", "use", "release", "start", "reset":
		if len(args) != 1 {
			return "", errUsage
		}
		rep, err := c.control(ctx, types.KindBarometer, args[0], nil)
		if err != nil {
			return "", err
		}
		return describe(rep), nil
	case "help":
		return strings.TrimRight(help, "\n"), nil
	}
	return "", errUsage
}

// read prints the value as a bare integer followed by a space.
func (c *Console) read(ctx context.Context, kind string) (string, error) {
	rep, err := c.control(ctx, types.Kind(kind), "read", nil)
	if err != nil {
		return "", err
	}
	switch v := rep.(type) {
	case types.PressureValue:
		return fmt.Sprintf("%d ", v.MilliPa), nil
	case types.TemperatureValue:
		return fmt.Sprintf("%d ", v.MilliC), nil
	}
	return "", fmt.Errorf("unexpected reply %T", rep)
}

func (c *Console) control(ctx context.Context, kind types.Kind, verb string, payload any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	m, err := c.conn.RequestWait(ctx, c.conn.NewMessage(
		hal.CapCtrl("env", string(kind), c.device, verb), payload, false))
	if err != nil {
		return nil, &errcode.E{C: errcode.Timeout, Op: verb, Err: err}
	}
	switch r := m.Payload.(type) {
	case types.ErrorReply:
		return nil, errcode.Code(r.Error)
	case types.OKReply:
		return nil, nil
	}
	return m.Payload, nil
}

func describe(rep any) string {
	st, ok := rep.(types.BarometerState)
	if !ok {
		return "ok"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "mode %s", st.Mode)
	if st.Acquisition != "" {
		fmt.Fprintf(&b, " (%s every %v)", st.Acquisition, time.Duration(st.PeriodMs)*time.Millisecond)
	}
	fmt.Fprintf(&b, ", users %d", st.Users)
	if !st.Configured && st.Mode != "off" {
		b.WriteString(", not configured")
	}
	fmt.Fprintf(&b, ", reading %s, %s samples", st.Validity, humanize.Comma(int64(st.Samples)))
	return b.String()
}
