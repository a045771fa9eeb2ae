// Package hal runs the hardware abstraction service: it builds devices from
// the retained "config/hal" message and exposes them as capabilities under
// hal/cap/<domain>/<kind>/<name>.
package hal

import (
	"context"

	"github.com/sirupsen/logrus"

	"barocode-go/bus"
	"barocode-go/drivers/bmp390"
	"barocode-go/drivers/bmp390/bmp390test"
	"barocode-go/services/hal/internal/core"
	"barocode-go/services/hal/internal/platform"

	// Device builders register themselves.
	_ "barocode-go/services/hal/devices/bmp390"
)

// Bus backends.
const (
	BackendPeriph = platform.BackendPeriph
	BackendEmbd   = platform.BackendEmbd
	BackendSim    = platform.BackendSim
)

type Options struct {
	Logger logrus.FieldLogger
	// Clock drives driver-side sampling. Default: wall clock.
	Clock bmp390.Clock
	// Backend applies to buses whose config names none. Default periph.
	Backend string
}

type Service struct {
	hal   *core.HAL
	buses *platform.Provider
}

func New(conn *bus.Connection, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	buses := platform.NewProvider(opts.Backend, opts.Logger)
	return &Service{
		hal: core.NewHAL(conn, core.Resources{
			Buses: buses,
			Log:   opts.Logger,
			Clock: opts.Clock,
		}),
		buses: buses,
	}
}

// Run blocks until ctx is cancelled, then closes every device and bus.
func (s *Service) Run(ctx context.Context) { s.hal.Run(ctx) }

// SimChip returns the emulated sensor behind a "sim" bus once it is open.
func (s *Service) SimChip(busID string) (*bmp390test.Chip, bool) { return s.buses.SimChip(busID) }

// HasBackend reports whether a bus backend is compiled in.
func HasBackend(name string) bool { return platform.HasBackend(name) }

// DeviceTypes lists the registered device builders.
func DeviceTypes() []string { return core.BuilderTypes() }

func CapInfo(domain, kind, name string) bus.Topic   { return core.CapInfo(domain, kind, name) }
func CapStatus(domain, kind, name string) bus.Topic { return core.CapStatus(domain, kind, name) }
func CapValue(domain, kind, name string) bus.Topic  { return core.CapValue(domain, kind, name) }

func CapCtrl(domain, kind, name, verb string) bus.Topic {
	return core.CapCtrl(domain, kind, name, verb)
}
