package core

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/drivers"

	"barocode-go/drivers/bmp390"
	"barocode-go/types"
)

// ---- Capability & device model ----

type CapAddr struct {
	Domain string
	Kind   string
	Name   string
}

type CapabilitySpec struct {
	Domain string // defaults by kind
	Kind   types.Kind
	Name   string // defaults to the device id
	Info   types.Info
}

type Device interface {
	ID() string
	Capabilities() []CapabilitySpec
	Init(ctx context.Context) error
	// Control runs a verb and returns the reply payload. It runs on the HAL
	// goroutine.
	Control(addr CapAddr, verb string, payload any) (any, error)
	Close() error
}

// Polled devices are read by the HAL at the interval they report. The
// interval is re-read after every control.
type Polled interface {
	PollInterval() time.Duration // 0 stops polling
}

// Event is device telemetry handed to the HAL for publication.
type Event struct {
	Addr    CapAddr
	Payload any
	Err     string // non-empty => status degraded, no value published
	TS      int64  // Unix ns
}

type EventEmitter interface {
	Emit(ev Event) bool
}

// BusProvider hands out configured I²C buses together with the lock that
// serialises transactions on them.
type BusProvider interface {
	Configure(buses []types.BusConfig) error
	I2C(id string) (drivers.I2C, sync.Locker, error)
	Close() error
}

// ---- HAL-injected resources ----

type Resources struct {
	Buses BusProvider
	Pub   EventEmitter
	Log   logrus.FieldLogger
	Clock bmp390.Clock
}

// Builder input
type BuilderInput struct {
	ID, Type string
	Params   any
	Res      Resources
}

type Builder interface {
	Build(ctx context.Context, in BuilderInput) (Device, error)
}
