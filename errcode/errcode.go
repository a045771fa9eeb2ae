package errcode

import (
	"context"
	"errors"

	"barocode-go/drivers/bmp390"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	HALNotReady       Code = "hal_not_ready"
	InvalidTopic      Code = "invalid_topic"
	Timeout           Code = "timeout"

	UnknownBus Code = "unknown_bus"
	BusInUse   Code = "bus_in_use"

	// Barometer.
	NoDevice      Code = "no_device"
	NotReady      Code = "not_ready"
	SensorOff     Code = "sensor_off"
	BusError      Code = "bus_error"
	InvalidMode   Code = "invalid_mode"
	ConfigReject  Code = "config_rejected"
	NotInUse      Code = "not_in_use"
	NotConfigured Code = "not_configured"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap attaches op and a mapped code to err. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: MapDriverErr(err), Op: op, Msg: err.Error(), Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return MapDriverErr(err)
}

// MapDriverErr maps low-level driver errors to a Code.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, bmp390.ErrProbe):
		return NoDevice
	case errors.Is(err, bmp390.ErrNotReady):
		return NotReady
	case errors.Is(err, bmp390.ErrSensorOff):
		return SensorOff
	case errors.Is(err, bmp390.ErrBus):
		return BusError
	case errors.Is(err, bmp390.ErrInvalidIntent), errors.Is(err, bmp390.ErrInvalidPreset):
		return InvalidMode
	case errors.Is(err, bmp390.ErrConfig):
		return ConfigReject
	case errors.Is(err, bmp390.ErrNotInitialized):
		return HALNotReady
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, bmp390.ErrResetTimeout):
		return Timeout
	}
	return Error
}
