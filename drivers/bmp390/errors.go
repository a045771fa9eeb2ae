package bmp390

import (
	"errors"
	"strconv"
)

// Errors returned by the driver.
var (
	ErrProbe          = errors.New("bmp390: probe failed")
	ErrNotInitialized = errors.New("bmp390: not initialized")
	ErrInvalidIntent  = errors.New("bmp390: invalid sampling intent")
	ErrInvalidPreset  = errors.New("bmp390: invalid preset")
	ErrNotReady       = errors.New("bmp390: no new measurement")
	ErrSensorOff      = errors.New("bmp390: sensor off")
	ErrBus            = errors.New("bmp390: bus transaction failed")
	ErrConfig         = errors.New("bmp390: device rejected configuration")
	ErrResetTimeout   = errors.New("bmp390: not ready after soft reset")
)

// BusError reports a failed register transaction. It matches ErrBus with
// errors.Is and unwraps to the transport error.
type BusError struct {
	Op  string // "read" or "write"
	Reg byte
	Err error
}

func (e *BusError) Error() string {
	s := "bmp390: " + e.Op + " reg 0x" + strconv.FormatUint(uint64(e.Reg), 16)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *BusError) Unwrap() error { return e.Err }

func (e *BusError) Is(target error) bool { return target == ErrBus }

// ProbeError carries the chip id seen during a failed probe.
type ProbeError struct {
	Got byte
	Err error // transport error, if the read itself failed
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return "bmp390: probe failed: " + e.Err.Error()
	}
	return "bmp390: probe failed: chip id 0x" + strconv.FormatUint(uint64(e.Got), 16)
}

func (e *ProbeError) Unwrap() error { return e.Err }

func (e *ProbeError) Is(target error) bool { return target == ErrProbe }
