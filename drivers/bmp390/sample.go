package bmp390

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// Validity marks how much a Reading can be trusted.
type Validity uint8

const (
	NoReading Validity = iota // nothing decoded since start
	Stale                     // decoded, but sampling stopped or the poller fell behind
	Fresh
)

func (v Validity) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "none"
	}
}

// Reading is one decoded measurement.
type Reading struct {
	Pressure    physic.Pressure
	Temperature physic.Temperature
	Validity    Validity
	At          time.Time
}

// Fixed output scaling per raw LSB: 8.5 mPa and 0.15 m°C.
const (
	pressureLSB    = 8500 * physic.MicroPascal
	temperatureLSB = 150 * physic.MicroKelvin
)

// raw21 reassembles a 3-byte MSB-first data group. The low three bits of the
// last byte carry no information at the resolution used here.
func raw21(b []byte) uint32 {
	return uint32(b[0])<<13 | uint32(b[1])<<5 | uint32(b[2])>>3
}

// decodeBlock converts the 6-byte DATA_0..DATA_5 block.
func decodeBlock(b []byte) (physic.Pressure, physic.Temperature) {
	rp := raw21(b[0:3])
	rt := raw21(b[3:6])
	return physic.Pressure(rp) * pressureLSB,
		physic.ZeroCelsius + physic.Temperature(rt)*temperatureLSB
}

// DataReady reads STATUS and latches the result. Both the pressure and the
// temperature ready bits must be set.
func (d *Device) DataReady() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	if err := d.checkReadyLocked(); err != nil {
		return false, err
	}
	return d.ready, nil
}

// Sample decodes the latest measurement if the device flags one as new.
// A measurement is returned at most once; until the device signals another
// one Sample returns ErrNotReady.
func (d *Device) Sample() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mustInit()
	return d.sampleLocked()
}

func (d *Device) checkReadyLocked() error {
	if d.ready {
		return nil
	}
	st, err := d.regs.readByte(regStatus)
	if err != nil {
		return err
	}
	d.ready = st&statusDataReady == statusDataReady
	return nil
}

// sampleLocked is the decoder. d.mu held.
func (d *Device) sampleLocked() (Reading, error) {
	if d.intent == Disabled {
		return Reading{}, ErrSensorOff
	}
	if err := d.checkReadyLocked(); err != nil {
		return Reading{}, err
	}
	if !d.ready {
		return Reading{}, ErrNotReady
	}
	err := d.regs.read(regData, d.block[:])
	d.ready = false
	if err != nil {
		return Reading{}, err
	}
	p, t := decodeBlock(d.block[:])
	d.reading = Reading{
		Pressure:    p,
		Temperature: t,
		Validity:    Fresh,
		At:          d.clock.Now(),
	}
	d.samples++
	return d.reading, nil
}
