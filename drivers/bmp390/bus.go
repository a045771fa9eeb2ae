package bmp390

import (
	"sync"

	"tinygo.org/x/drivers"
)

// regs performs single-register transactions against one device address.
// Every transaction is bracketed by the bus lock, which is released on all
// exit paths. There are no retries.
type regs struct {
	i2c  drivers.I2C
	addr uint16
	lock sync.Locker

	// Fixed buffers. w is only touched with the bus lock held; r belongs to
	// the caller, which holds the device lock.
	w [2]byte
	r [1]byte
}

// read writes the register address and then reads len(buf) bytes. A failed
// address write short-circuits the read.
func (r *regs) read(reg byte, buf []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.w[0] = reg
	if err := r.i2c.Tx(r.addr, r.w[:1], nil); err != nil {
		return &BusError{Op: "read", Reg: reg, Err: err}
	}
	if err := r.i2c.Tx(r.addr, nil, buf); err != nil {
		return &BusError{Op: "read", Reg: reg, Err: err}
	}
	return nil
}

func (r *regs) readByte(reg byte) (byte, error) {
	if err := r.read(reg, r.r[:]); err != nil {
		return 0, err
	}
	return r.r[0], nil
}

func (r *regs) write(reg, val byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.w[0] = reg
	r.w[1] = val
	if err := r.i2c.Tx(r.addr, r.w[:2], nil); err != nil {
		return &BusError{Op: "write", Reg: reg, Err: err}
	}
	return nil
}
