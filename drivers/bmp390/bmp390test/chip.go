// Package bmp390test provides a register-level BMP390 emulator and a manual
// clock for exercising the bmp390 driver without hardware.
package bmp390test

import (
	"errors"
	"sync"
)

// ErrNack is returned for transactions to the wrong address or when a
// failure has been injected.
var ErrNack = errors.New("bmp390test: nack")

const (
	regChipID  = 0x00
	regRevID   = 0x01
	regErr     = 0x02
	regStatus  = 0x03
	regData    = 0x04
	regPwrCtrl = 0x1B
	regCmd     = 0x7E

	statusCmdReady = 0x10
	statusDRDY     = 0x60

	modeMask   = 0x30
	modeForced = 0x10
	modeNormal = 0x30

	cmdSoftReset = 0xB6
)

// Write is one register write observed on the bus.
type Write struct {
	Reg byte
	Val byte
}

// Chip emulates a BMP390 behind drivers.I2C. Reading any data register clears
// both data-ready bits, as the device does.
type Chip struct {
	mu sync.Mutex

	Addr uint16

	regs   [128]byte
	ptr    byte
	writes []Write
	sample [6]byte

	// AutoSample makes every forced-mode trigger latch the current sample.
	AutoSample bool

	failWrite map[byte]error
	failRead  map[byte]error
	failAll   error
	txCount   int
}

// NewChip returns an emulator at addr reporting chip id 0x60.
func NewChip(addr uint16) *Chip {
	c := &Chip{Addr: addr}
	c.reset()
	return c
}

func (c *Chip) reset() {
	c.regs = [128]byte{}
	c.regs[regChipID] = 0x60
	c.regs[regRevID] = 0x01
	c.regs[regStatus] = statusCmdReady
	c.regs[0x1C] = 0x02 // OSR reset value
	c.regs[0x1D] = 0x00
	c.regs[0x1F] = 0x00
}

// Tx implements drivers.I2C. A one-byte write sets the register pointer, a
// longer write stores bytes from the pointer onwards, and a read returns bytes
// from the pointer onwards. Both auto-increment.
func (c *Chip) Tx(addr uint16, w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txCount++
	if addr != c.Addr {
		return ErrNack
	}
	if c.failAll != nil {
		return c.failAll
	}
	if len(w) > 0 {
		c.ptr = w[0] & 0x7F
		if len(w) == 1 {
			if err := c.failRead[c.ptr]; err != nil && len(r) == 0 {
				return err
			}
		}
		for _, v := range w[1:] {
			if err := c.failWrite[c.ptr]; err != nil {
				return err
			}
			c.store(c.ptr, v)
			c.ptr = (c.ptr + 1) & 0x7F
		}
	}
	if len(r) > 0 {
		if err := c.failRead[c.ptr]; err != nil {
			return err
		}
		for i := range r {
			r[i] = c.regs[c.ptr]
			if c.ptr >= regData && c.ptr < regData+6 {
				c.regs[regStatus] &^= statusDRDY
			}
			c.ptr = (c.ptr + 1) & 0x7F
		}
	}
	return nil
}

func (c *Chip) store(reg, v byte) {
	c.writes = append(c.writes, Write{Reg: reg, Val: v})
	switch reg {
	case regCmd:
		if v == cmdSoftReset {
			c.reset()
		}
		return
	case regPwrCtrl:
		c.regs[reg] = v
		if v&modeMask == modeForced && c.AutoSample {
			c.latchLocked()
			// Forced conversions fall back to sleep when done.
			c.regs[reg] = v &^ modeMask
		}
		return
	case regChipID, regRevID, regErr, regStatus:
		return
	}
	c.regs[reg] = v
}

func (c *Chip) latchLocked() {
	copy(c.regs[regData:regData+6], c.sample[:])
	c.regs[regStatus] |= statusDRDY
}

// SetSample stores a raw DATA_0..DATA_5 block and raises both ready bits.
func (c *Chip) SetSample(b [6]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sample = b
	c.latchLocked()
}

// Feed stores the next conversion result. In normal mode it is latched at
// once; otherwise it waits for a forced trigger with AutoSample set.
func (c *Chip) Feed(b [6]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sample = b
	if c.regs[regPwrCtrl]&modeMask == modeNormal {
		c.latchLocked()
	}
}

// SetStatus overwrites STATUS.
func (c *Chip) SetStatus(v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[regStatus] = v
}

// SetReg overwrites any register without logging a write.
func (c *Chip) SetReg(reg, v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[reg&0x7F] = v
}

// Reg returns the current value of reg.
func (c *Chip) Reg(reg byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[reg&0x7F]
}

// Writes returns a copy of the write log.
func (c *Chip) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes...)
}

// ClearWrites empties the write log.
func (c *Chip) ClearWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = nil
}

// Tx count so far, including failed transactions.
func (c *Chip) TxCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txCount
}

// FailWrite makes writes to reg fail with err. A nil err clears it.
func (c *Chip) FailWrite(reg byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite == nil {
		c.failWrite = map[byte]error{}
	}
	if err == nil {
		delete(c.failWrite, reg)
		return
	}
	c.failWrite[reg] = err
}

// FailRead makes reads starting at reg fail with err. A nil err clears it.
func (c *Chip) FailRead(reg byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRead == nil {
		c.failRead = map[byte]error{}
	}
	if err == nil {
		delete(c.failRead, reg)
		return
	}
	c.failRead[reg] = err
}

// FailAll makes every transaction fail with err. A nil err clears it.
func (c *Chip) FailAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAll = err
}
