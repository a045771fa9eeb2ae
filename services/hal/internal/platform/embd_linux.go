//go:build linux

package platform

import (
	"io"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"
	"tinygo.org/x/drivers"

	"barocode-go/types"
)

func init() { backends[BackendEmbd] = openEmbd }

// openEmbd opens /dev/i2c-<cfg.Number>.
func openEmbd(_ *Provider, cfg types.BusConfig) (drivers.I2C, io.Closer, error) {
	b := embd.NewI2CBus(cfg.Number)
	return embdI2C{b}, b, nil
}

// embdI2C adapts an embd bus to the Tx form used by the drivers.
type embdI2C struct{ bus embd.I2CBus }

func (e embdI2C) Tx(addr uint16, w, r []byte) error {
	a := byte(addr)
	switch {
	case len(w) == 1 && len(r) > 0:
		return e.bus.ReadFromReg(a, w[0], r)
	case len(r) == 0:
		if len(w) == 0 {
			return nil
		}
		return e.bus.WriteBytes(a, w)
	}
	if len(w) > 0 {
		if err := e.bus.WriteBytes(a, w); err != nil {
			return err
		}
	}
	got, err := e.bus.ReadBytes(a, len(r))
	if err != nil {
		return err
	}
	copy(r, got)
	return nil
}
