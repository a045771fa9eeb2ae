package platform

import (
	"io"
	"sync"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"barocode-go/types"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// openPeriph opens cfg.Name through the periph registry. An empty name
// selects the first bus found.
func openPeriph(p *Provider, cfg types.BusConfig) (drivers.I2C, io.Closer, error) {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return nil, nil, hostErr
	}
	b, err := i2creg.Open(cfg.Name)
	if err != nil {
		return nil, nil, err
	}
	p.log.WithField("bus", b.String()).Debug("periph bus")
	return b, b, nil
}
