package platform

import (
	"io"
	"math"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"barocode-go/drivers/bmp390"
	"barocode-go/drivers/bmp390/bmp390test"
	"barocode-go/types"
)

// simPeriod is how often a simulated chip produces a new sample. Samples
// reach the data registers only in normal mode or on a forced trigger.
const simPeriod = 20 * time.Millisecond

// Raw counts the simulation oscillates around.
const (
	simRawPressure    = 1_200_000
	simRawTemperature = 150_000 // 22.5 °C
)

// simBus is an emulated BMP390 on its own bus at the default address.
type simBus struct {
	chip *bmp390test.Chip
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func openSim(p *Provider, cfg types.BusConfig) (drivers.I2C, io.Closer, error) {
	s := &simBus{
		chip: bmp390test.NewChip(bmp390.Address),
		stop: make(chan struct{}),
	}
	s.chip.AutoSample = true
	s.chip.Feed(simBlock(0))
	s.wg.Add(1)
	go s.feed()
	p.sims[cfg.ID] = s
	return s.chip, s, nil
}

// SimChip returns the emulated chip behind a sim bus once it is open.
func (p *Provider) SimChip(id string) (*bmp390test.Chip, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sims[id]
	if !ok {
		return nil, false
	}
	return s.chip, true
}

func (s *simBus) feed() {
	defer s.wg.Done()
	t := time.NewTicker(simPeriod)
	defer t.Stop()
	var n int
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			n++
			s.chip.Feed(simBlock(n))
		}
	}
}

func (s *simBus) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

// simBlock encodes sample n of a slow sine drift as DATA_0..DATA_5.
func simBlock(n int) [6]byte {
	phase := float64(n) / 500 * 2 * math.Pi
	rp := uint32(simRawPressure + 2000*math.Sin(phase))
	rt := uint32(simRawTemperature + 500*math.Cos(phase))
	var b [6]byte
	putRaw21(b[0:3], rp)
	putRaw21(b[3:6], rt)
	return b
}

func putRaw21(b []byte, v uint32) {
	b[0] = byte(v >> 13)
	b[1] = byte(v >> 5)
	b[2] = byte(v << 3)
}
