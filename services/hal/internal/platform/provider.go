package platform

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/drivers"

	"barocode-go/errcode"
	"barocode-go/types"
)

// Backend names accepted in types.BusConfig.
const (
	BackendPeriph = "periph"
	BackendEmbd   = "embd"
	BackendSim    = "sim"
)

// opener opens one configured bus.
type opener func(p *Provider, cfg types.BusConfig) (drivers.I2C, io.Closer, error)

var backends = map[string]opener{
	BackendPeriph: openPeriph,
	BackendSim:    openSim,
}

// HasBackend reports whether name is available in this build.
func HasBackend(name string) bool {
	_, ok := backends[name]
	return ok
}

type bus struct {
	cfg    types.BusConfig
	dev    drivers.I2C
	closer io.Closer
	lock   sync.Mutex // serialises transactions from every device on the bus
}

// Provider opens buses on first use and hands every device on a bus the
// same lock.
type Provider struct {
	mu       sync.Mutex
	log      logrus.FieldLogger
	fallback string
	cfgs     map[string]types.BusConfig
	open     map[string]*bus
	sims     map[string]*simBus
}

// NewProvider returns a Provider. defaultBackend applies to buses that do
// not name one.
func NewProvider(defaultBackend string, log logrus.FieldLogger) *Provider {
	if defaultBackend == "" {
		defaultBackend = BackendPeriph
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Provider{
		log:      log.WithField("component", "buses"),
		fallback: defaultBackend,
		cfgs:     map[string]types.BusConfig{},
		open:     map[string]*bus{},
		sims:     map[string]*simBus{},
	}
}

// Configure records bus declarations. Re-declaring an open bus with
// different settings fails with BusInUse; the rest are still applied.
func (p *Provider) Configure(buses []types.BusConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, c := range buses {
		if c.Backend == "" {
			c.Backend = p.fallback
		}
		if c.ID == "" || !HasBackend(c.Backend) {
			if first == nil {
				first = &errcode.E{C: errcode.InvalidParams, Op: "configure bus", Msg: fmt.Sprintf("%q backend %q", c.ID, c.Backend)}
			}
			continue
		}
		if b, ok := p.open[c.ID]; ok && b.cfg != c {
			if first == nil {
				first = &errcode.E{C: errcode.BusInUse, Op: "configure bus", Msg: c.ID}
			}
			continue
		}
		p.cfgs[c.ID] = c
	}
	return first
}

// I2C returns the bus named id and its transaction lock.
func (p *Provider) I2C(id string) (drivers.I2C, sync.Locker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.open[id]; ok {
		return b.dev, &b.lock, nil
	}
	cfg, ok := p.cfgs[id]
	if !ok {
		return nil, nil, &errcode.E{C: errcode.UnknownBus, Op: "open bus", Msg: id}
	}
	dev, closer, err := backends[cfg.Backend](p, cfg)
	if err != nil {
		return nil, nil, &errcode.E{C: errcode.UnknownBus, Op: "open bus", Msg: id, Err: err}
	}
	b := &bus{cfg: cfg, dev: dev, closer: closer}
	p.open[id] = b
	p.log.WithFields(logrus.Fields{"bus": id, "backend": cfg.Backend}).Info("bus opened")
	return b.dev, &b.lock, nil
}

// Close closes every open bus.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for id, b := range p.open {
		if b.closer != nil {
			if err := b.closer.Close(); err != nil {
				p.log.WithError(err).WithField("bus", id).Warn("close failed")
				if first == nil {
					first = err
				}
			}
		}
		delete(p.open, id)
	}
	return first
}
