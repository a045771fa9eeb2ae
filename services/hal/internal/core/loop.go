package core

import (
	"context"

	"github.com/sirupsen/logrus"

	"barocode-go/bus"
	"barocode-go/errcode"
	"barocode-go/types"
	"barocode-go/x/timex"
)

const (
	eventQueueLen = 16
	pollQueueLen  = 8
	readVerb      = "read"
)

type capKey struct {
	domain string
	kind   string
	name   string
}

type HAL struct {
	conn *bus.Connection
	res  Resources
	log  logrus.FieldLogger

	// Device registry
	dev map[string]Device // devID -> device

	// Capability index: (domain,kind,name) -> devID
	capIndex map[capKey]string
	// First capability of each device; polled reads are addressed here.
	primary map[string]CapAddr

	poller *Poller
	pollCh chan PollReq

	// Single-threaded publication of device events
	evCh chan Event
}

func NewHAL(conn *bus.Connection, res Resources) *HAL {
	if res.Log == nil {
		res.Log = logrus.StandardLogger()
	}
	pollCh := make(chan PollReq, pollQueueLen)
	h := &HAL{
		conn:     conn,
		res:      res,
		log:      res.Log.WithField("service", "hal"),
		dev:      map[string]Device{},
		capIndex: map[capKey]string{},
		primary:  map[string]CapAddr{},
		poller:   NewPoller(pollCh),
		pollCh:   pollCh,
		evCh:     make(chan Event, eventQueueLen),
	}
	// HAL provides the emitter to devices.
	h.res.Pub = h
	return h
}

func (h *HAL) Run(ctx context.Context) {
	cfgSub := h.conn.Subscribe(topicConfigHAL())
	ctrlSub := h.conn.Subscribe(ctrlWildcard())
	defer h.conn.Unsubscribe(cfgSub)
	defer h.conn.Unsubscribe(ctrlSub)

	go h.poller.Run(ctx)

	h.pubHALState("idle", "")
	ready := false
	for {
		select {
		case <-ctx.Done():
			h.stop("context_cancelled")
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				h.stop("disconnected")
				return
			}
			cfg, code := As[types.HALConfig](msg.Payload)
			if code != "" {
				h.log.WithField("code", code).Warn("ignoring malformed config")
				continue
			}
			// Additive: devices already running are left alone.
			h.applyConfig(ctx, cfg)
			if !ready {
				ready = true
				h.pubHALState("ready", "")
			}
		case m, ok := <-ctrlSub.Channel():
			if !ok {
				h.stop("disconnected")
				return
			}
			if !ready {
				h.replyErr(m, errcode.HALNotReady)
				continue
			}
			h.handleControl(m)
		case req := <-h.pollCh:
			h.handlePoll(req)
		case ev := <-h.evCh:
			// All device→HAL telemetry is published from this goroutine.
			h.handleEvent(ev)
		}
		// Drain events emitted by the work above before blocking again.
		h.drainEvents()
	}
}

func (h *HAL) applyConfig(ctx context.Context, cfg types.HALConfig) {
	if h.res.Buses != nil {
		if err := h.res.Buses.Configure(cfg.Buses); err != nil {
			h.log.WithError(err).Error("bus configuration failed")
		}
	}
	for i := range cfg.Devices {
		dc := cfg.Devices[i]
		if _, exists := h.dev[dc.ID]; exists {
			continue
		}
		log := h.log.WithFields(logrus.Fields{"id": dc.ID, "type": dc.Type})
		b, ok := lookupBuilder(dc.Type)
		if !ok {
			log.Warn("no builder for device type")
			continue
		}
		dev, err := b.Build(ctx, BuilderInput{
			ID:     dc.ID,
			Type:   dc.Type,
			Params: dc.Params,
			Res:    h.res,
		})
		if err != nil {
			log.WithError(err).Error("build failed")
			continue
		}
		if err := dev.Init(ctx); err != nil {
			log.WithError(err).Error("init failed")
			_ = dev.Close()
			continue
		}
		h.dev[dev.ID()] = dev

		// Register capabilities, publish retained info + initial status:down
		for i, cs := range dev.Capabilities() {
			k := string(cs.Kind)
			domain := cs.Domain
			if domain == "" {
				domain = defaultDomainFor(k)
			}
			name := cs.Name
			if name == "" {
				name = dev.ID()
			}
			h.capIndex[capKey{domain: domain, kind: k, name: name}] = dev.ID()
			if i == 0 {
				h.primary[dev.ID()] = CapAddr{Domain: domain, Kind: k, Name: name}
			}
			h.conn.Publish(h.conn.NewMessage(CapInfo(domain, k, name), cs.Info, true))
			h.conn.Publish(h.conn.NewMessage(
				CapStatus(domain, k, name),
				types.CapabilityStatus{Link: types.LinkDown, TS: timex.NowNs()},
				true,
			))
		}
		h.reschedule(dev)
		log.Info("device ready")
	}
}

func (h *HAL) handleControl(msg *bus.Message) {
	// hal/cap/<domain>/<kind>/<name>/control/<verb>
	if msg.Topic.Len() != 7 {
		h.replyErr(msg, errcode.InvalidTopic)
		return
	}
	domain, _ := msg.Topic.At(2).(string)
	kind, _ := msg.Topic.At(3).(string)
	name, _ := msg.Topic.At(4).(string)
	verb, _ := msg.Topic.At(6).(string)

	ownerID, ok := h.capIndex[capKey{domain: domain, kind: kind, name: name}]
	if !ok {
		h.replyErr(msg, errcode.UnknownCapability)
		return
	}
	dev := h.dev[ownerID]
	res, err := dev.Control(CapAddr{Domain: domain, Kind: kind, Name: name}, verb, msg.Payload)
	h.reschedule(dev)
	if err != nil {
		h.replyErr(msg, errcode.Of(err))
		return
	}
	if verb == readVerb {
		// A fresh read was just served; push the next poll out.
		h.poller.BumpAfter(ownerID, readVerb, timex.NowNs())
	}
	h.replyOK(msg, res)
}

func (h *HAL) handlePoll(req PollReq) {
	dev := h.dev[req.Dev]
	addr, ok := h.primary[req.Dev]
	if dev == nil || !ok {
		h.poller.Stop(req.Dev, req.Verb)
		return
	}
	if _, err := dev.Control(addr, req.Verb, nil); err != nil {
		h.log.WithError(err).WithField("id", req.Dev).Debug("poll")
	}
}

// reschedule keeps the poller in step with the device's current interval.
func (h *HAL) reschedule(dev Device) {
	p, ok := dev.(Polled)
	if !ok {
		return
	}
	if every := p.PollInterval(); every > 0 {
		h.poller.Upsert(dev.ID(), readVerb, every, every/10)
	} else {
		h.poller.Stop(dev.ID(), readVerb)
	}
}

func (h *HAL) handleEvent(ev Event) {
	d, k, n := ev.Addr.Domain, ev.Addr.Kind, ev.Addr.Name
	ts := ev.TS
	if ts == 0 {
		ts = timex.NowNs()
	}

	// Error → retained status:degraded; no value published.
	if ev.Err != "" {
		h.conn.Publish(h.conn.NewMessage(
			CapStatus(d, k, n),
			types.CapabilityStatus{Link: types.LinkDegraded, TS: ts, Error: ev.Err},
			true,
		))
		return
	}
	h.conn.Publish(h.conn.NewMessage(CapValue(d, k, n), ev.Payload, true))
	h.conn.Publish(h.conn.NewMessage(
		CapStatus(d, k, n),
		types.CapabilityStatus{Link: types.LinkUp, TS: ts},
		true,
	))
}

func (h *HAL) drainEvents() {
	for {
		select {
		case ev := <-h.evCh:
			h.handleEvent(ev)
		default:
			return
		}
	}
}

func (h *HAL) closeAll() {
	for id, dev := range h.dev {
		if err := dev.Close(); err != nil {
			h.log.WithError(err).WithField("id", id).Warn("close failed")
		}
	}
	h.drainEvents()
	if h.res.Buses != nil {
		_ = h.res.Buses.Close()
	}
}

// stop closes every device and publishes the final state.
func (h *HAL) stop(status string) {
	h.closeAll()
	h.pubHALState("stopped", status)
}

func (h *HAL) pubHALState(level, status string) {
	h.conn.Publish(h.conn.NewMessage(
		topicHALState(),
		types.HALState{Level: level, Status: status, TS: timex.NowNs()},
		true,
	))
}

func defaultDomainFor(kind string) string {
	switch kind {
	case "temperature", "humidity", "pressure", "barometer":
		return "env"
	default:
		return "io"
	}
}

// ---- HAL as EventEmitter (enqueue to single publisher) ----

func (h *HAL) Emit(ev Event) bool {
	select {
	case h.evCh <- ev:
		return true
	default:
		return false
	}
}
