package core

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"barocode-go/bus"
	"barocode-go/types"
)

type fakeDevice struct {
	every time.Duration
	verbs []string
}

func (f *fakeDevice) ID() string                     { return "dev0" }
func (f *fakeDevice) Capabilities() []CapabilitySpec { return nil }
func (f *fakeDevice) Init(context.Context) error     { return nil }
func (f *fakeDevice) Close() error                   { return nil }
func (f *fakeDevice) PollInterval() time.Duration    { return f.every }
func (f *fakeDevice) Control(_ CapAddr, verb string, _ any) (any, error) {
	f.verbs = append(f.verbs, verb)
	return nil, nil
}

func newTestHAL(t *testing.T, dev *fakeDevice) *HAL {
	t.Helper()
	log := logrus.New()
	log.Out = io.Discard
	b := bus.NewBus(8)
	h := NewHAL(b.NewConnection("hal"), Resources{Log: log})
	h.dev[dev.ID()] = dev
	h.capIndex[capKey{domain: "env", kind: "pressure", name: "dev0"}] = dev.ID()
	h.primary[dev.ID()] = CapAddr{Domain: "env", Kind: "pressure", Name: "dev0"}
	return h
}

func ctrlMsg(h *HAL, verb string) *bus.Message {
	return h.conn.NewMessage(CapCtrl("env", "pressure", "dev0", verb), nil, false)
}

func TestControlReadDefersPoll(t *testing.T) {
	dev := &fakeDevice{every: time.Hour}
	h := newTestHAL(t, dev)
	h.reschedule(dev)
	key := pollKey{dev: "dev0", verb: readVerb}

	// Pretend the next poll is imminent.
	h.poller.items[key].due = time.Now().UnixNano()

	before := time.Now()
	h.handleControl(ctrlMsg(h, "status"))
	if due := h.poller.items[key].due; due > time.Now().UnixNano() {
		t.Fatal("status moved the poll deadline")
	}

	h.handleControl(ctrlMsg(h, readVerb))
	if due := h.poller.items[key].due; due < before.Add(time.Hour).UnixNano() {
		t.Fatalf("due=%v after read, want at least one interval out", time.Unix(0, due))
	}
	if len(dev.verbs) != 2 || dev.verbs[1] != readVerb {
		t.Fatalf("verbs=%v", dev.verbs)
	}
}

func TestControlStopsPollWhenIntervalZero(t *testing.T) {
	dev := &fakeDevice{every: time.Second}
	h := newTestHAL(t, dev)
	h.reschedule(dev)

	dev.every = 0
	h.handleControl(ctrlMsg(h, "set_mode"))
	if got := h.poller.Scheduled("dev0", readVerb); got != 0 {
		t.Fatalf("Scheduled=%v", got)
	}
}

func TestRunStopsOnDisconnect(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("hal")
	obs := b.NewConnection("obs")
	defer obs.Disconnect()
	stateSub := obs.Subscribe(topicHALState())

	log := logrus.New()
	log.Out = io.Discard
	h := NewHAL(conn, Resources{Log: log})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { h.Run(ctx); close(done) }()

	waitLevel := func(level string) types.HALState {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case m := <-stateSub.Channel():
				if st, ok := m.Payload.(types.HALState); ok && st.Level == level {
					return st
				}
			case <-deadline:
				t.Fatalf("state never reached %q", level)
			}
		}
	}
	waitLevel("idle")

	conn.Disconnect()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Disconnect")
	}
	if st := waitLevel("stopped"); st.Status != "disconnected" {
		t.Fatalf("status=%q", st.Status)
	}
}
