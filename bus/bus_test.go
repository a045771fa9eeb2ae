// bus/bus_test.go
package bus

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T("hal", "cap", "env", "pressure", "baro0", "value"))
	conn.Publish(conn.NewMessage(T("hal", "cap", "env", "pressure", "baro0", "value"), "hello", false))

	expectOneOf(t, sub, "hello")
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(T("config", "hal"), "persist", true))
	sub := conn.Subscribe(T("config", "hal"))

	expectOneOf(t, sub, "persist")
}

func TestIntTokens(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")

	s := c.Subscribe(T("i2c", 1, "+"))
	c.Publish(b.NewMessage(T("i2c", 1, "tx"), "one", false))
	c.Publish(b.NewMessage(T("i2c", "1", "tx"), "string one", false))

	expectOneOf(t, s, "one")
	expectNoMessage(t, s)
	if got := T("i2c", 1, "tx").String(); got != "i2c/1/tx" {
		t.Fatalf("String()=%q", got)
	}
}

func TestQueueDropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s := c.Subscribe(T("x"))

	for _, p := range []string{"1", "2", "3"} {
		c.Publish(b.NewMessage(T("x"), p, false))
	}
	got := drainPayloads(t, s, 2)
	assertUnorderedEqual(t, got, []string{"2", "3"})
}

// -----------------------------------------------------------------------------
// Wildcards
// -----------------------------------------------------------------------------

func TestWildcard_SingleLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	sValue := c.Subscribe(T("hal", "+", "value"))
	sAny := c.Subscribe(T("hal", "+", "+"))
	sBaro := c.Subscribe(T("hal", "baro0", "+"))
	sNo := c.Subscribe(T("hal", "+", "status"))

	c.Publish(b.NewMessage(T("hal", "baro0", "value"), "m1", false))

	expectOneOf(t, sValue, "m1")
	expectOneOf(t, sAny, "m1")
	expectOneOf(t, sBaro, "m1")
	expectNoMessage(t, sNo)

	c.Publish(b.NewMessage(T("hal", "baro1", "info"), "m2", false))
	expectOneOf(t, sAny, "m2")
	expectNoMessage(t, sValue)
	expectNoMessage(t, sBaro)

	// + never matches zero levels.
	c.Publish(b.NewMessage(T("hal", "value"), "m3", false))
	expectNoMessage(t, sValue)
	expectNoMessage(t, sAny)
}

func TestWildcard_MultiLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	sHalHash := c.Subscribe(T("hal", "#"))
	sHash := c.Subscribe(T("#"))
	sCapHash := c.Subscribe(T("hal", "cap", "#"))
	sHal := c.Subscribe(T("hal"))

	c.Publish(b.NewMessage(T("hal"), "p1", false))
	expectOneOf(t, sHalHash, "p1")
	expectOneOf(t, sHash, "p1")
	expectOneOf(t, sHal, "p1")
	expectNoMessage(t, sCapHash)

	c.Publish(b.NewMessage(T("hal", "cap", "env"), "p2", false))
	expectOneOf(t, sHalHash, "p2")
	expectOneOf(t, sHash, "p2")
	expectOneOf(t, sCapHash, "p2")
	expectNoMessage(t, sHal)
}

func TestWildcard_RetainedDelivery(t *testing.T) {
	b := NewBus(32)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(T("a"), "r0", true))
	c.Publish(b.NewMessage(T("a", "b"), "r1", true))
	c.Publish(b.NewMessage(T("a", "b", "c"), "r2", true))
	c.Publish(b.NewMessage(T("a", "x"), "r3", true))

	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(T("a", "#")), 4), []string{"r0", "r1", "r2", "r3"})
	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(T("a", "+", "#")), 3), []string{"r1", "r2", "r3"})
	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(T("a", "+")), 2), []string{"r1", "r3"})
}

func TestWildcard_RetainedClear(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(b.NewMessage(T("a", "b"), "keep", true))
	c.Publish(b.NewMessage(T("a", "y"), "other", true))
	c.Publish(b.NewMessage(T("a", "b"), nil, true))

	got := drainPayloads(t, c.Subscribe(T("a", "#")), 1)
	if got[0] != "other" {
		t.Fatalf("expected only 'other' after clear, got %v", got)
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	s := c.Subscribe(T("a"))
	s.Unsubscribe()
	c.Unsubscribe(s) // no double close

	if _, ok := <-s.Channel(); ok {
		t.Fatal("channel still open")
	}
	c.Publish(b.NewMessage(T("a"), "late", false))

	s2 := c.Subscribe(T("b"))
	c.Disconnect()
	if _, ok := <-s2.Channel(); ok {
		t.Fatal("Disconnect left channel open")
	}
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

func TestRequestReply_RequestWait(t *testing.T) {
	b := NewBus(8)
	reqConn := b.NewConnection("requester")
	respConn := b.NewConnection("responder")

	reqTopic := T("hal", "cap", "env", "pressure", "baro0", "control", "read")
	respSub := respConn.Subscribe(reqTopic)
	defer respConn.Unsubscribe(respSub)

	go func() {
		if msg, ok := <-respSub.Channel(); ok {
			respConn.Reply(msg, "OK", false)
		}
	}()

	req := b.NewMessage(reqTopic, nil, false)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	reply, err := reqConn.RequestWait(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error waiting for reply: %v", err)
	}
	if got, ok := reply.Payload.(string); !ok || got != "OK" {
		t.Fatalf("unexpected reply payload: %#v", reply.Payload)
	}
	if len(req.ReplyTo) == 0 || !topicsEqual(reply.Topic, req.ReplyTo) {
		t.Fatalf("reply topic %v != request ReplyTo %v", reply.Topic, req.ReplyTo)
	}
}

func TestRequestReply_Timeout(t *testing.T) {
	b := NewBus(8)
	reqConn := b.NewConnection("requester")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := reqConn.RequestWait(ctx, b.NewMessage(T("service", "noop"), nil, false))
	if !errors.Is(err, ErrNoReply) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestReplyWithoutReplyToIgnored(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("c")
	all := c.Subscribe(T("#"))
	c.Reply(b.NewMessage(T("x"), nil, false), "nobody", false)
	expectNoMessage(t, all)
}

func TestTopic_InvalidTokenPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for non-comparable token, got none")
		}
	}()
	_ = T([]byte{1, 2, 3})
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func topicsEqual(a, b Topic) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func expectOneOf(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("unexpected payload: %v (want %q)", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func drainPayloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.Now().Add(300 * time.Millisecond)
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			if !ok {
				t.Fatalf("non-string payload in drain: %#v", m.Payload)
			}
			out = append(out, s)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(out) != n {
		t.Fatalf("drainPayloads: expected %d messages, got %d (%v)", n, len(out), out)
	}
	return out
}

func assertUnorderedEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %v want %v", i, got, want)
		}
	}
}
