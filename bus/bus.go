// bus.go
package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is a sequence of comparable tokens (usually strings, sometimes ints).
type Topic []any

// Wildcards, valid in subscriptions only. "#" must be the last token.
const (
	SingleWild = "+"
	MultiWild  = "#"
)

// T builds a topic and panics on non-comparable tokens.
func T(tokens ...any) Topic {
	for _, tok := range tokens {
		if tok == nil || !reflect.TypeOf(tok).Comparable() {
			panic("bus: topic token must be comparable")
		}
	}
	return Topic(tokens)
}

// Append returns a new topic with extra tokens.
func (t Topic) Append(tokens ...any) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, T(tokens...)...)
}

func (t Topic) Len() int { return len(t) }

// At returns the token at i, or nil when out of range.
func (t Topic) At(i int) any {
	if i < 0 || i >= len(t) {
		return nil
	}
	return t[i]
}

func (t Topic) String() string {
	s := ""
	for i, tok := range t {
		if i > 0 {
			s += "/"
		}
		switch v := tok.(type) {
		case string:
			s += v
		case int:
			s += strconv.Itoa(v)
		default:
			s += fmt.Sprint(v)
		}
	}
	return s
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

func (m *Message) CanReply() bool { return m != nil && len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// deliver never blocks; a full queue drops its oldest message.
func (s *Subscription) deliver(m *Message) {
	select {
	case s.ch <- m:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- m:
	default:
	}
}

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[any]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok any, create bool) *node {
	if c, ok := n.children[tok]; ok || !create {
		return c
	}
	if n.children == nil {
		n.children = make(map[any]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu   sync.RWMutex
	root *node
	qLen int
	seq  atomic.Uint64
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

// NewMessage builds a message; the caller publishes it.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	var retained []*Message
	collectRetained(b.root, sub.topic, &retained)
	for _, m := range retained {
		sub.deliver(m)
	}
}

// collectRetained gathers retained messages whose topics match pattern.
func collectRetained(n *node, pattern Topic, out *[]*Message) {
	if len(pattern) == 0 {
		if n.retained != nil {
			*out = append(*out, n.retained)
		}
		return
	}
	switch pattern[0] {
	case MultiWild:
		collectAll(n, out)
	case SingleWild:
		for _, c := range n.children {
			collectRetained(c, pattern[1:], out)
		}
	default:
		if c := n.children[pattern[0]]; c != nil {
			collectRetained(c, pattern[1:], out)
		}
	}
}

func collectAll(n *node, out *[]*Message) {
	if n.retained != nil {
		*out = append(*out, n.retained)
	}
	for _, c := range n.children {
		collectAll(c, out)
	}
}

// matchSubs gathers subscriptions whose patterns match topic.
func matchSubs(n *node, topic Topic, out *[]*Subscription) {
	if c := n.children[MultiWild]; c != nil {
		*out = append(*out, c.subs...)
	}
	if len(topic) == 0 {
		*out = append(*out, n.subs...)
		return
	}
	if c := n.children[topic[0]]; c != nil {
		matchSubs(c, topic[1:], out)
	}
	if c := n.children[SingleWild]; c != nil {
		matchSubs(c, topic[1:], out)
	}
}

// Publish delivers msg to every matching subscriber. A retained message is
// stored for future subscribers; a retained nil payload clears the store.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		n := b.root
		for _, tok := range msg.Topic {
			n = n.child(tok, true)
		}
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}

	var subs []*Subscription
	matchSubs(b.root, msg.Topic, &subs)
	for _, s := range subs {
		s.deliver(msg)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	stack := make([]*node, 0, len(sub.topic))
	for _, tok := range sub.topic {
		c := n.child(tok, false)
		if c == nil {
			return false
		}
		stack = append(stack, n)
		n = c
	}
	found := false
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			found = true
			break
		}
	}
	// Prune empty nodes.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent, key := stack[i], sub.topic[i]
		c := parent.children[key]
		if len(c.subs) != 0 || len(c.children) != 0 || c.retained != nil {
			break
		}
		delete(parent.children, key)
	}
	return found
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes sub and closes its channel. Repeated calls are no-ops.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	owned := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			owned = true
			break
		}
	}
	c.mu.Unlock()
	if owned && c.bus.unsubscribe(sub) {
		close(sub.ch)
	}
}

// Disconnect closes all subscriptions.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		if c.bus.unsubscribe(sub) {
			close(sub.ch)
		}
	}
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

// ErrNoReply is returned by RequestWait when ctx ends first.
var ErrNoReply = errors.New("bus: no reply")

// Request assigns msg a private reply topic, subscribes to it and publishes
// msg. The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	msg.ReplyTo = T("_reply", c.id, int(c.bus.seq.Add(1)))
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait publishes msg and waits for the first reply.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		return m, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrNoReply, ctx.Err())
	}
}

// Reply answers req on its ReplyTo topic. Requests without one are ignored.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if !req.CanReply() {
		return
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}
