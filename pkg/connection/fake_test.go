package connection

import (
	"context"
	"sync"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/transport"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/wire"
)

// fakeChannel is an in-memory transport.Channel.
type fakeChannel struct {
	mu       sync.Mutex
	sent     [][]byte
	failSend error

	inbox      chan []byte
	closed     chan struct{}
	peerClosed chan struct{}
	closeOnce  sync.Once
	peerOnce   sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		inbox:      make(chan []byte, 64),
		closed:     make(chan struct{}),
		peerClosed: make(chan struct{}),
	}
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return transport.ErrChannelClosed
	default:
	}
	if c.failSend != nil {
		return c.failSend
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeChannel) Receive() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.closed:
		return nil, transport.ErrChannelClosed
	case <-c.peerClosed:
		return nil, transport.ErrChannelClosed
	}
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// push delivers a frame as if sent by the backend.
func (c *fakeChannel) push(data []byte) {
	c.inbox <- data
}

// hangUp simulates the backend closing the channel.
func (c *fakeChannel) hangUp() {
	c.peerOnce.Do(func() { close(c.peerClosed) })
}

func (c *fakeChannel) setFailSend(err error) {
	c.mu.Lock()
	c.failSend = err
	c.mu.Unlock()
}

// sentTypes decodes the transmitted envelopes' types.
func (c *fakeChannel) sentTypes() []wire.MessageType {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]wire.MessageType, 0, len(c.sent))
	for _, data := range c.sent {
		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			types = append(types, "<invalid>")
			continue
		}
		types = append(types, env.Type)
	}
	return types
}

func (c *fakeChannel) sentEnvelopes() []wire.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.Envelope, 0, len(c.sent))
	for _, data := range c.sent {
		env, _ := wire.DecodeEnvelope(data)
		out = append(out, env)
	}
	return out
}

// fakeDialer hands out fake channels and counts dials.
type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	failures []error
	channels []*fakeChannel
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (transport.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	ch := newFakeChannel()
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) failNext(errs ...error) {
	d.mu.Lock()
	d.failures = append(d.failures, errs...)
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

// recorder collects handler entries.
type recorder struct {
	mu      sync.Mutex
	entries []msglog.Entry
}

func (r *recorder) handle(e msglog.Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func (r *recorder) byOrigin(o wire.Origin) []msglog.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []msglog.Entry
	for _, e := range r.entries {
		if e.Origin == o {
			out = append(out, e)
		}
	}
	return out
}

// traceRecorder collects protocol trace events.
type traceRecorder struct {
	mu     sync.Mutex
	events []msglog.Event
}

func (t *traceRecorder) Log(e msglog.Event) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.mu.Unlock()
}

func (t *traceRecorder) states() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, e := range t.events {
		if e.StateChange != nil {
			out = append(out, e.StateChange.NewState)
		}
	}
	return out
}
