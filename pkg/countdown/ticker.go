package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/cell"
)

// DefaultInterval is the recomputation period.
const DefaultInterval = time.Second

// Target is what a ticker counts down to.
type Target struct {
	// Expiration is zero when the selection has no certificate.
	Expiration time.Time

	// Revision is the device snapshot revision the target was derived from.
	Revision uint64
}

// Ticker republishes Format(target, now) every interval.
//
// At most one timer runs at a time. Restart stops the running timer and waits
// for it to exit before starting the next one, and every publish is checked
// against the current generation, so a superseded timer can never overwrite
// the countdown of a newer target.
type Ticker struct {
	interval time.Duration
	now      func() time.Time
	value    *cell.Cell[string]

	restartMu sync.Mutex // serializes Restart and Stop

	mu     sync.Mutex // guards the fields below and publishes
	gen    uint64
	target Target
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTicker creates a stopped ticker. A zero interval means DefaultInterval
// and a nil now means time.Now.
func NewTicker(interval time.Duration, now func() time.Time) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Ticker{
		interval: interval,
		now:      now,
		value:    cell.New(""),
	}
}

// Restart counts down to target from now on. The new value is published
// before Restart returns. A target derived from an older snapshot than the
// current one is ignored and Restart reports false.
func (t *Ticker) Restart(target Target) bool {
	t.restartMu.Lock()
	defer t.restartMu.Unlock()

	t.mu.Lock()
	stale := target.Revision < t.target.Revision
	t.mu.Unlock()
	if stale {
		return false
	}

	t.halt()

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.target = target
	t.mu.Unlock()

	t.publish(gen, Format(target.Expiration, t.now()))
	if target.Expiration.IsZero() {
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.mu.Lock()
	t.cancel, t.done = cancel, done
	t.mu.Unlock()

	go t.run(ctx, gen, target.Expiration, done)
	return true
}

// Stop halts the timer. The last published value is kept.
func (t *Ticker) Stop() {
	t.restartMu.Lock()
	defer t.restartMu.Unlock()
	t.halt()
}

// halt cancels the running timer and waits until it has exited.
func (t *Ticker) halt() {
	t.mu.Lock()
	t.gen++
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Ticker) run(ctx context.Context, gen uint64, expiration time.Time, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(t.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			t.publish(gen, Format(expiration, t.now()))
		}
	}
}

// publish stores s if gen is still current and the text changed.
// Subscribers run with t.mu held and must not call Restart or Stop.
func (t *Ticker) publish(gen uint64, s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	if t.value.Revision() > 0 && t.value.Load() == s {
		return
	}
	t.value.Store(s)
}

// Current returns the last published countdown.
func (t *Ticker) Current() string {
	return t.value.Load()
}

// Target returns the target of the most recent Restart.
func (t *Ticker) Target() Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// Subscribe calls fn whenever the countdown text changes.
func (t *Ticker) Subscribe(fn func(string)) (cancel func()) {
	return t.value.Subscribe(func(s string, _ uint64) { fn(s) })
}
