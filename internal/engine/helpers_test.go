package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prite36/irrigation-remote/internal/channel"
	"github.com/prite36/irrigation-remote/internal/models"
	"github.com/prite36/irrigation-remote/internal/protocol"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeChannel struct {
	channel.Registry

	mu        sync.Mutex
	connected bool
	sendErr   error
	sent      []protocol.Command
	// onSend runs on every send before its result is returned.
	onSend func(cmd protocol.Command)
}

func (c *fakeChannel) Send(cmd protocol.Command) error {
	c.mu.Lock()
	hook, err := c.onSend, c.sendErr
	if err == nil {
		c.sent = append(c.sent, cmd)
	}
	c.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	return err
}

func (c *fakeChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) Close() {}

func (c *fakeChannel) commands() []protocol.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Command(nil), c.sent...)
}

func (c *fakeChannel) count(cmdType string) int {
	n := 0
	for _, cmd := range c.commands() {
		if cmd.Type() == cmdType {
			n++
		}
	}
	return n
}

type recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

func (r *recorder) titles() []string {
	var out []string
	for _, n := range r.all() {
		out = append(out, n.Title)
	}
	return out
}

type memPersister struct {
	mu     sync.Mutex
	states map[int64]models.WateringState
}

func (p *memPersister) SaveStates(states map[int64]models.WateringState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.states == nil {
		p.states = make(map[int64]models.WateringState)
	}
	for id, st := range states {
		p.states[id] = st
	}
	return nil
}

type harness struct {
	clock  *fakeClock
	ch     *fakeChannel
	notes  *recorder
	store  *memPersister
	engine *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: newFakeClock(),
		ch:    &fakeChannel{connected: true},
		notes: &recorder{},
		store: &memPersister{},
	}
	h.engine = New(h.ch, Options{
		Clock:     h.clock,
		Notifier:  h.notes,
		Persister: h.store,
	})
	return h
}

// advance moves the clock in 100 ms steps, ticking the engine at each step.
func (h *harness) advance(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += FineTickInterval {
		h.clock.Advance(FineTickInterval)
		h.engine.Tick()
	}
}

func (h *harness) state(id int64) models.WateringState {
	return h.engine.GetPlantWateringState(id)
}

var errBroken = errors.New("broken pipe")

// assertConsistent checks that the countdown fields agree with the mode tag.
func assertConsistent(t *testing.T, st models.WateringState) {
	t.Helper()
	if (st.TimerEndAt != nil) != (st.Mode == models.ModeManual) {
		t.Fatalf("timer end %v does not match mode %s", st.TimerEndAt, st.Mode)
	}
	switch st.Mode {
	case models.ModeIdle, models.ModeManualPending, models.ModeManual, models.ModeSmartPending, models.ModeSmart:
	default:
		t.Fatalf("unknown mode %q", st.Mode)
	}
}
