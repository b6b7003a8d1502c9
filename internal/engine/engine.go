// Package engine reconciles per-plant watering state with the garden
// controller.
//
// The Engine owns the Session Store. User intents enter through the command
// methods (StartManual, StartSmart, Stop, RestartValve), controller events
// through HandleEvent, snapshots through Rehydrate, and time through Tick.
// Every entry point is one atomic step under the engine lock; commands,
// notifications and persistence produced by the step are flushed after the
// lock is released.
package engine

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/prite36/irrigation-remote/internal/channel"
	"github.com/prite36/irrigation-remote/internal/models"
	"github.com/prite36/irrigation-remote/internal/protocol"
)

const (
	// FineTickInterval drives the displayed countdown.
	FineTickInterval = 100 * time.Millisecond
	// DefaultPendingTimeout bounds how long a start may wait for an answer.
	DefaultPendingTimeout = 90 * time.Second
)

// Options configures an Engine. Zero fields take defaults.
type Options struct {
	Clock             Clock
	Notifier          Notifier
	Persister         Persister
	SuppressionWindow time.Duration
	PendingTimeout    time.Duration
}

// Engine is the irrigation session reconciliation engine.
type Engine struct {
	mu sync.Mutex

	ch        channel.Adapter
	clock     Clock
	notifier  Notifier
	persister Persister

	store      *Store
	correlator Correlator
	suppress   *Suppression
	timers     *Supervisor
	catalog    map[int64]string

	pendingTimeout time.Duration
}

// New creates an Engine sending its commands through ch.
func New(ch channel.Adapter, o Options) *Engine {
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.Notifier == nil {
		o.Notifier = LogNotifier{}
	}
	if o.PendingTimeout <= 0 {
		o.PendingTimeout = DefaultPendingTimeout
	}
	store := NewStore()
	return &Engine{
		ch:             ch,
		clock:          o.Clock,
		notifier:       o.Notifier,
		persister:      o.Persister,
		store:          store,
		correlator:     Correlator{store: store},
		suppress:       NewSuppression(o.SuppressionWindow),
		timers:         newSupervisor(),
		catalog:        make(map[int64]string),
		pendingTimeout: o.PendingTimeout,
	}
}

// Attach subscribes the engine to every inbound event type of the channel.
func (e *Engine) Attach() {
	for _, t := range protocol.EventTypes() {
		e.ch.Subscribe(t, e.handleFrame)
	}
}

func (e *Engine) handleFrame(msgType string, data json.RawMessage) {
	ev, err := protocol.DecodeData(msgType, data)
	if err != nil {
		log.Printf("[WARN] Ignoring %s: %v", msgType, err)
		return
	}
	e.HandleEvent(ev)
}

// Run drives the fine countdown tick until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(FineTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

type outbound struct {
	plantID  int64
	cmd      protocol.Command
	rollback func(models.WateringState) bool
}

// step collects the side effects of one locked transition.
type step struct {
	cmds  []outbound
	notes []Notification
}

// send queues cmd. When rollback is set and the send fails, the plant is
// reset if rollback still holds for its state.
func (s *step) send(plantID int64, cmd protocol.Command, rollback func(models.WateringState) bool) {
	s.cmds = append(s.cmds, outbound{plantID: plantID, cmd: cmd, rollback: rollback})
}

func (s *step) notify(n Notification) {
	s.notes = append(s.notes, n)
}

// do runs fn under the engine lock and flushes its effects afterwards. The
// returned error is the first failed send of a command marked for rollback.
func (e *Engine) do(fn func(s *step)) error {
	var s step
	e.mu.Lock()
	fn(&s)
	dirty := e.store.takeDirty()
	e.mu.Unlock()

	e.persist(dirty)
	err := e.flush(s)
	for _, n := range s.notes {
		e.notifier.Notify(n)
	}
	return err
}

func (e *Engine) flush(s step) error {
	var firstErr error
	for _, o := range s.cmds {
		err := ErrChannelDisconnected
		if e.ch != nil {
			err = e.ch.Send(o.cmd)
		}
		if err == nil {
			continue
		}
		log.Printf("[ERROR] Failed to send %s for plant %d: %v", o.cmd.Type(), o.plantID, err)
		if o.rollback == nil {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
		e.mu.Lock()
		if o.rollback(e.store.Get(o.plantID)) {
			e.store.Reset(o.plantID)
			e.timers.release(o.plantID)
		} else {
			log.Printf("[INFO] Plant %d moved on before the failed %s; keeping its state", o.plantID, o.cmd.Type())
		}
		dirty := e.store.takeDirty()
		e.mu.Unlock()
		e.persist(dirty)
	}
	return firstErr
}

func (e *Engine) persist(dirty map[int64]models.WateringState) {
	if e.persister == nil || len(dirty) == 0 {
		return
	}
	if err := e.persister.SaveStates(dirty); err != nil {
		log.Printf("[ERROR] Failed to persist watering state: %v", err)
	}
}

// plantName returns the best known wire name of a plant.
func (e *Engine) plantName(id int64, st models.WateringState) string {
	if st.CurrentPlantName != "" {
		return st.CurrentPlantName
	}
	return e.catalog[id]
}

// PlantWatering pairs a plant id with its state.
type PlantWatering struct {
	PlantID int64                `json:"plantId"`
	State   models.WateringState `json:"state"`
}

// GetPlantWateringState returns the plant's state, idle if unknown.
func (e *Engine) GetPlantWateringState(plantID int64) models.WateringState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(plantID)
}

// GetWateringPlants returns the plants whose valve is expected open, in id order.
func (e *Engine) GetWateringPlants() []PlantWatering {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []PlantWatering
	for _, id := range e.store.IDs() {
		st := e.store.Get(id)
		if st.IsWateringActive {
			out = append(out, PlantWatering{PlantID: id, State: st})
		}
	}
	return out
}

func (e *Engine) IsAnyPlantWatering() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.store.Find(func(st models.WateringState) bool { return st.IsWateringActive })
	return ok
}

// PlantName returns the name of a plant as last seen in a snapshot or command.
func (e *Engine) PlantName(plantID int64) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plantName(plantID, e.store.Get(plantID))
}
