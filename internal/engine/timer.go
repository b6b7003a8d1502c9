package engine

import (
	"log"

	"github.com/prite36/irrigation-remote/internal/models"
)

// Supervisor tracks which plants hold a running countdown. It only keeps the
// slots; the countdown itself is always derived from the plant's TimerEndAt.
type Supervisor struct {
	slots map[int64]struct{}
}

func newSupervisor() *Supervisor {
	return &Supervisor{slots: make(map[int64]struct{})}
}

func (s *Supervisor) track(id int64) {
	s.slots[id] = struct{}{}
}

func (s *Supervisor) release(id int64) {
	delete(s.slots, id)
}

func (s *Supervisor) tracked(id int64) bool {
	_, ok := s.slots[id]
	return ok
}

func timed(st models.WateringState) bool {
	return st.Mode == models.ModeManual && st.TimerEndAt != nil
}

// Tick recomputes the countdown of every tracked plant from its absolute end
// time. A countdown reaching zero closes the valve through the stop path,
// exactly once, and frees the slot.
func (e *Engine) Tick() {
	_ = e.do(func(s *step) {
		now := e.clock.Now()
		for _, id := range e.store.IDs() {
			if !e.timers.tracked(id) {
				continue
			}
			st := e.store.Get(id)
			if !timed(st) {
				e.timers.release(id)
				continue
			}
			if st.HasRequestInFlight() {
				continue
			}
			left := secondsLeft(*st.TimerEndAt, now)
			if left > 0 {
				e.store.setTimeLeft(id, left)
				continue
			}
			log.Printf("[INFO] Watering timer of plant %d expired", id)
			e.timers.release(id)
			e.stopLocked(s, id)
		}
	})
}

// Discover assigns a countdown slot to every timed plant that lacks one, such
// as plants restored from a snapshot. It returns the number of new slots.
func (e *Engine) Discover() int {
	n := 0
	_ = e.do(func(s *step) {
		for _, id := range e.store.IDs() {
			if e.timers.tracked(id) || !timed(e.store.Get(id)) {
				continue
			}
			e.timers.track(id)
			n++
		}
	})
	return n
}
