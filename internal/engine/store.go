package engine

import (
	"sort"

	"github.com/prite36/irrigation-remote/internal/models"
)

// Store maps plant ids to their watering state. A plant that was never
// written reads as idle. Store is not safe for concurrent use; the Engine
// serialises access to it.
type Store struct {
	states map[int64]models.WateringState
	dirty  map[int64]struct{}
}

func NewStore() *Store {
	return &Store{
		states: make(map[int64]models.WateringState),
		dirty:  make(map[int64]struct{}),
	}
}

// Get returns a copy of the plant's state, or the idle state if absent.
func (s *Store) Get(id int64) models.WateringState {
	st, ok := s.states[id]
	if !ok {
		return models.IdleState()
	}
	return clone(st).Normalized()
}

// Put replaces the plant's state and marks it for persistence.
func (s *Store) Put(id int64, st models.WateringState) {
	s.states[id] = clone(st).Normalized()
	s.dirty[id] = struct{}{}
}

// setTimeLeft updates the derived countdown without marking the plant dirty.
func (s *Store) setTimeLeft(id int64, sec int) {
	st, ok := s.states[id]
	if !ok {
		return
	}
	st.WateringTimeLeftSec = sec
	s.states[id] = st
}

// Reset returns the plant to idle. The blocked flag describes the hardware,
// not the run, and survives.
func (s *Store) Reset(id int64) {
	blocked := s.Get(id).IsBlocked
	st := models.IdleState()
	st.IsBlocked = blocked
	s.Put(id, st)
}

// IDs returns the known plant ids in ascending order.
func (s *Store) IDs() []int64 {
	ids := make([]int64, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Find returns the first plant, in id order, whose state satisfies match.
func (s *Store) Find(match func(models.WateringState) bool) (int64, bool) {
	for _, id := range s.IDs() {
		if match(s.Get(id)) {
			return id, true
		}
	}
	return 0, false
}

// takeDirty returns the states written since the last call.
func (s *Store) takeDirty() map[int64]models.WateringState {
	if len(s.dirty) == 0 {
		return nil
	}
	out := make(map[int64]models.WateringState, len(s.dirty))
	for id := range s.dirty {
		out[id] = s.Get(id)
	}
	s.dirty = make(map[int64]struct{})
	return out
}

func clone(st models.WateringState) models.WateringState {
	if st.TimerStartAt != nil {
		st.TimerStartAt = timePtr(*st.TimerStartAt)
	}
	if st.TimerEndAt != nil {
		st.TimerEndAt = timePtr(*st.TimerEndAt)
	}
	if st.PendingSince != nil {
		st.PendingSince = timePtr(*st.PendingSince)
	}
	return st
}
