package engine

import "time"

// DefaultSuppressionWindow is how long an explicit stop masks failure events.
const DefaultSuppressionWindow = 5 * time.Second

type stopEntry struct {
	at        time.Time
	scheduled bool
	confirmed bool
}

// Suppression remembers plants that were explicitly stopped a moment ago, so
// a failure event racing the stop is not reported as a genuine failure.
type Suppression struct {
	window time.Duration
	stops  map[int64]stopEntry
}

func NewSuppression(window time.Duration) *Suppression {
	if window <= 0 {
		window = DefaultSuppressionWindow
	}
	return &Suppression{window: window, stops: make(map[int64]stopEntry)}
}

// Record notes an explicit stop of plantID at now.
func (s *Suppression) Record(plantID int64, now time.Time, scheduled bool) {
	s.stops[plantID] = stopEntry{at: now, scheduled: scheduled}
}

// clear forgets the stop of plantID. A new run must not inherit it.
func (s *Suppression) clear(plantID int64) {
	delete(s.stops, plantID)
}

// Active reports whether plantID was stopped less than one window ago.
// Stale entries are evicted on the way.
func (s *Suppression) Active(plantID int64, now time.Time) bool {
	_, ok := s.entry(plantID, now)
	return ok
}

func (s *Suppression) entry(plantID int64, now time.Time) (stopEntry, bool) {
	e, ok := s.stops[plantID]
	if !ok {
		return stopEntry{}, false
	}
	if now.Sub(e.at) >= s.window {
		delete(s.stops, plantID)
		return stopEntry{}, false
	}
	return e, true
}

// confirm marks the fresh entry for plantID as acknowledged by the server.
// It reports false when there is no fresh entry or it was acknowledged before.
func (s *Suppression) confirm(plantID int64, now time.Time) (stopEntry, bool) {
	e, ok := s.entry(plantID, now)
	if !ok || e.confirmed {
		return e, false
	}
	e.confirmed = true
	s.stops[plantID] = e
	return e, true
}

// latest returns the most recently stopped plant still inside the window.
func (s *Suppression) latest(now time.Time) (int64, bool) {
	var (
		best   int64
		bestAt time.Time
		found  bool
	)
	for id := range s.stops {
		e, ok := s.entry(id, now)
		if !ok {
			continue
		}
		if !found || e.at.After(bestAt) || (e.at.Equal(bestAt) && id < best) {
			best, bestAt, found = id, e.at, true
		}
	}
	return best, found
}
