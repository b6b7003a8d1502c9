package engine

import (
	"log"
	"strings"
	"time"

	"github.com/prite36/irrigation-remote/internal/models"
	"github.com/prite36/irrigation-remote/internal/protocol"
)

// Snapshot irrigation modes.
const (
	snapshotManual    = "manual"
	snapshotSmart     = "smart"
	snapshotScheduled = "scheduled"
)

// Rehydrate rebuilds watering state from a full plant-list snapshot, which
// recovers the events missed while the channel was down. No command is sent.
//
// A running manual plant is restored with its absolute end time, a smart
// plant with its session. A plant the snapshot reports idle is reset unless
// a local request for it is still waiting for an answer.
func (e *Engine) Rehydrate(records []models.PlantRecord) {
	_ = e.do(func(s *step) {
		now := e.clock.Now()
		for _, r := range records {
			if r.ID == 0 {
				continue
			}
			if r.Name != "" {
				e.catalog[r.ID] = r.Name
			}
			e.rehydrateRecord(r, now)
		}
	})
	log.Printf("[INFO] Rehydrated %d plants from snapshot", len(records))
}

func (e *Engine) rehydrateRecord(r models.PlantRecord, now time.Time) {
	st := e.store.Get(r.ID)
	mode := strings.ToLower(strings.TrimSpace(r.IrrigationMode))

	switch {
	case (mode == snapshotManual || mode == snapshotScheduled) && r.IrrigationEndAt != nil:
		if !r.IrrigationEndAt.After(now) {
			// Expired while we were away. A local countdown still holding
			// the plant closes the valve on its next tick.
			return
		}
		start := now
		if r.IrrigationStartAt != nil {
			start = *r.IrrigationStartAt
		}
		e.putManual(r.ID, st, r.Name, start, *r.IrrigationEndAt, now, mode == snapshotScheduled)

	case mode == snapshotSmart || mode == snapshotScheduled:
		e.putSmart(r.ID, st, r.Name, r.IrrigationSessionID, mode == snapshotScheduled)

	default:
		if st.HasRequestInFlight() {
			return
		}
		if st.Mode == models.ModeManual || st.Mode == models.ModeSmart || st.IsWateringActive {
			log.Printf("[INFO] Snapshot reports plant %d idle; clearing local %s run", r.ID, st.Mode)
			e.store.Reset(r.ID)
			e.timers.release(r.ID)
		}
	}
}

// putManual installs a running manual countdown. An existing countdown for
// the same interval is kept as is.
func (e *Engine) putManual(id int64, st models.WateringState, name string, start, end, now time.Time, scheduled bool) {
	if timed(st) && st.TimerEndAt.Equal(end) {
		e.timers.track(id)
		return
	}
	blocked := st.IsBlocked
	next := models.IdleState()
	next.IsBlocked = blocked
	next.Mode = models.ModeManual
	next.IsWateringActive = true
	next.TimerStartAt = timePtr(start)
	next.TimerEndAt = timePtr(end)
	next.WateringTimeLeftSec = secondsLeft(end, now)
	next.SelectedDurationMin = end.Sub(start).Minutes()
	next.CurrentPlantName = firstNonEmpty(name, st.CurrentPlantName, e.catalog[id])
	if scheduled {
		next.ScheduledRunMode = models.ScheduledRun
	}
	e.store.Put(id, next)
	e.timers.track(id)
}

// putSmart installs a running smart irrigation. The session id of a run
// already known locally is never replaced.
func (e *Engine) putSmart(id int64, st models.WateringState, name, sessionID string, scheduled bool) {
	next := st
	if st.Mode != models.ModeSmart && st.Mode != models.ModeSmartPending {
		next = models.IdleState()
		next.IsBlocked = st.IsBlocked
	}
	next.Mode = models.ModeSmart
	next.IsWateringActive = true
	next.PendingIrrigationRequest = false
	next.PendingSince = nil
	next.TimerStartAt, next.TimerEndAt, next.WateringTimeLeftSec = nil, nil, 0
	if next.SessionID == "" {
		next.SessionID = sessionID
	}
	next.CurrentPlantName = firstNonEmpty(name, next.CurrentPlantName, e.catalog[id])
	if scheduled {
		next.ScheduledRunMode = models.ScheduledRun
	}
	e.store.Put(id, next)
	e.timers.release(id)
}

// ApplyGardenEvent applies a garden-wide started/stopped broadcast.
func (e *Engine) ApplyGardenEvent(ev protocol.GardenIrrigation) {
	_ = e.do(func(s *step) {
		e.applyGardenLocked(s, ev, e.clock.Now())
	})
}

func (e *Engine) applyGardenLocked(s *step, ev protocol.GardenIrrigation, now time.Time) {
	id := int64(ev.PlantID)
	if id == 0 {
		var ok bool
		id, _, ok = e.correlator.Resolve(protocol.Keys{SessionID: ev.SessionID, PlantName: ev.PlantName})
		if !ok {
			log.Printf("[WARN] %s without plant id; ignoring", ev.Type())
			return
		}
	}
	if ev.PlantName != "" {
		e.catalog[id] = ev.PlantName
	}
	st := e.store.Get(id)
	mode := strings.ToLower(ev.Mode)
	scheduled := mode == snapshotScheduled

	if !ev.Started() {
		if !st.IsBusy() {
			return
		}
		e.store.Reset(id)
		e.timers.release(id)
		if scheduled || st.ScheduledRunMode == models.ScheduledRun {
			s.notify(e.note(id, st, ev.Type(), LevelInfo, "Scheduled watering finished",
				"The scheduled irrigation has ended"))
		}
		return
	}

	if ev.DurationMinutes > 0 && (mode == snapshotManual || scheduled) {
		if timed(st) {
			// Redelivery or echo of a run we already time.
			return
		}
		end := now.Add(time.Duration(ev.DurationMinutes * float64(time.Minute)))
		e.putManual(id, st, ev.PlantName, now, end, now, scheduled)
		return
	}
	if mode == snapshotManual {
		log.Printf("[WARN] %s for plant %d has no duration; ignoring", ev.Type(), id)
		return
	}
	e.putSmart(id, st, ev.PlantName, ev.SessionID, scheduled)
}

// Restore seeds the store from persisted state, e.g. after a process
// restart. Timed plants are picked up by the next Discover.
func (e *Engine) Restore(states map[int64]models.WateringState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, st := range states {
		e.store.Put(id, st)
		if st.CurrentPlantName != "" {
			e.catalog[id] = st.CurrentPlantName
		}
	}
	e.store.takeDirty()
}

// ExpirePending resets plants whose start request has waited longer than the
// pending timeout, and returns how many were reset.
func (e *Engine) ExpirePending() int {
	n := 0
	_ = e.do(func(s *step) {
		now := e.clock.Now()
		for _, id := range e.store.IDs() {
			st := e.store.Get(id)
			if st.PendingSince == nil || now.Sub(*st.PendingSince) < e.pendingTimeout {
				continue
			}
			pending := st.HasRequestInFlight() || st.Mode == models.ModeManualPending || st.Mode == models.ModeSmartPending
			if !pending {
				continue
			}
			log.Printf("[WARN] Plant %d waited %s without an answer; resetting", id, now.Sub(*st.PendingSince).Round(time.Second))
			e.store.Reset(id)
			e.timers.release(id)
			n++
			s.notify(e.note(id, st, "PENDING_TIMEOUT", LevelWarning, "No response",
				"The controller did not answer the request"))
		}
	})
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
