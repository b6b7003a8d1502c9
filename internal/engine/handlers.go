package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/prite36/irrigation-remote/internal/models"
	"github.com/prite36/irrigation-remote/internal/protocol"
)

// HandleEvent reconciles one controller event into the Session Store.
// Redelivering an event leaves the store as delivering it once did.
func (e *Engine) HandleEvent(ev protocol.Event) {
	_ = e.do(func(s *step) {
		now := e.clock.Now()
		switch ev := ev.(type) {
		case protocol.IrrigationDecision:
			e.onDecision(s, ev, now)
		case protocol.IrrigationStarted:
			e.onIrrigationStarted(ev, now)
		case protocol.ValveResult:
			e.onValveResult(s, ev, now)
		case protocol.IrrigateResult:
			e.onIrrigateResult(s, ev, now)
		case protocol.StopResult:
			e.onStopResult(s, ev, now)
		case protocol.ValveBlocked:
			e.onValveBlocked(s, ev)
		case protocol.RestartResult:
			e.onRestartResult(s, ev)
		case protocol.GardenIrrigation:
			e.applyGardenLocked(s, ev, now)
		default:
			log.Printf("[WARN] No handler for event %s", ev.Type())
		}
	})
}

func (e *Engine) resolve(ev protocol.Event, k protocol.Keys, fallbacks ...Fallback) (int64, bool) {
	id, rule, ok := e.correlator.Resolve(k, fallbacks...)
	if !ok {
		log.Printf("[WARN] %s matches no plant (session=%q id=%d name=%q)", ev.Type(), k.SessionID, k.PlantID, k.PlantName)
		return 0, false
	}
	log.Printf("[INFO] %s resolved to plant %d by %s", ev.Type(), id, rule)
	return id, true
}

// sweep resets every plant matching stuck. It runs when an event cannot be
// correlated, so no plant keeps showing a request nobody will answer. Plants
// running a session other than the event's are not stuck and are kept.
func (e *Engine) sweep(ev protocol.Event, k protocol.Keys, stuck func(models.WateringState) bool) {
	for _, id := range e.store.IDs() {
		st := e.store.Get(id)
		if stuck(st) && !foreign(st, k.SessionID) {
			log.Printf("[WARN] Clearing plant %d left stuck after uncorrelated %s", id, ev.Type())
			e.store.Reset(id)
			e.timers.release(id)
		}
	}
}

func stuckSmart(st models.WateringState) bool {
	return st.Mode == models.ModeSmart || st.Mode == models.ModeSmartPending || st.PendingIrrigationRequest
}

func stuckValve(st models.WateringState) bool {
	return st.PendingValveRequest
}

func stuckActive(st models.WateringState) bool {
	if st.Mode == models.ModeSmart {
		return true
	}
	return st.IsWateringActive && st.Mode != models.ModeManual
}

func (e *Engine) note(id int64, st models.WateringState, event string, level Level, title, msg string) Notification {
	return Notification{
		PlantID:   id,
		PlantName: e.plantName(id, st),
		Event:     event,
		Level:     level,
		Title:     title,
		Message:   msg,
	}
}

func withReason(msg, reason string) string {
	if reason == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, reason)
}

// stale reports whether a progress event concerns a run the user just stopped.
func (e *Engine) stale(ev protocol.Event, id int64, st models.WateringState, now time.Time) bool {
	if st.Mode != models.ModeIdle || !e.suppress.Active(id, now) {
		return false
	}
	log.Printf("[INFO] Ignoring %s for plant %d stopped moments ago", ev.Type(), id)
	return true
}

func (e *Engine) onDecision(s *step, ev protocol.IrrigationDecision, now time.Time) {
	id, ok := e.resolve(ev, ev.Keys(), AnyPendingIrrigation)
	if !ok {
		e.sweep(ev, ev.Keys(), func(st models.WateringState) bool { return st.PendingIrrigationRequest })
		return
	}
	st := e.store.Get(id)

	if !ev.WillIrrigate {
		if st.Mode == models.ModeIdle && st.SkipNotified {
			return
		}
		e.store.Reset(id)
		e.timers.release(id)
		idle := e.store.Get(id)
		idle.SkipNotified = true
		e.store.Put(id, idle)
		s.notify(e.note(id, st, ev.Type(), LevelInfo, "Watering not required",
			withReason("The soil is moist enough, watering was skipped", ev.Reason)))
		return
	}

	if e.stale(ev, id, st, now) {
		return
	}
	st.PendingIrrigationRequest = false
	if st.Mode != models.ModeSmart {
		st.Mode = models.ModeSmartPending
	}
	if st.SessionID == "" {
		st.SessionID = ev.SessionID
	}
	e.store.Put(id, st)
}

func (e *Engine) onIrrigationStarted(ev protocol.IrrigationStarted, now time.Time) {
	id, ok := e.resolve(ev, ev.Keys(), AnyPendingIrrigation, AnySmartPending)
	if !ok {
		return
	}
	st := e.store.Get(id)
	if e.stale(ev, id, st, now) {
		return
	}
	st.PendingIrrigationRequest = false
	st.PendingSince = nil
	st.Mode = models.ModeSmart
	st.IsWateringActive = true
	st.TimerStartAt, st.TimerEndAt, st.WateringTimeLeftSec = nil, nil, 0
	if st.SessionID == "" {
		st.SessionID = ev.SessionID
	}
	if st.CurrentPlantName == "" {
		st.CurrentPlantName = ev.PlantName
	}
	e.store.Put(id, st)
	e.timers.release(id)
}

func (e *Engine) onValveResult(s *step, ev protocol.ValveResult, now time.Time) {
	switch ev.Type() {
	case protocol.TypeOpenValveSuccess:
		id, ok := e.resolve(ev, ev.Keys(), AnyPendingValve)
		if !ok {
			return
		}
		st := e.store.Get(id)
		if (timed(st) && !st.PendingValveRequest) || e.stale(ev, id, st, now) {
			return
		}
		minutes := ev.Duration()
		if minutes <= 0 {
			minutes = st.SelectedDurationMin
		}
		if minutes <= 0 {
			log.Printf("[WARN] %s for plant %d carries no duration; ignoring", ev.Type(), id)
			return
		}
		end := now.Add(time.Duration(minutes * float64(time.Minute)))
		st.Mode = models.ModeManual
		st.IsWateringActive = true
		st.PendingValveRequest = false
		st.PendingSince = nil
		st.SelectedDurationMin = minutes
		st.TimerStartAt = timePtr(now)
		st.TimerEndAt = timePtr(end)
		st.WateringTimeLeftSec = secondsLeft(end, now)
		st.SessionID = ""
		if st.CurrentPlantName == "" {
			st.CurrentPlantName = ev.PlantName
		}
		e.store.Put(id, st)
		e.timers.track(id)

	case protocol.TypeOpenValveFail:
		id, ok := e.resolve(ev, ev.Keys(), AnyPendingValve)
		if !ok {
			e.sweep(ev, ev.Keys(), stuckValve)
			return
		}
		st := e.store.Get(id)
		e.store.Reset(id)
		e.timers.release(id)
		s.notify(e.note(id, st, ev.Type(), LevelError, "Valve did not open",
			withReason("The valve could not be opened", ev.Reason)))

	case protocol.TypeCloseValveSuccess:
		id, ok := e.resolve(ev, ev.Keys(), AnyManual)
		if !ok {
			return
		}
		if e.store.Get(id).Mode == models.ModeManual {
			e.store.Reset(id)
			e.timers.release(id)
		}

	case protocol.TypeCloseValveFail:
		id, ok := e.resolve(ev, ev.Keys(), AnyManual)
		if !ok {
			id, ok = e.suppress.latest(now)
		}
		if !ok {
			return
		}
		st := e.store.Get(id)
		s.notify(e.note(id, st, ev.Type(), LevelError, "Valve did not close",
			withReason("The valve may still be open", ev.Reason)))
	}
}

func (e *Engine) onIrrigateResult(s *step, ev protocol.IrrigateResult, now time.Time) {
	switch ev.Type() {
	case protocol.TypeIrrigateSuccess:
		id, ok := e.resolve(ev, ev.Keys(), AnySmartActive, AnySmart)
		if !ok {
			e.sweep(ev, ev.Keys(), stuckActive)
			return
		}
		st := e.store.Get(id)
		e.store.Reset(id)
		e.timers.release(id)
		if st.IsBusy() {
			s.notify(e.note(id, st, ev.Type(), LevelSuccess, "Watering complete",
				"The plant has been watered"))
		}

	case protocol.TypeIrrigateFail:
		id, ok := e.resolve(ev, ev.Keys(), AnyPendingIrrigation)
		if !ok {
			e.sweep(ev, ev.Keys(), func(st models.WateringState) bool {
				return st.PendingIrrigationRequest || st.Mode == models.ModeSmartPending
			})
			return
		}
		if e.suppress.Active(id, now) {
			log.Printf("[INFO] Dropping %s for plant %d stopped moments ago", ev.Type(), id)
			return
		}
		st := e.store.Get(id)
		e.store.Reset(id)
		e.timers.release(id)
		s.notify(e.note(id, st, ev.Type(), LevelError, "Watering failed",
			withReason("The irrigation could not be completed", ev.Reason)))

	case protocol.TypeIrrigateSkipped:
		id, ok := e.resolve(ev, ev.Keys(), AnyPendingIrrigation, AnySmartPending, AnySmart)
		if !ok {
			e.sweep(ev, ev.Keys(), stuckSmart)
			return
		}
		st := e.store.Get(id)
		e.store.Reset(id)
		e.timers.release(id)
		idle := e.store.Get(id)
		idle.SkipNotified = true
		e.store.Put(id, idle)
		if st.SkipNotified {
			return
		}
		s.notify(e.note(id, st, ev.Type(), LevelInfo, "Watering skipped",
			withReason("The controller skipped this irrigation", ev.Reason)))
	}
}

func (e *Engine) onStopResult(s *step, ev protocol.StopResult, now time.Time) {
	// A local stop has already idled its plant, so a keyless answer belongs to
	// the latest stop. Only a run stopped remotely is looked up among the
	// active ones.
	id, rule, ok := e.correlator.Resolve(ev.Keys())
	if !ok {
		id, ok = e.suppress.latest(now)
		rule = "recent-stop"
	}
	if !ok {
		id, rule, ok = e.correlator.Resolve(ev.Keys(), AnySmartActive)
	}
	if !ok {
		log.Printf("[WARN] %s matches no plant", ev.Type())
		return
	}
	log.Printf("[INFO] %s resolved to plant %d by %s", ev.Type(), id, rule)
	st := e.store.Get(id)

	if ev.Type() == protocol.TypeStopIrrigationFail {
		s.notify(e.note(id, st, ev.Type(), LevelError, "Stop failed",
			withReason("The irrigation may still be running", ev.Reason)))
		return
	}

	scheduled := st.ScheduledRunMode == models.ScheduledRun
	if st.IsBusy() {
		e.store.Reset(id)
		e.timers.release(id)
		e.suppress.Record(id, now, scheduled)
	}
	entry, ok := e.suppress.confirm(id, now)
	if !ok {
		// Nothing was stopped recently, or this stop was already reported.
		return
	}
	title, msg := "Watering stopped", "The irrigation was stopped"
	if scheduled || entry.scheduled {
		title, msg = "Scheduled watering stopped", "The scheduled irrigation was stopped"
	}
	s.notify(e.note(id, st, ev.Type(), LevelInfo, title, msg))
}

func (e *Engine) onValveBlocked(s *step, ev protocol.ValveBlocked) {
	id, ok := e.resolve(ev, ev.Keys(), AnyBusy)
	if !ok {
		e.sweep(ev, ev.Keys(), models.WateringState.HasRequestInFlight)
		return
	}
	st := e.store.Get(id)
	if st.IsBlocked && !st.IsBusy() {
		return
	}
	e.store.Reset(id)
	e.timers.release(id)
	blocked := e.store.Get(id)
	blocked.IsBlocked = true
	e.store.Put(id, blocked)
	s.notify(e.note(id, st, ev.Type(), LevelWarning, "Valve blocked",
		withReason("The valve is blocked and needs a restart", ev.Message)))
}

func (e *Engine) onRestartResult(s *step, ev protocol.RestartResult) {
	id, ok := e.resolve(ev, ev.Keys(), AnyPendingValve)
	if !ok {
		return
	}
	st := e.store.Get(id)
	if !st.PendingValveRequest && !st.IsBlocked {
		return
	}

	// A valve that needed a restart was stuck; whatever the state said
	// before is not trusted.
	e.store.Reset(id)
	e.timers.release(id)
	cleared := e.store.Get(id)

	if ev.Type() == protocol.TypeRestartValveSuccess {
		cleared.IsBlocked = false
		e.store.Put(id, cleared)
		s.notify(e.note(id, st, ev.Type(), LevelSuccess, "Valve restarted", "The valve is working again"))
		return
	}
	e.store.Put(id, cleared)
	s.notify(e.note(id, st, ev.Type(), LevelError, "Valve restart failed",
		withReason("The valve is still blocked", ev.Reason)))
}
