package engine

import (
	"log"

	"github.com/prite36/irrigation-remote/internal/models"
	"github.com/prite36/irrigation-remote/internal/protocol"
)

// checkStart validates the preconditions shared by the start commands.
func (e *Engine) checkStart(plant models.Plant) error {
	if plant.Name == "" {
		return ErrPlantNameRequired
	}
	if e.ch == nil || !e.ch.IsConnected() {
		return ErrChannelDisconnected
	}
	return nil
}

// StartManual asks the controller to open the plant's valve for minutes.
// The plant becomes ManualPending; the countdown starts only once the
// controller confirms the valve opened.
func (e *Engine) StartManual(plant models.Plant, minutes float64) error {
	if err := e.checkStart(plant); err != nil {
		return commandError("start manual", plant.ID, err)
	}
	if minutes <= 0 {
		return commandError("start manual", plant.ID, ErrInvalidDuration)
	}

	var rejected error
	err := e.do(func(s *step) {
		cur := e.store.Get(plant.ID)
		if rejected = busyError(cur); rejected != nil {
			return
		}
		now := e.clock.Now()
		st := models.IdleState()
		st.Mode = models.ModeManualPending
		st.PendingValveRequest = true
		st.SelectedDurationMin = minutes
		st.CurrentPlantName = plant.Name
		st.PendingSince = timePtr(now)
		e.store.Put(plant.ID, st)
		e.catalog[plant.ID] = plant.Name
		e.suppress.clear(plant.ID)

		s.send(plant.ID, protocol.OpenValve{PlantName: plant.Name, TimeMinutes: minutes}, manualInFlight)
	})
	if rejected != nil {
		return commandError("start manual", plant.ID, rejected)
	}
	if err != nil {
		return commandError("start manual", plant.ID, err)
	}
	log.Printf("[INFO] Requested manual watering of %q for %.1f min", plant.Name, minutes)
	return nil
}

// StartSmart asks the controller to decide and run humidity-driven watering.
// Any stale state of a previous run is discarded first. The plant stays
// inactive until the controller reports the irrigation started.
func (e *Engine) StartSmart(plant models.Plant) error {
	if err := e.checkStart(plant); err != nil {
		return commandError("start smart", plant.ID, err)
	}

	var rejected error
	err := e.do(func(s *step) {
		cur := e.store.Get(plant.ID)
		if rejected = busyError(cur); rejected != nil {
			return
		}
		e.store.Reset(plant.ID)
		e.timers.release(plant.ID)

		st := e.store.Get(plant.ID)
		st.Mode = models.ModeSmartPending
		st.PendingIrrigationRequest = true
		st.CurrentPlantName = plant.Name
		st.PendingSince = timePtr(e.clock.Now())
		e.store.Put(plant.ID, st)
		e.catalog[plant.ID] = plant.Name
		e.suppress.clear(plant.ID)

		s.send(plant.ID, protocol.IrrigatePlant{PlantName: plant.Name}, smartInFlight)
	})
	if rejected != nil {
		return commandError("start smart", plant.ID, rejected)
	}
	if err != nil {
		return commandError("start smart", plant.ID, err)
	}
	log.Printf("[INFO] Requested smart watering of %q", plant.Name)
	return nil
}

// The in-flight checks tell whether a plant still holds the request a
// command set, so a failed send only rolls back its own request.
func manualInFlight(st models.WateringState) bool {
	return st.Mode == models.ModeManualPending && st.PendingValveRequest
}

func smartInFlight(st models.WateringState) bool {
	return st.Mode == models.ModeSmartPending && st.PendingIrrigationRequest
}

func restartInFlight(st models.WateringState) bool {
	return st.IsBlocked && st.PendingValveRequest
}

func busyError(st models.WateringState) error {
	if st.IsBlocked {
		return ErrValveBlocked
	}
	if st.IsBusy() {
		return ErrRequestInFlight
	}
	return nil
}

// Stop ends whatever the plant is doing. The plant is idle when Stop returns,
// whatever the controller later answers.
func (e *Engine) Stop(plantID int64) error {
	return e.do(func(s *step) {
		e.stopLocked(s, plantID)
	})
}

// stopLocked is the stop path shared by user stops and expired timers.
func (e *Engine) stopLocked(s *step, plantID int64) {
	st := e.store.Get(plantID)
	name := e.plantName(plantID, st)

	var cmd protocol.Command
	switch st.Mode {
	case models.ModeSmart, models.ModeSmartPending:
		cmd = protocol.StopIrrigation{PlantName: name, PlantID: plantID}
	case models.ModeManual, models.ModeManualPending:
		cmd = protocol.CloseValve{PlantName: name}
	default:
		if !st.IsWateringActive {
			log.Printf("[INFO] Stop requested for idle plant %d", plantID)
			return
		}
		cmd = protocol.CloseValve{PlantName: name}
	}

	// The suppression entry must exist before the command leaves, so a
	// failure racing the stop is already masked.
	e.suppress.Record(plantID, e.clock.Now(), st.ScheduledRunMode == models.ScheduledRun)
	e.store.Reset(plantID)
	e.timers.release(plantID)

	if name == "" {
		log.Printf("[WARN] Stopped plant %d locally; no plant name known to send %s", plantID, cmd.Type())
		return
	}
	s.send(plantID, cmd, nil)
}

// RestartValve asks the controller to restart a blocked valve.
func (e *Engine) RestartValve(plant models.Plant) error {
	if err := e.checkStart(plant); err != nil {
		return commandError("restart valve", plant.ID, err)
	}

	var rejected error
	err := e.do(func(s *step) {
		st := e.store.Get(plant.ID)
		if !st.IsBlocked {
			rejected = ErrNotBlocked
			return
		}
		if st.PendingValveRequest {
			rejected = ErrRequestInFlight
			return
		}
		st.PendingValveRequest = true
		st.PendingSince = timePtr(e.clock.Now())
		e.store.Put(plant.ID, st)
		e.catalog[plant.ID] = plant.Name

		s.send(plant.ID, protocol.RestartValve{PlantName: plant.Name}, restartInFlight)
	})
	if rejected != nil {
		return commandError("restart valve", plant.ID, rejected)
	}
	if err != nil {
		return commandError("restart valve", plant.ID, err)
	}
	return nil
}
