package engine

import (
	"github.com/prite36/irrigation-remote/internal/models"
	"github.com/prite36/irrigation-remote/internal/protocol"
)

// Fallback is a named last-resort rule for picking the plant an event is
// about when the event carries no usable key.
type Fallback struct {
	Name  string
	Match func(models.WateringState) bool
}

var (
	AnyPendingIrrigation = Fallback{"pending-irrigation", func(st models.WateringState) bool {
		return st.PendingIrrigationRequest
	}}
	AnyPendingValve = Fallback{"pending-valve", func(st models.WateringState) bool {
		return st.PendingValveRequest
	}}
	AnySmartPending = Fallback{"smart-pending", func(st models.WateringState) bool {
		return st.Mode == models.ModeSmartPending
	}}
	AnySmartActive = Fallback{"smart-active", func(st models.WateringState) bool {
		return st.Mode == models.ModeSmart && st.IsWateringActive
	}}
	AnySmart = Fallback{"smart", func(st models.WateringState) bool {
		return st.Mode == models.ModeSmart
	}}
	AnyManual = Fallback{"manual", func(st models.WateringState) bool {
		return st.Mode == models.ModeManual
	}}
	AnyBusy = Fallback{"busy", func(st models.WateringState) bool {
		return st.IsBusy()
	}}
)

// Correlator resolves an inbound event to the plant it is about.
type Correlator struct {
	store *Store
}

// Resolve applies, in order: exact session id match, explicit plant id,
// exact current plant name match, then each fallback. A session id that
// matches no plant does not stop the chain, but the name and fallback rules
// then skip plants holding a different session.
func (c Correlator) Resolve(k protocol.Keys, fallbacks ...Fallback) (int64, string, bool) {
	if k.SessionID != "" {
		if id, ok := c.BySession(k.SessionID); ok {
			return id, "session", true
		}
	}
	if k.PlantID != 0 {
		return k.PlantID, "plant-id", true
	}
	if k.PlantName != "" {
		id, ok := c.store.Find(func(st models.WateringState) bool {
			return st.CurrentPlantName == k.PlantName && !foreign(st, k.SessionID)
		})
		if ok {
			return id, "plant-name", true
		}
	}
	for _, fb := range fallbacks {
		id, ok := c.store.Find(func(st models.WateringState) bool {
			return fb.Match(st) && !foreign(st, k.SessionID)
		})
		if ok {
			return id, fb.Name, true
		}
	}
	return 0, "", false
}

// foreign reports whether st runs a session other than sessionID. A plant
// without a session, or an event without one, is never foreign.
func foreign(st models.WateringState, sessionID string) bool {
	return sessionID != "" && st.SessionID != "" && st.SessionID != sessionID
}

func (c Correlator) BySession(sessionID string) (int64, bool) {
	return c.store.Find(func(st models.WateringState) bool {
		return st.SessionID == sessionID
	})
}
