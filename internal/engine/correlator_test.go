package engine

import (
	"testing"

	"github.com/prite36/irrigation-remote/internal/models"
	"github.com/prite36/irrigation-remote/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func correlatorFixture() Correlator {
	s := NewStore()
	s.Put(1, models.WateringState{Mode: models.ModeSmart, IsWateringActive: true, SessionID: "S1", CurrentPlantName: "Basil"})
	s.Put(2, models.WateringState{Mode: models.ModeSmart, IsWateringActive: true, CurrentPlantName: "Mint"})
	s.Put(3, models.WateringState{Mode: models.ModeManualPending, PendingValveRequest: true, CurrentPlantName: "Rose"})
	s.Put(4, models.WateringState{Mode: models.ModeSmartPending, PendingIrrigationRequest: true, CurrentPlantName: "Mint"})
	return Correlator{store: s}
}

func TestResolveOrder(t *testing.T) {
	c := correlatorFixture()

	tests := []struct {
		name      string
		keys      protocol.Keys
		fallbacks []Fallback
		wantID    int64
		wantRule  string
		wantOK    bool
	}{
		{
			name:     "session beats name",
			keys:     protocol.Keys{SessionID: "S1", PlantName: "Mint"},
			wantID:   1,
			wantRule: "session",
			wantOK:   true,
		},
		{
			name:     "session beats plant id",
			keys:     protocol.Keys{SessionID: "S1", PlantID: 3},
			wantID:   1,
			wantRule: "session",
			wantOK:   true,
		},
		{
			name:     "unmatched session falls through to plant id",
			keys:     protocol.Keys{SessionID: "nope", PlantID: 3},
			wantID:   3,
			wantRule: "plant-id",
			wantOK:   true,
		},
		{
			name:     "plant id beats name",
			keys:     protocol.Keys{PlantID: 42, PlantName: "Rose"},
			wantID:   42,
			wantRule: "plant-id",
			wantOK:   true,
		},
		{
			name:     "first name match in id order",
			keys:     protocol.Keys{PlantName: "Mint"},
			wantID:   2,
			wantRule: "plant-name",
			wantOK:   true,
		},
		{
			name:   "name match is case sensitive",
			keys:   protocol.Keys{PlantName: "mint"},
			wantOK: false,
		},
		{
			name:      "fallbacks in order",
			keys:      protocol.Keys{},
			fallbacks: []Fallback{AnyPendingIrrigation, AnyPendingValve},
			wantID:    4,
			wantRule:  "pending-irrigation",
			wantOK:    true,
		},
		{
			name:      "second fallback",
			keys:      protocol.Keys{PlantName: "Fern"},
			fallbacks: []Fallback{AnyManual, AnyPendingValve},
			wantID:    3,
			wantRule:  "pending-valve",
			wantOK:    true,
		},
		{
			name:      "unmatched session skips plants of another session",
			keys:      protocol.Keys{SessionID: "nope"},
			fallbacks: []Fallback{AnySmartActive},
			wantID:    2,
			wantRule:  "smart-active",
			wantOK:    true,
		},
		{
			name:   "unmatched session skips name of another session",
			keys:   protocol.Keys{SessionID: "nope", PlantName: "Basil"},
			wantOK: false,
		},
		{
			name:      "partial session ids never match",
			keys:      protocol.Keys{SessionID: "S"},
			fallbacks: []Fallback{AnyManual},
			wantOK:    false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id, rule, ok := c.Resolve(tc.keys, tc.fallbacks...)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantID, id)
				assert.Equal(t, tc.wantRule, rule)
			}
		})
	}
}

func TestSessionPrecedenceThroughEngine(t *testing.T) {
	h := newHarness(t)
	startSmartRun(t, h, 1, "Basil", "S1")
	startSmartRun(t, h, 2, "Mint", "S2")

	h.engine.HandleEvent(protocol.IrrigateResult{Kind: protocol.TypeIrrigateSuccess, SessionID: "S1", PlantName: "Mint"})

	assert.Equal(t, models.ModeIdle, h.state(1).Mode)
	assert.Equal(t, models.ModeSmart, h.state(2).Mode)
}
