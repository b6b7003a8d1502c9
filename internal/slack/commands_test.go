package slack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prite36/irrigation-remote/internal/engine"
	"github.com/prite36/irrigation-remote/internal/models"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want Command
	}{
		{"", Command{Action: ActionStatus}},
		{"status", Command{Action: ActionStatus}},
		{"STOP 3", Command{Action: ActionStop, PlantID: 3}},
		{"manual #5 2.5", Command{Action: ActionManual, PlantID: 5, Minutes: 2.5}},
		{"smart 7", Command{Action: ActionSmart, PlantID: 7}},
		{"  restart   9 ", Command{Action: ActionRestart, PlantID: 9}},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			got, err := ParseCommand(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, text := range []string{
		"water 3",
		"stop",
		"stop abc",
		"stop -1",
		"manual 3",
		"manual 3 zero",
		"manual 3 0",
		"status now",
	} {
		t.Run(text, func(t *testing.T) {
			_, err := ParseCommand(text)
			assert.ErrorIs(t, err, ErrBadCommand)
		})
	}
}

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "No plant is being watered.", FormatStatus(nil))

	out := FormatStatus([]engine.PlantWatering{
		{PlantID: 3, State: models.WateringState{Mode: models.ModeManual, IsWateringActive: true, WateringTimeLeftSec: 125, CurrentPlantName: "Rose"}},
		{PlantID: 7, State: models.WateringState{Mode: models.ModeSmart, IsWateringActive: true}},
	})
	assert.Equal(t, "*Watering now*\n• Rose (#3) manual, 2:05 left\n• plant 7 (#7) smart", out)
}
