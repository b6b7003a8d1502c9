package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/prite36/irrigation-remote/internal/models"
	"github.com/prite36/irrigation-remote/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartPreconditions(t *testing.T) {
	tests := []struct {
		name      string
		plant     models.Plant
		connected bool
		wantErr   error
	}{
		{"missing name", models.Plant{ID: 1}, true, ErrPlantNameRequired},
		{"disconnected", models.Plant{ID: 1, Name: "Rose"}, false, ErrChannelDisconnected},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.ch.connected = tc.connected

			err := h.engine.StartManual(tc.plant, 5)
			assert.ErrorIs(t, err, tc.wantErr)
			err = h.engine.StartSmart(tc.plant)
			assert.ErrorIs(t, err, tc.wantErr)

			var cmdErr *CommandError
			require.True(t, errors.As(err, &cmdErr))
			assert.Equal(t, "start smart", cmdErr.Op)

			assert.Empty(t, h.ch.commands())
			assert.Equal(t, models.IdleState(), h.state(1))
		})
	}
}

func TestStartManualRejectsBadDuration(t *testing.T) {
	h := newHarness(t)
	err := h.engine.StartManual(models.Plant{ID: 1, Name: "Rose"}, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	assert.Empty(t, h.ch.commands())
}

func TestDuplicateStartIsRejected(t *testing.T) {
	h := newHarness(t)
	rose := models.Plant{ID: 1, Name: "Rose"}
	require.NoError(t, h.engine.StartManual(rose, 5))

	assert.ErrorIs(t, h.engine.StartManual(rose, 5), ErrRequestInFlight)
	assert.ErrorIs(t, h.engine.StartSmart(rose), ErrRequestInFlight)
	assert.Equal(t, 1, len(h.ch.commands()))
}

func TestSendFailureRollsBackStart(t *testing.T) {
	h := newHarness(t)
	h.ch.sendErr = errBroken

	err := h.engine.StartManual(models.Plant{ID: 1, Name: "Rose"}, 5)
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, models.IdleState(), h.state(1))
}

func TestFailedSendKeepsStateAnsweredMeanwhile(t *testing.T) {
	h := newHarness(t)
	h.ch.sendErr = errBroken
	h.ch.onSend = func(protocol.Command) {
		h.engine.HandleEvent(protocol.ValveResult{
			Kind:      protocol.TypeOpenValveSuccess,
			PlantID:   1,
			ValveData: &protocol.ValveData{DurationMinutes: 5},
		})
	}

	err := h.engine.StartManual(models.Plant{ID: 1, Name: "Rose"}, 5)
	assert.ErrorIs(t, err, errBroken)

	st := h.state(1)
	assert.Equal(t, models.ModeManual, st.Mode)
	assert.True(t, st.IsWateringActive)
	assert.Equal(t, 300, st.WateringTimeLeftSec)
	assertConsistent(t, st)
}

func TestStartSmartDiscardsStaleFields(t *testing.T) {
	h := newHarness(t)
	h.engine.Restore(map[int64]models.WateringState{
		7: {Mode: models.ModeIdle, SessionID: "old", SelectedDurationMin: 12, SkipNotified: true, ScheduledRunMode: models.ScheduledRun},
	})

	require.NoError(t, h.engine.StartSmart(models.Plant{ID: 7, Name: "Basil"}))

	st := h.state(7)
	assert.Equal(t, models.ModeSmartPending, st.Mode)
	assert.Empty(t, st.SessionID)
	assert.Zero(t, st.SelectedDurationMin)
	assert.False(t, st.SkipNotified)
	assert.Empty(t, st.ScheduledRunMode)
	assert.Equal(t, "Basil", st.CurrentPlantName)
	assert.Equal(t, []protocol.Command{protocol.IrrigatePlant{PlantName: "Basil"}}, h.ch.commands())
}

func TestStopChoosesCommandByMode(t *testing.T) {
	h := newHarness(t)
	confirmManual(t, h, models.Plant{ID: 1, Name: "Rose"}, 5)
	startSmartRun(t, h, 2, "Basil", "S2")
	require.NoError(t, h.engine.StartSmart(models.Plant{ID: 3, Name: "Mint"}))
	require.NoError(t, h.engine.StartManual(models.Plant{ID: 4, Name: "Fern"}, 5))

	for _, id := range []int64{1, 2, 3, 4, 5} {
		require.NoError(t, h.engine.Stop(id))
		st := h.state(id)
		assert.Equal(t, models.ModeIdle, st.Mode)
		assertConsistent(t, st)
	}

	cmds := h.ch.commands()
	assert.Equal(t, []protocol.Command{
		protocol.CloseValve{PlantName: "Rose"},
		protocol.StopIrrigation{PlantName: "Basil", PlantID: 2},
		protocol.StopIrrigation{PlantName: "Mint", PlantID: 3},
		protocol.CloseValve{PlantName: "Fern"},
	}, cmds[len(cmds)-4:])
}

func TestStopWhileDisconnectedStillStopsLocally(t *testing.T) {
	h := newHarness(t)
	startSmartRun(t, h, 2, "Basil", "S2")
	h.ch.sendErr = errBroken

	assert.NoError(t, h.engine.Stop(2))
	assert.Equal(t, models.ModeIdle, h.state(2).Mode)
}

func TestRestartValve(t *testing.T) {
	h := newHarness(t)
	rose := models.Plant{ID: 3, Name: "Rose"}

	assert.ErrorIs(t, h.engine.RestartValve(rose), ErrNotBlocked)

	h.engine.HandleEvent(protocol.ValveBlocked{PlantID: 3, Message: "jammed"})
	require.True(t, h.state(3).IsBlocked)

	require.NoError(t, h.engine.RestartValve(rose))
	assert.True(t, h.state(3).PendingValveRequest)
	assert.ErrorIs(t, h.engine.RestartValve(rose), ErrRequestInFlight)
	assert.Equal(t, 1, h.ch.count(protocol.CmdRestartValve))

	h.engine.HandleEvent(protocol.RestartResult{Kind: protocol.TypeRestartValveFail, PlantID: 3})
	st := h.state(3)
	assert.True(t, st.IsBlocked)
	assert.False(t, st.PendingValveRequest)

	require.NoError(t, h.engine.RestartValve(rose))
	h.engine.HandleEvent(protocol.RestartResult{Kind: protocol.TypeRestartValveSuccess})
	st = h.state(3)
	assert.False(t, st.IsBlocked)
	assert.False(t, st.PendingValveRequest)
	assert.Equal(t, models.ModeIdle, st.Mode)

	assert.Equal(t, []string{"Valve blocked", "Valve restart failed", "Valve restarted"}, h.notes.titles())
	assert.NoError(t, h.engine.StartManual(rose, 1))
}

func TestPendingRequestsTimeOut(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.StartManual(models.Plant{ID: 1, Name: "Rose"}, 5))
	require.NoError(t, h.engine.StartSmart(models.Plant{ID: 2, Name: "Basil"}))
	confirmManual(t, h, models.Plant{ID: 3, Name: "Fern"}, 5)

	h.clock.Advance(DefaultPendingTimeout - time.Second)
	assert.Zero(t, h.engine.ExpirePending())

	h.clock.Advance(time.Second)
	assert.Equal(t, 2, h.engine.ExpirePending())

	assert.Equal(t, models.ModeIdle, h.state(1).Mode)
	assert.Equal(t, models.ModeIdle, h.state(2).Mode)
	assert.Equal(t, models.ModeManual, h.state(3).Mode)
	assert.Equal(t, []string{"No response", "No response"}, h.notes.titles())
}
