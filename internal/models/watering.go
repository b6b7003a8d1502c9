package models

import (
	"time"
)

// Mode is the watering state tag of a single plant.
type Mode string

const (
	ModeIdle          Mode = "idle"
	ModeManualPending Mode = "manual_pending"
	ModeManual        Mode = "manual"
	ModeSmartPending  Mode = "smart_pending"
	ModeSmart         Mode = "smart"
)

// ScheduledRun marks a run that was started by a schedule.
const ScheduledRun = "scheduled"

// Plant identifies a plant the way both the store and the wire protocol know it.
type Plant struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// WateringState is the per-plant watering state owned by the engine.
// The zero value is the idle state.
type WateringState struct {
	IsWateringActive    bool       `json:"isWateringActive"`
	Mode                Mode       `json:"mode"`
	WateringTimeLeftSec int        `json:"wateringTimeLeftSec"`
	TimerStartAt        *time.Time `json:"timerStartAt,omitempty"`
	TimerEndAt          *time.Time `json:"timerEndAt,omitempty"`
	SelectedDurationMin float64    `json:"selectedDurationMin"`
	SessionID           string     `json:"sessionId,omitempty"`
	CurrentPlantName    string     `json:"currentPlantName,omitempty"`

	PendingValveRequest      bool `json:"pendingValveRequest"`
	PendingIrrigationRequest bool `json:"pendingIrrigationRequest"`

	ScheduledRunMode string `json:"scheduledRunMode,omitempty"`

	IsBlocked    bool       `json:"isBlocked"`
	SkipNotified bool       `json:"-"`
	PendingSince *time.Time `json:"pendingSince,omitempty"`
}

// IdleState returns the default state of a plant nobody is watering.
func IdleState() WateringState {
	return WateringState{Mode: ModeIdle}
}

// Normalized maps the empty mode of a zero value to ModeIdle.
func (s WateringState) Normalized() WateringState {
	if s.Mode == "" {
		s.Mode = ModeIdle
	}
	return s
}

// HasRequestInFlight reports whether a command for the plant is awaiting an answer.
func (s WateringState) HasRequestInFlight() bool {
	return s.PendingValveRequest || s.PendingIrrigationRequest
}

// IsBusy reports whether the plant is pending or running in any mode.
func (s WateringState) IsBusy() bool {
	if s.IsWateringActive || s.HasRequestInFlight() {
		return true
	}
	return s.Mode != ModeIdle && s.Mode != ""
}

// PlantRecord is one row of the plant-list snapshot served by the garden API.
type PlantRecord struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	IrrigationMode      string     `json:"irrigation_mode"`
	IrrigationStartAt   *time.Time `json:"irrigation_start_at,omitempty"`
	IrrigationEndAt     *time.Time `json:"irrigation_end_at,omitempty"`
	IrrigationSessionID string     `json:"irrigation_session_id,omitempty"`
}

// WateringSession is the persisted copy of a plant's current watering state.
// Only the current session set is kept; there is one row per plant.
type WateringSession struct {
	PlantID             int64  `gorm:"primaryKey;autoIncrement:false"`
	PlantName           string `gorm:"type:varchar(120)"`
	Mode                Mode   `gorm:"type:varchar(20);not null"`
	IsWateringActive    bool
	TimerStartAt        *time.Time
	TimerEndAt          *time.Time
	SelectedDurationMin float64
	SessionID           string `gorm:"type:varchar(64)"`
	ScheduledRunMode    string `gorm:"type:varchar(20)"`
	IsBlocked           bool
	UpdatedAt           time.Time
}

func (WateringSession) TableName() string {
	return "watering_sessions"
}
