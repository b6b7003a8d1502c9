// Package storage persists the current watering session of every plant in
// PostgreSQL so a restarted process can resume countdowns.
package storage

import (
	"fmt"
	"sort"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/prite36/irrigation-remote/internal/models"
)

// Repository stores one WateringSession row per plant.
type Repository struct {
	db *gorm.DB
}

// Open connects to PostgreSQL and migrates the session table.
func Open(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the session table.
func New(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&models.WateringSession{}); err != nil {
		return nil, fmt.Errorf("migrate watering sessions: %w", err)
	}
	return &Repository{db: db}, nil
}

// SaveStates upserts the given states, keyed by plant id.
func (r *Repository) SaveStates(states map[int64]models.WateringState) error {
	if len(states) == 0 {
		return nil
	}
	rows := make([]models.WateringSession, 0, len(states))
	for id, st := range states {
		rows = append(rows, toRecord(id, st))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].PlantID < rows[j].PlantID })

	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plant_id"}},
		UpdateAll: true,
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save watering sessions: %w", err)
	}
	return nil
}

// Load returns every persisted state.
func (r *Repository) Load() (map[int64]models.WateringState, error) {
	var rows []models.WateringSession
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load watering sessions: %w", err)
	}
	states := make(map[int64]models.WateringState, len(rows))
	for _, row := range rows {
		states[row.PlantID] = fromRecord(row)
	}
	return states, nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(id int64, st models.WateringState) models.WateringSession {
	st = st.Normalized()
	return models.WateringSession{
		PlantID:             id,
		PlantName:           st.CurrentPlantName,
		Mode:                st.Mode,
		IsWateringActive:    st.IsWateringActive,
		TimerStartAt:        st.TimerStartAt,
		TimerEndAt:          st.TimerEndAt,
		SelectedDurationMin: st.SelectedDurationMin,
		SessionID:           st.SessionID,
		ScheduledRunMode:    st.ScheduledRunMode,
		IsBlocked:           st.IsBlocked,
	}
}

// fromRecord restores a state. Pending requests are not persisted: after a
// restart nobody is waiting for their answer, so a pending row comes back idle.
func fromRecord(row models.WateringSession) models.WateringState {
	st := models.IdleState()
	st.IsBlocked = row.IsBlocked
	st.CurrentPlantName = row.PlantName

	switch row.Mode {
	case models.ModeManual:
		if row.TimerEndAt == nil {
			return st
		}
		st.Mode = models.ModeManual
		st.IsWateringActive = true
		st.TimerStartAt = row.TimerStartAt
		st.TimerEndAt = row.TimerEndAt
		st.SelectedDurationMin = row.SelectedDurationMin
		st.ScheduledRunMode = row.ScheduledRunMode
	case models.ModeSmart:
		st.Mode = models.ModeSmart
		st.IsWateringActive = true
		st.SessionID = row.SessionID
		st.ScheduledRunMode = row.ScheduledRunMode
	}
	return st
}
