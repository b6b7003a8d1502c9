package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prite36/irrigation-remote/internal/config"
	"github.com/prite36/irrigation-remote/internal/models"
)

const (
	discoverInterval = time.Second
	expireInterval   = 5 * time.Second
	fetchTimeout     = 15 * time.Second
)

// Engine is the part of the reconciliation engine driven by periodic jobs.
type Engine interface {
	Discover() int
	ExpirePending() int
	Rehydrate(records []models.PlantRecord)
}

// SnapshotSource returns the full plant list used to resynchronise state.
type SnapshotSource interface {
	FetchPlants(ctx context.Context) ([]models.PlantRecord, error)
}

// Scheduler runs the engine's coarse housekeeping jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       *config.Config
	engine    Engine
	snapshots SnapshotSource
}

// NewScheduler creates a new scheduler instance. snapshots may be nil, in
// which case no periodic resync is scheduled.
func NewScheduler(cfg *config.Config, engine Engine, snapshots SnapshotSource) *Scheduler {
	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		cfg:       cfg,
		engine:    engine,
		snapshots: snapshots,
	}
}

// Start registers the jobs and begins executing them in the background.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(discoverInterval).Do(s.discover); err != nil {
		return fmt.Errorf("failed to schedule timer discovery: %w", err)
	}
	if _, err := s.scheduler.Every(expireInterval).Do(s.expire); err != nil {
		return fmt.Errorf("failed to schedule pending sweep: %w", err)
	}
	if s.snapshots != nil && s.cfg.Engine.ResyncInterval > 0 {
		log.Printf("[INFO] Scheduling snapshot resync every %s", s.cfg.Engine.ResyncInterval)
		_, err := s.scheduler.Every(s.cfg.Engine.ResyncInterval).WaitForSchedule().Do(s.RunResync)
		if err != nil {
			return fmt.Errorf("failed to schedule snapshot resync: %w", err)
		}
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	log.Println("[INFO] Stopping scheduler...")
	s.scheduler.Stop()
}

func (s *Scheduler) discover() {
	if n := s.engine.Discover(); n > 0 {
		log.Printf("[INFO] Countdown started for %d plant(s)", n)
	}
}

func (s *Scheduler) expire() {
	if n := s.engine.ExpirePending(); n > 0 {
		log.Printf("[WARN] Reset %d plant(s) with unanswered requests", n)
	}
}

// RunResync fetches a snapshot and rehydrates the engine from it.
// It can also be called directly, e.g. after the channel reconnects.
func (s *Scheduler) RunResync() {
	if err := s.Resync(context.Background()); err != nil {
		log.Printf("[ERROR] Snapshot resync failed: %v", err)
	}
}

// Resync is RunResync with a caller-supplied context and error.
func (s *Scheduler) Resync(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	records, err := s.snapshots.FetchPlants(ctx)
	if err != nil {
		return fmt.Errorf("fetch plants: %w", err)
	}
	s.engine.Rehydrate(records)
	return nil
}
