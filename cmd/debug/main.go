// Command debug fetches one plant snapshot, rehydrates an offline engine
// from it and prints the resulting watering state. No command is sent.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/prite36/irrigation-remote/internal/config"
	"github.com/prite36/irrigation-remote/internal/engine"
	"github.com/prite36/irrigation-remote/internal/plantapi"
	"github.com/prite36/irrigation-remote/internal/scheduler"
	"github.com/prite36/irrigation-remote/internal/storage"
)

type plantState struct {
	Persisted  any `json:"persisted,omitempty"`
	Rehydrated any `json:"rehydrated"`
}

func main() {
	log.Println("Starting debug run...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.API.BaseURL == "" {
		log.Fatal("API_BASE_URL is required for a debug run")
	}

	// No channel: the engine can rehydrate but never sends.
	eng := engine.New(nil, engine.Options{
		SuppressionWindow: cfg.Engine.SuppressionWindow,
		PendingTimeout:    cfg.Engine.PendingTimeout,
	})

	out := make(map[int64]*plantState)
	if cfg.Database.Enabled {
		repo, err := storage.Open(cfg.DSN())
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer repo.Close()

		states, err := repo.Load()
		if err != nil {
			log.Fatalf("Failed to load persisted sessions: %v", err)
		}
		for id, st := range states {
			out[id] = &plantState{Persisted: st}
		}
		eng.Restore(states)
	}

	sched := scheduler.NewScheduler(cfg, eng, plantapi.NewClient(cfg.API.BaseURL, cfg.API.Token))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Println("Executing snapshot resync directly...")
	if err := sched.Resync(ctx); err != nil {
		log.Fatalf("Resync failed: %v", err)
	}
	eng.Discover()
	eng.Tick()

	for _, p := range eng.GetWateringPlants() {
		if out[p.PlantID] == nil {
			out[p.PlantID] = &plantState{}
		}
	}
	for id, ps := range out {
		ps.Rehydrated = eng.GetPlantWateringState(id)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Failed to print state: %v", err)
	}
	log.Println("Debug run finished.")
}
