package server

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/rs/cors"

	"github.com/prite36/irrigation-remote/internal/config"
	"github.com/prite36/irrigation-remote/internal/engine"
	"github.com/prite36/irrigation-remote/internal/models"
)

// Controller is the engine surface driven by the HTTP API.
type Controller interface {
	StartManual(plant models.Plant, minutes float64) error
	StartSmart(plant models.Plant) error
	Stop(plantID int64) error
	RestartValve(plant models.Plant) error
	GetPlantWateringState(plantID int64) models.WateringState
	GetWateringPlants() []engine.PlantWatering
	IsAnyPlantWatering() bool
	PlantName(plantID int64) string
}

// Connectivity reports whether the push channel is up.
type Connectivity interface {
	IsConnected() bool
}

// Messenger posts a plain message to the team channel.
type Messenger interface {
	SendMessage(message string)
}

type StatusResponse struct {
	Environment string `json:"environment"`
	Status      string `json:"status"`
	Connected   bool   `json:"connected"`
	Watering    bool   `json:"watering"`
}

// NewHandler builds the routes. msg may be nil.
func NewHandler(cfg *config.Config, ctl Controller, ch Connectivity, msg Messenger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		env := os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
		}
		response := StatusResponse{
			Environment: env,
			Status:      "ok",
			Connected:   ch != nil && ch.IsConnected(),
			Watering:    ctl.IsAnyPlantWatering(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	})

	mux.HandleFunc("GET /api/v1/plants/{id}/state", PlantStateHandler(ctl))
	mux.HandleFunc("GET /api/v1/watering", WateringHandler(ctl))
	mux.HandleFunc("POST /api/v1/plants/{id}/manual", ManualHandler(ctl))
	mux.HandleFunc("POST /api/v1/plants/{id}/smart", SmartHandler(ctl))
	mux.HandleFunc("POST /api/v1/plants/{id}/stop", StopHandler(ctl))
	mux.HandleFunc("POST /api/v1/plants/{id}/restart", RestartHandler(ctl))

	if cfg.Slack.SigningSecret != "" {
		mux.HandleFunc("POST /slack/commands", SlackCommandHandler(cfg, ctl))
		mux.HandleFunc("POST /slack/events", SlackEventsHandler(cfg, ctl, msg))
	} else {
		log.Println("[WARN] Slack signing secret not configured; Slack endpoints disabled")
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: false,
	})
	return c.Handler(mux)
}

// New creates a new HTTP server and sets up the routes.
func New(cfg *config.Config, ctl Controller, ch Connectivity, msg Messenger) *http.Server {
	log.Printf("[INFO] API Server configured to listen on %s", cfg.Server.Addr)
	return &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: NewHandler(cfg, ctl, ch, msg),
	}
}
