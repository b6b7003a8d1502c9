package main

import (
	"log"

	"github.com/prite36/irrigation-remote/internal/config"
	"github.com/prite36/irrigation-remote/internal/service"
)

func main() {
	log.Println("Starting application...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := service.NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Start(); err != nil {
		log.Fatalf("Application stopped with error: %v", err)
	}
	log.Println("Application shut down.")
}
