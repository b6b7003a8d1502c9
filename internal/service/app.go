package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prite36/irrigation-remote/internal/channel"
	"github.com/prite36/irrigation-remote/internal/config"
	"github.com/prite36/irrigation-remote/internal/engine"
	"github.com/prite36/irrigation-remote/internal/mqtt"
	"github.com/prite36/irrigation-remote/internal/plantapi"
	"github.com/prite36/irrigation-remote/internal/scheduler"
	"github.com/prite36/irrigation-remote/internal/server"
	"github.com/prite36/irrigation-remote/internal/slack"
	"github.com/prite36/irrigation-remote/internal/storage"
	"github.com/prite36/irrigation-remote/internal/ws"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg       *config.Config
	repo      *storage.Repository
	transport channel.Adapter
	connect   func(ctx context.Context)
	slack     *slack.Client
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	server    *http.Server
	cancel    context.CancelFunc
}

// newTransport builds the configured push channel and the function that
// starts it.
func newTransport(cfg *config.Config) (channel.Adapter, func(ctx context.Context), error) {
	switch cfg.Transport {
	case config.TransportMQTT:
		c, err := mqtt.NewClient(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, func(context.Context) { c.Connect() }, nil
	case config.TransportWebSocket:
		c := ws.NewClient(ws.Options{URL: cfg.WebSocket.URL, Token: cfg.WebSocket.Token})
		return c, c.Start, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func NewApp(cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	var persister engine.Persister
	if cfg.Database.Enabled {
		repo, err := storage.Open(cfg.DSN())
		if err != nil {
			return nil, err
		}
		a.repo = repo
		persister = repo
	} else {
		log.Println("[INFO] Database disabled; watering state is kept in memory only")
	}

	transport, connect, err := newTransport(cfg)
	if err != nil {
		a.closeRepo()
		return nil, err
	}
	a.transport, a.connect = transport, connect

	notifiers := engine.MultiNotifier{engine.LogNotifier{}}
	var messenger server.Messenger
	if a.slack = slack.NewClient(cfg.Slack.BotToken, cfg.Slack.ChannelID); a.slack != nil {
		notifiers = append(notifiers, a.slack)
		messenger = a.slack
	}

	a.engine = engine.New(transport, engine.Options{
		Notifier:          notifiers,
		Persister:         persister,
		SuppressionWindow: cfg.Engine.SuppressionWindow,
		PendingTimeout:    cfg.Engine.PendingTimeout,
	})

	if a.repo != nil {
		states, err := a.repo.Load()
		if err != nil {
			a.closeRepo()
			return nil, err
		}
		a.engine.Restore(states)
		log.Printf("[INFO] Restored %d persisted watering sessions", len(states))
	}
	a.engine.Attach()

	var snapshots scheduler.SnapshotSource
	if cfg.API.BaseURL != "" {
		snapshots = plantapi.NewClient(cfg.API.BaseURL, cfg.API.Token)
	} else {
		log.Println("[WARN] API base URL not configured; state will not be resynchronised from snapshots")
	}
	a.scheduler = scheduler.NewScheduler(cfg, a.engine, snapshots)

	// Events missed while disconnected are recovered from a fresh snapshot.
	transport.OnConnect(a.scheduler.RunResync)

	a.server = server.New(cfg, a.engine, transport, messenger)
	return a, nil
}

func (a *App) Start() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.connect(ctx)
	go a.engine.Run(ctx)

	if err := a.scheduler.Start(); err != nil {
		a.Stop()
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Printf("[INFO] Irrigation remote started (transport=%s). Press Ctrl+C to stop.", a.cfg.Transport)

	var err error
	select {
	case <-sigChan:
	case err = <-serverErr:
		log.Printf("[ERROR] HTTP server failed: %v", err)
	}

	a.Stop()
	return err
}

func (a *App) Stop() {
	log.Println("[INFO] Shutting down...")

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(ctx); err != nil {
			log.Printf("[WARN] HTTP server shutdown: %v", err)
		}
		cancel()
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.transport != nil {
		a.transport.Close()
	}

	a.slack.Close()
	a.closeRepo()

	log.Println("[INFO] Irrigation remote stopped")
}

func (a *App) closeRepo() {
	if a.repo == nil {
		return
	}
	if err := a.repo.Close(); err != nil {
		log.Printf("[WARN] Closing database: %v", err)
	}
}
