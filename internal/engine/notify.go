package engine

import (
	"log"

	"github.com/prite36/irrigation-remote/internal/models"
)

// Level classifies a user-facing notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-facing message about a terminal outcome.
type Notification struct {
	PlantID   int64
	PlantName string
	Event     string
	Level     Level
	Title     string
	Message   string
}

// Notifier delivers notifications. Implementations must not call back into
// the Engine synchronously.
type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// MultiNotifier fans a notification out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(n Notification) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}

// LogNotifier writes notifications to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notification) {
	log.Printf("[INFO] Notification (%s) plant %d %q: %s - %s", n.Level, n.PlantID, n.PlantName, n.Title, n.Message)
}

// Persister stores the states of plants that changed.
type Persister interface {
	SaveStates(states map[int64]models.WateringState) error
}
