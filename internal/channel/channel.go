// Package channel defines the push channel contract the engine talks through
// and the type-keyed subscription registry shared by all transports.
package channel

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/prite36/irrigation-remote/internal/protocol"
)

// Handler receives the payload of one inbound message.
type Handler func(msgType string, data json.RawMessage)

// Adapter is a connected push channel to the garden controller.
type Adapter interface {
	// Send frames and publishes a command. It does not wait for an answer.
	Send(cmd protocol.Command) error
	// Subscribe registers h for messages of msgType and returns a function
	// removing the subscription.
	Subscribe(msgType string, h Handler) func()
	// IsConnected reports the current connectivity of the channel.
	IsConnected() bool
	// OnConnect registers fn to run after every (re)connect.
	OnConnect(fn func())
	Close()
}

type subscription struct {
	id int
	h  Handler
}

// Registry dispatches inbound frames to handlers keyed by message type.
// The zero value is ready to use.
type Registry struct {
	mu        sync.RWMutex
	nextID    int
	handlers  map[string][]subscription
	onConnect []func()
}

func (r *Registry) Subscribe(msgType string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handlers == nil {
		r.handlers = make(map[string][]subscription)
	}
	r.nextID++
	id := r.nextID
	r.handlers[msgType] = append(r.handlers[msgType], subscription{id: id, h: h})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.handlers[msgType]
		for i, s := range subs {
			if s.id == id {
				r.handlers[msgType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Dispatch parses a wire frame and invokes the handlers registered for its
// type. It returns the number of handlers invoked.
func (r *Registry) Dispatch(frame []byte) (int, error) {
	var env protocol.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return 0, fmt.Errorf("failed to parse frame: %w", err)
	}
	if env.Type == "" {
		return 0, fmt.Errorf("frame without type: %s", frame)
	}

	r.mu.RLock()
	subs := append([]subscription(nil), r.handlers[env.Type]...)
	r.mu.RUnlock()

	if len(subs) == 0 {
		log.Printf("[INFO] No subscriber for message type %s", env.Type)
	}
	for _, s := range subs {
		s.h(env.Type, env.Data)
	}
	return len(subs), nil
}

func (r *Registry) OnConnect(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onConnect = append(r.onConnect, fn)
}

// Connected runs the registered connect hooks.
func (r *Registry) Connected() {
	r.mu.RLock()
	hooks := append([]func(){}, r.onConnect...)
	r.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}
