// Package ws implements the push channel over a WebSocket connection.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/prite36/irrigation-remote/internal/channel"
	"github.com/prite36/irrigation-remote/internal/protocol"
)

const (
	writeTimeout         = 5 * time.Second
	defaultRetryInterval = 5 * time.Second
)

// ErrNotConnected is returned by Send while no connection is open.
var ErrNotConnected = errors.New("websocket not connected")

// Options configures the WebSocket push channel.
type Options struct {
	URL           string
	Token         string
	RetryInterval time.Duration
}

// Client is a channel.Adapter over a single WebSocket connection that is
// redialed by Run until its context ends.
type Client struct {
	channel.Registry

	opts      Options
	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	done      chan struct{}
	cancel    context.CancelFunc
}

func NewClient(o Options) *Client {
	if o.RetryInterval <= 0 {
		o.RetryInterval = defaultRetryInterval
	}
	return &Client{opts: o, done: make(chan struct{})}
}

// Start runs the connection loop in the background.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go func() {
		defer close(c.done)
		c.Run(ctx)
	}()
}

// Run dials, reads until the connection drops and redials after
// RetryInterval. It returns when ctx is done.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[WARN] WebSocket session ended: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.RetryInterval):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, _, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer conn.CloseNow()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	defer func() {
		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	log.Printf("Connected to %s", c.opts.URL)
	go c.Connected()

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read websocket: %w", err)
		}
		if _, err := c.Dispatch(frame); err != nil {
			log.Printf("[WARN] Dropping websocket frame: %v", err)
		}
	}
}

// Send writes a command frame to the open connection.
func (c *Client) Send(cmd protocol.Command) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, requestID, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("write %s: %w", cmd.Type(), err)
	}
	log.Printf("Sent %s (request %s)", cmd.Type(), requestID)
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Close stops the connection loop and closes the socket.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client shutting down")
	}
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}
