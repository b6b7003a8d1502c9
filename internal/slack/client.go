package slack

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/prite36/irrigation-remote/internal/engine"
)

const queueSize = 64

// Client wraps the slack client and posts watering notifications to one
// channel. A nil *Client is valid and drops everything.
type Client struct {
	api       *slack.Client
	channelID string

	mu           sync.Mutex
	backoffUntil time.Time
	now          func() time.Time

	queue chan slack.MsgOption
	done  chan struct{}
	once  sync.Once
}

// NewClient creates a new slack client
func NewClient(token, channelID string) *Client {
	if token == "" || channelID == "" {
		log.Println("[WARN] Slack token or channel ID is not configured. Slack notifications will be disabled.")
		return nil
	}
	return newClient(slack.New(token), channelID)
}

func newClient(api *slack.Client, channelID string) *Client {
	c := &Client{
		api:       api,
		channelID: channelID,
		now:       time.Now,
		queue:     make(chan slack.MsgOption, queueSize),
		done:      make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Client) run() {
	defer close(c.done)
	for msg := range c.queue {
		c.SendRichMessage(msg)
	}
}

// Notify queues a watering notification. It never blocks the caller; when
// the queue is full the notification is dropped.
func (c *Client) Notify(n engine.Notification) {
	if c == nil || c.api == nil {
		return
	}
	select {
	case c.queue <- NewNotificationMessage(n):
	default:
		log.Printf("[WARN] Slack queue full, dropping notification %q for plant %d", n.Title, n.PlantID)
	}
}

// SendMessage sends a simple text message wrapped as an info block.
func (c *Client) SendMessage(message string) {
	if c == nil || c.api == nil {
		return
	}
	c.SendRichMessage(NewInfoMessage("Garden", message))
}

// SendRichMessage sends a message using block kit options with rate limit handling.
func (c *Client) SendRichMessage(options slack.MsgOption) {
	if c == nil || c.api == nil {
		return
	}

	if c.IsRateLimited() {
		log.Printf("[WARN] Skipping Slack message due to rate limit backoff (remaining: %v)", c.remaining())
		return
	}

	_, _, err := c.api.PostMessage(c.channelID, options)
	if err != nil {
		if c.isRateLimitError(err) {
			c.handleRateLimit(err)
		} else {
			log.Printf("[ERROR] Failed to send rich Slack message: %v", err)
		}
	}
}

// isRateLimitError checks if the error is related to rate limiting
func (c *Client) isRateLimitError(err error) bool {
	var limited *slack.RateLimitedError
	if errors.As(err, &limited) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate_limited") ||
		strings.Contains(errStr, "ratelimited") ||
		strings.Contains(errStr, "message_limit_exceeded") ||
		strings.Contains(errStr, "too_many_requests")
}

// handleRateLimit suppresses messages for a while after a rate limit error.
func (c *Client) handleRateLimit(err error) {
	backoffDuration := 1 * time.Minute

	var limited *slack.RateLimitedError
	switch {
	case errors.As(err, &limited) && limited.RetryAfter > 0:
		backoffDuration = limited.RetryAfter
	case strings.Contains(strings.ToLower(err.Error()), "message_limit_exceeded"):
		backoffDuration = 5 * time.Minute
	}

	c.mu.Lock()
	c.backoffUntil = c.clock().Add(backoffDuration)
	c.mu.Unlock()
	log.Printf("[WARN] Slack rate limit detected (%v). Messages will be suppressed for %v", err, backoffDuration)
}

// IsRateLimited returns true if the client is currently in a rate limit backoff period
func (c *Client) IsRateLimited() bool {
	return c.remaining() > 0
}

func (c *Client) remaining() time.Duration {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backoffUntil.IsZero() {
		return 0
	}
	left := c.backoffUntil.Sub(c.clock())
	if left <= 0 {
		c.backoffUntil = time.Time{}
		return 0
	}
	return left
}

func (c *Client) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// Close stops the delivery goroutine after the queued messages are sent.
func (c *Client) Close() {
	if c == nil || c.queue == nil {
		return
	}
	c.once.Do(func() {
		close(c.queue)
		<-c.done
	})
}
