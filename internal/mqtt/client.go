package mqtt

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/eclipse/paho.mqtt.golang"
	"github.com/prite36/irrigation-remote/internal/channel"
	"github.com/prite36/irrigation-remote/internal/protocol"
)

const publishTimeout = 5 * time.Second

// Options configures the MQTT push channel.
type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Client is a channel.Adapter that publishes commands to <prefix>/commands
// and receives controller events from <prefix>/events.
type Client struct {
	channel.Registry

	client     mqtt.Client
	eventTopic string
	cmdTopic   string
}

// NewClient creates and configures a new MQTT Client. Register hooks and
// subscriptions before calling Connect.
func NewClient(o Options) (*Client, error) {
	if o.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is required")
	}
	prefix := strings.TrimSuffix(o.TopicPrefix, "/")
	if prefix == "" {
		prefix = "garden"
	}
	c := &Client{
		eventTopic: prefix + "/events",
		cmdTopic:   prefix + "/commands",
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetDefaultPublishHandler(c.messageHandler)
	opts.OnConnect = c.connectHandler
	opts.OnConnectionLost = c.connectionLostHandler

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect starts connecting in the background. The client keeps retrying
// until the broker is reachable, so connection errors are only logged.
func (c *Client) Connect() {
	token := c.client.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("[ERROR] Failed to connect to MQTT broker: %v", token.Error())
		}
	}()
}

// connectHandler is called upon every successful connection. Subscriptions
// are renewed here so they survive a reconnect with a clean session.
func (c *Client) connectHandler(client mqtt.Client) {
	log.Println("Connected to MQTT broker")
	if token := client.Subscribe(c.eventTopic, 1, c.messageHandler); token.Wait() && token.Error() != nil {
		log.Printf("[ERROR] Failed to subscribe to %s: %v", c.eventTopic, token.Error())
		return
	}
	log.Printf("Subscribed to topic: %s", c.eventTopic)
	go c.Connected()
}

// connectionLostHandler is called when the connection is lost.
func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.Printf("Connection to MQTT broker lost: %v", err)
}

// messageHandler hands every inbound frame to the subscription registry.
func (c *Client) messageHandler(client mqtt.Client, msg mqtt.Message) {
	log.Printf("Received message: '%s' from topic: %s\n", msg.Payload(), msg.Topic())

	if msg.Topic() != c.eventTopic {
		log.Printf("Ignoring message from unexpected topic: %s", msg.Topic())
		return
	}
	if _, err := c.Dispatch(msg.Payload()); err != nil {
		log.Printf("[WARN] Dropping frame from %s: %v", msg.Topic(), err)
	}
}

// Send publishes a command to the controller.
func (c *Client) Send(cmd protocol.Command) error {
	frame, requestID, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}

	token := c.client.Publish(c.cmdTopic, 1, false, frame)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timeout publishing to topic %s", c.cmdTopic)
	}
	if token.Error() != nil {
		return fmt.Errorf("error publishing to topic %s: %w", c.cmdTopic, token.Error())
	}

	log.Printf("Published %s (request %s) to topic '%s'\n", cmd.Type(), requestID, c.cmdTopic)
	return nil
}

func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// Close disconnects the MQTT client.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Disconnect(250)
	}
}
