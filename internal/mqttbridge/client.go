// Package mqttbridge subscribes DeviceTrigger nodes to MQTT topics and
// drives incoming messages into a loaded engine via SetInput, adapted from
// the teacher's internal/mqtt client wrapper.
package mqttbridge

import (
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps the Paho MQTT client with the engine's connect/retry idiom.
type Client struct {
	client paho.Client
	mu     sync.Mutex
}

// BrokerURL returns the MQTT broker URL from env or default.
func BrokerURL() string {
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	return "tcp://localhost:1883"
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(clientID string) *Client {
	opts := paho.NewClientOptions().
		AddBroker(BrokerURL()).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	return &Client{
		client: paho.NewClient(opts),
	}
}

// Connect attempts to connect to the broker. It does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(10 * time.Second) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string { return "mqttbridge: connect timeout" }

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct{ Topic string }

func (e *SubscribeTimeoutError) Error() string { return "mqttbridge: subscribe timeout: " + e.Topic }

// StartWithRetry connects and logs the outcome, never crashing the caller.
func (c *Client) StartWithRetry() bool {
	if err := c.Connect(); err != nil {
		log.Printf("mqttbridge: failed to connect to %s: %v", BrokerURL(), err)
		return false
	}
	log.Printf("mqttbridge: connected to %s", BrokerURL())
	return true
}
