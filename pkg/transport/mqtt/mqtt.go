// Package mqtt provides the gateway's MQTT transport: a paho client
// that feeds inbound command envelopes into a channel and publishes
// responses back to the topic each command arrived on.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/logger"
	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/metrics"
)

// ErrNotConnected is returned when a publish is attempted without a
// broker session.
var ErrNotConnected = errors.New("not connected")

// Message is one inbound transport message. Topic is kept so the
// bridge can publish the response to the same topic the command
// arrived on.
type Message struct {
	Topic   string
	Payload []byte
}

// Config holds MQTT client configuration.
type Config struct {
	// Broker is the broker URI (e.g., tcp://localhost:1883).
	Broker string `yaml:"broker" json:"broker" validate:"required"`

	// ClientID is the MQTT client identifier.
	ClientID string `yaml:"client_id" json:"client_id"`

	// Username and Password authenticate against the broker.
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`

	// Topic is the command topic to subscribe to. Empty means the
	// default device pattern (see TopicFor).
	Topic string `yaml:"topic" json:"topic"`

	// QOS is the delivery level for both directions (0, 1, 2).
	QOS int `yaml:"qos" json:"qos" validate:"gte=0,lte=2"`

	// ConnectTimeout bounds the initial broker connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`

	// TLS enables an encrypted broker connection.
	TLS *TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig holds the optional TLS settings.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	CertFile           string `yaml:"cert_file" json:"cert_file"`
	KeyFile            string `yaml:"key_file" json:"key_file"`
	CAFile             string `yaml:"ca_file" json:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// DefaultConfig returns a default MQTT configuration. QoS 2 matches
// the exactly-once delivery the gateway's command channel expects.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       fmt.Sprintf("mbgate-%d", time.Now().Unix()),
		QOS:            2,
		ConnectTimeout: 10 * time.Second,
	}
}

// TopicFor returns the command topic pattern for a device name: any
// requester prefix, fixed device segment, fixed "mbnet" suffix.
func TopicFor(device string) string {
	return fmt.Sprintf("+/%s/mbnet", device)
}

// Client wraps a paho MQTT client. Inbound messages are buffered in a
// channel drained by a single consumer.
type Client struct {
	mu sync.RWMutex

	config Config
	log    *logger.Logger

	client      paho.Client
	connectedAt *time.Time
	lastError   error

	inbound chan Message
}

// NewClient creates an MQTT client from config. The log may be nil.
func NewClient(config Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		config:  config,
		log:     log.Component("mqtt"),
		inbound: make(chan Message, 100),
	}
}

// Connect establishes the broker session and subscribes to the command
// topic. Reconnects and resubscribes are handled by paho; the method
// returns once the first connection attempt settles or ctx expires.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		return nil
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetAutoReconnect(true)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	if c.config.TLS != nil && c.config.TLS.Enabled {
		tlsConfig, err := c.tlsConfig(c.config.TLS)
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client paho.Client) {
		now := time.Now()
		c.mu.Lock()
		c.connectedAt = &now
		c.mu.Unlock()
		metrics.TransportConnected.Set(1)

		topic := c.config.Topic
		c.log.Info("connected, subscribing", "broker", c.config.Broker, "topic", topic, "qos", c.config.QOS)
		token := client.Subscribe(topic, byte(c.config.QOS), c.handleMessage)
		if token.Wait() && token.Error() != nil {
			c.log.Error("subscribe failed", "topic", topic, "error", token.Error())
		}
	})

	opts.SetConnectionLostHandler(func(client paho.Client, err error) {
		c.mu.Lock()
		c.lastError = err
		c.connectedAt = nil
		c.mu.Unlock()
		metrics.TransportConnected.Set(0)
		c.log.Warn("connection lost", "error", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()

	finished := make(chan struct{})
	go func() {
		token.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		if err := token.Error(); err != nil {
			c.lastError = err
			return err
		}
	case <-ctx.Done():
		// Abandon the attempt: without this the paho client keeps
		// dialing (auto-reconnect) with nobody holding a reference.
		client.Disconnect(0)
		return ctx.Err()
	}

	c.client = client
	return nil
}

// handleMessage pushes one broker delivery into the inbound channel.
// Dropping on a full channel keeps the paho router from blocking; the
// counter makes the loss visible.
func (c *Client) handleMessage(_ paho.Client, msg paho.Message) {
	select {
	case c.inbound <- Message{Topic: msg.Topic(), Payload: msg.Payload()}:
	default:
		c.log.Warn("inbound queue full, dropping message", "topic", msg.Topic())
		metrics.IncDropped(metrics.DropQueueFull)
	}
}

// Inbound returns the channel of received command messages.
func (c *Client) Inbound() <-chan Message {
	return c.inbound
}

// Publish sends payload to topic at the configured QoS, bounded by ctx.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.RLock()
	client := c.client
	qos := byte(c.config.QOS)
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, false, payload)

	finished := make(chan struct{})
	go func() {
		token.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		if err := token.Error(); err != nil {
			c.mu.Lock()
			c.lastError = err
			c.mu.Unlock()
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected reports whether the broker session is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnected()
}

// Info summarizes the connection for the status API.
type Info struct {
	Broker      string     `json:"broker"`
	Topic       string     `json:"topic"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Info returns the current connection summary.
func (c *Client) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := Info{
		Broker:      c.config.Broker,
		Topic:       c.config.Topic,
		Connected:   c.client != nil && c.client.IsConnected(),
		ConnectedAt: c.connectedAt,
	}
	if c.lastError != nil {
		info.LastError = c.lastError.Error()
	}
	return info
}

// Close tears down the broker session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
	c.client = nil
	c.connectedAt = nil
	metrics.TransportConnected.Set(0)
	return nil
}

// tlsConfig builds a tls.Config from the TLS settings.
func (c *Client) tlsConfig(config *TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: config.InsecureSkipVerify,
	}

	if config.CertFile != "" && config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if config.CAFile != "" {
		caCert, err := os.ReadFile(config.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caCert); !ok {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
