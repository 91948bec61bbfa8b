package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nativenav/weather-display-system/internal/health"
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("client stopped")
)

type Options struct {
	Broker   string
	Port     int
	ClientID string
	DeviceID string
}

type Client struct {
	client    mqtt.Client
	opts      Options
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Heartbeat is the periodic liveness message of one display.
type Heartbeat struct {
	DeviceID  string              `json:"device_id"`
	BootID    string              `json:"boot_id"`
	Firmware  string              `json:"firmware"`
	Region    string              `json:"region"`
	State     string              `json:"state"`
	Health    health.DeviceHealth `json:"health"`
	Timestamp time.Time           `json:"timestamp"`
}

func HeartbeatTopic(deviceID string) string {
	return fmt.Sprintf("displays/%s/heartbeat", deviceID)
}

func IdentifyTopic(deviceID string) string {
	return fmt.Sprintf("displays/%s/identify", deviceID)
}

func NewClient(opts Options, logger *slog.Logger) *Client {
	logger = logger.With("component", "mqtt")
	c := &Client{
		opts:   opts,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port))
	o.SetClientID(opts.ClientID)

	o.SetCleanSession(true)

	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(5 * time.Second)
	o.SetMaxReconnectInterval(60 * time.Second)

	o.SetKeepAlive(30 * time.Second)
	o.SetPingTimeout(10 * time.Second)

	o.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", opts.Broker, "port", opts.Port)
	})

	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(o)
	return c
}

// Connect waits for the initial connection, respecting ctx and Disconnect.
// Paho keeps retrying in the background while this waits.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

func (c *Client) PublishHeartbeat(hb Heartbeat) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	hb.DeviceID = c.opts.DeviceID
	if hb.Timestamp.IsZero() {
		hb.Timestamp = time.Now()
	}

	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}

	topic := HeartbeatTopic(c.opts.DeviceID)
	token := c.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		c.logger.Error("failed to publish heartbeat", "topic", topic, "error", token.Error())
		return fmt.Errorf("publish heartbeat: %w", token.Error())
	}

	c.logger.Debug("published heartbeat", "topic", topic, "state", hb.State)
	return nil
}

// SubscribeIdentify calls onIdentify for every message on the device's
// identify topic. The payload is ignored.
func (c *Client) SubscribeIdentify(onIdentify func()) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	topic := IdentifyTopic(c.opts.DeviceID)
	token := c.client.Subscribe(topic, 1, func(_ mqtt.Client, _ mqtt.Message) {
		c.logger.Info("identify requested", "topic", topic)
		onIdentify()
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client. Idempotent; after it Connect returns
// ErrStopped.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
