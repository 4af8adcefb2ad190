package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/inkframe/internal/infrastructure/config"
)

// Client is the frame's MQTT message channel.
//
// It wraps paho.mqtt.golang with a durable session, routes every received
// publish (including backlog the broker flushes before SUBSCRIBE completes)
// into a bounded inbox, and tracks whether that backlog is still arriving.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Deliveries are handed out in arrival order; callers should consume them
//     from a single goroutine to keep that order.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	inbox     chan Delivery
	closed    chan struct{}
	closeOnce sync.Once

	// sessionPresent is the CONNACK flag of the initial connection.
	sessionPresent bool

	// lastActivity is the unix-nano time of the last arrival (or of connect).
	lastActivity atomic.Int64
	// backlogDrained latches once HasBacklog has reported false.
	backlogDrained atomic.Bool
	quietPeriod    time.Duration

	// subscribed is set after the configured topics were first subscribed,
	// so reconnects can restore them.
	subscribed atomic.Bool

	connected bool
	connMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	now func() time.Time
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// newClient builds an unconnected Client. Connect wires it to paho.
func newClient(cfg config.MQTTConfig, logger Logger) *Client {
	size := cfg.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Client{
		cfg:         cfg,
		inbox:       make(chan Delivery, size),
		closed:      make(chan struct{}),
		quietPeriod: time.Duration(cfg.BacklogQuietPeriod) * time.Millisecond,
		logger:      logger,
		now:         time.Now,
	}
	c.touch()
	return c
}

// Connect establishes the durable MQTT session and subscribes the configured
// command topics.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS, session)
//  2. Configures Last Will and Testament (LWT) on the device status topic
//  3. Installs the default publish handler feeding the inbox
//  4. Connects, bounded by ctx and mqtt.connect_timeout
//  5. Records whether the broker resumed an existing session
//  6. Subscribes cfg.Topics at cfg.SubscribeQoS and publishes online status
//
// Parameters:
//   - ctx: Bounds the connection attempt
//   - cfg: MQTT configuration
//   - logger: Optional logger (nil for none)
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: Wrapping ErrConnectionFailed if the broker cannot be reached
func Connect(ctx context.Context, cfg config.MQTTConfig, logger Logger) (*Client, error) {
	c := newClient(cfg, logger)

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	opts.SetDefaultPublishHandler(c.handleMessage)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if err := waitToken(ctx, token, connectTimeout(cfg)); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		c.sessionPresent = ct.SessionPresent()
	}

	// The OnConnectHandler runs asynchronously; mark connected here so the
	// subscribe below does not race it.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()
	c.touch()

	if err := c.subscribeAll(ctx); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	c.subscribed.Store(true)

	c.publishStatus("online", "")

	c.getLogger().Info("mqtt session established",
		"client_id", cfg.Broker.ClientID,
		"session_present", c.sessionPresent,
		"topics", cfg.Topics,
	)

	return c, nil
}

// waitToken waits for a paho token, bounded by ctx and timeout.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleConnect is called by paho on every (re)connection.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	if !c.subscribed.Load() {
		return
	}

	// Reconnect: a durable session keeps subscriptions on the broker, but a
	// broker restart without persistence loses them.
	for _, topic := range c.cfg.Topics {
		c.client.Subscribe(topic, byte(c.cfg.SubscribeQoS), nil)
	}
	c.publishStatus("online", "")
	c.getLogger().Info("mqtt reconnected")
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.getLogger().Warn("mqtt connection lost", "error", err)
}

// publishStatus publishes the retained device status. Best effort.
func (c *Client) publishStatus(status, reason string) {
	topic := Topics{}.Status(c.cfg.Broker.ClientID)
	payload := buildStatusPayload(c.cfg.Broker.ClientID, status, reason)
	token := c.client.Publish(topic, 1, true, payload)
	token.WaitTimeout(defaultPublishTimeout)
}

// Close publishes a graceful offline status and disconnects.
//
// Deliveries that were received but never acknowledged are redelivered by the
// broker on the next session. Close is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.closed != nil {
			close(c.closed)
		}
		if c.client == nil {
			return
		}

		if c.IsConnected() {
			c.publishStatus("offline", "graceful_shutdown")
		}

		c.client.Disconnect(defaultDisconnectQuiesce)

		c.connMu.Lock()
		c.connected = false
		c.connMu.Unlock()
	})
	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SessionPresent reports whether the broker resumed an existing session on connect.
func (c *Client) SessionPresent() bool {
	return c.sessionPresent
}

// SetLogger replaces the logger. nil restores the no-op logger.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// touch records activity for backlog tracking.
func (c *Client) touch() {
	c.lastActivity.Store(c.now().UnixNano())
}
