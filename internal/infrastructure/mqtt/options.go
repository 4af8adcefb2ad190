package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/inkframe/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when config leaves connect_timeout unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultInboxSize is used when config leaves inbox_size unset.
	defaultInboxSize = 64

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from Inkframe config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - A stable client ID, which keys the broker-side session
//   - Authentication credentials (if provided)
//   - Persistent session when durable_session is set, so commands published
//     while the frame sleeps are queued by the broker
//   - In-order delivery with manual acknowledgement
//   - TLS configuration (if enabled)
//
// The initial connection is not retried: a battery cycle that cannot reach
// the broker should give up quickly rather than burn its wake window.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(!cfg.DurableSession)

	// Messages are handed to the inbox one at a time in arrival order and only
	// acknowledged once the caller has dispatched them.
	opts.SetOrderMatters(true)
	opts.SetAutoAckDisabled(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	opts.SetConnectTimeout(connectTimeout(cfg))
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

func connectTimeout(cfg config.MQTTConfig) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return time.Duration(cfg.ConnectTimeout) * time.Second
	}
	return defaultConnectTimeout
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes the will if the frame drops off without a clean
// disconnect. A battery frame that shuts down after Close never triggers it.
//
// Topic: inkframe/<client_id>/status
// QoS: 1
// Retained: true (new subscribers see last status)
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(Topics{}.Status(clientID), buildStatusPayload(clientID, "offline", "unexpected_disconnect"), 1, true)
}

// buildStatusPayload creates the JSON payload for status messages.
// reason is omitted when empty.
func buildStatusPayload(clientID, status, reason string) string {
	ts := time.Now().UTC().Format(time.RFC3339)
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`, status, clientID, ts)
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`, status, clientID, reason, ts)
}
