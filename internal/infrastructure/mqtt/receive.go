package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Delivery is one publish received on a command topic.
//
// It must be acknowledged with Ack once it has been handled; until then the
// broker considers it in flight and will redeliver it to the next session.
type Delivery struct {
	Topic   string
	Payload []byte
	QoS     byte

	// Duplicate is the MQTT DUP flag (the broker is redelivering).
	Duplicate bool

	// Backlog is true when the delivery arrived while the broker was still
	// flushing a resumed session.
	Backlog bool

	ack func()
}

// NewDelivery builds a Delivery whose Ack calls ack at most once.
// Used by alternative channels and tests.
func NewDelivery(topic string, payload []byte, backlog bool, ack func()) Delivery {
	return Delivery{
		Topic:   topic,
		Payload: payload,
		Backlog: backlog,
		ack:     onceFunc(ack),
	}
}

// Ack releases the delivery at the broker. Safe to call more than once.
func (d Delivery) Ack() {
	if d.ack != nil {
		d.ack()
	}
}

func onceFunc(f func()) func() {
	if f == nil {
		return nil
	}
	var once sync.Once
	return func() { once.Do(f) }
}

// subscribeAll subscribes the configured command topics. The nil callback
// routes matching publishes to the default handler, so backlog flushed before
// the SUBACK and live messages take the same path.
func (c *Client) subscribeAll(ctx context.Context) error {
	qos := byte(c.cfg.SubscribeQoS)
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	for _, topic := range c.cfg.Topics {
		if topic == "" {
			return ErrInvalidTopic
		}
		token := c.client.Subscribe(topic, qos, nil)
		if err := waitToken(ctx, token, defaultPublishTimeout); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
		}
	}
	return nil
}

// handleMessage is the paho default publish handler. With OrderMatters set,
// paho calls it sequentially, so deliveries enter the inbox in arrival order.
// A full inbox applies backpressure to the broker connection.
func (c *Client) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	d := Delivery{
		Topic:     msg.Topic(),
		Payload:   msg.Payload(),
		QoS:       msg.Qos(),
		Duplicate: msg.Duplicate(),
		Backlog:   c.HasBacklog(),
		ack:       onceFunc(msg.Ack),
	}
	c.touch()

	c.getLogger().Debug("mqtt message received",
		"topic", d.Topic,
		"qos", d.QoS,
		"backlog", d.Backlog,
		"duplicate", d.Duplicate,
	)

	select {
	case c.inbox <- d:
	case <-c.closed:
		// Not acked: the broker redelivers it next session.
	}
}

// ReceiveWithTimeout returns the next delivery.
//
// It blocks until a delivery is available, timeout elapses (ok=false, nil
// error), ctx is cancelled, or the client is closed. timeout <= 0 waits
// without a bound.
func (c *Client) ReceiveWithTimeout(ctx context.Context, timeout time.Duration) (Delivery, bool, error) {
	// Drain the inbox first so a cancelled context never hides a delivery
	// that is already here.
	select {
	case d := <-c.inbox:
		return d, true, nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case d := <-c.inbox:
		return d, true, nil
	case <-expired:
		return Delivery{}, false, nil
	case <-ctx.Done():
		return Delivery{}, false, ctx.Err()
	case <-c.closed:
		return Delivery{}, false, ErrClosed
	}
}

// HasBacklog reports whether the broker is still flushing messages queued for
// a resumed session.
//
// It is true while the session was resumed and either deliveries are waiting
// in the inbox or the last arrival (or the connect itself) is more recent than
// mqtt.backlog_quiet_period. Once it reports false it stays false for the
// life of the client: later arrivals are live traffic.
func (c *Client) HasBacklog() bool {
	if !c.sessionPresent || c.backlogDrained.Load() {
		return false
	}
	if len(c.inbox) > 0 {
		return true
	}

	last := time.Unix(0, c.lastActivity.Load())
	if c.now().Sub(last) < c.quietPeriod {
		return true
	}

	c.backlogDrained.Store(true)
	return false
}
