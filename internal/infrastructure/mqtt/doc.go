// Package mqtt provides the frame's MQTT message channel.
//
// This package manages:
//   - A durable (persistent) broker session keyed on a stable client ID, so
//     commands published while the frame is asleep are queued by the broker
//   - A bounded inbox fed by the default publish handler, delivered in order
//   - Manual acknowledgement: a delivery is acked only after it was handled
//   - Backlog tracking: whether the broker is still flushing the queued session
//   - Last Will and Testament (LWT) plus retained online/offline status
//
// # Battery cycles
//
// A battery-powered frame connects, drains whatever the broker queued, and
// disconnects again within seconds. Subscribing at QoS 1 or 2 with
// CleanSession=false is what makes the broker hold messages between wakes.
// Deliveries that were never acked (the frame lost power mid-handling) are
// redelivered next time, so handlers must be idempotent.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	for {
//	    d, ok, err := client.ReceiveWithTimeout(ctx, 30*time.Second)
//	    if err != nil || !ok {
//	        break
//	    }
//	    handle(d.Payload)
//	    d.Ack()
//	}
package mqtt
