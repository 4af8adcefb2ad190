package mqtt

import "fmt"

// TopicPrefix is the base for every topic the frame owns.
const TopicPrefix = "inkframe"

// Topics provides builders for Inkframe MQTT topics.
// Command, battery and preview topics come from configuration; only the
// status topic is derived from the client ID.
type Topics struct{}

// Status returns the retained online/offline topic for a device (also the LWT topic).
//
// Example: inkframe/frame-kitchen/status
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, clientID)
}
