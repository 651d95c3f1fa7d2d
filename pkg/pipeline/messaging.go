package pipeline

import (
	"time"
)

// Message is the canonical, internal representation of an event flowing from
// the broker to the document store. It contains the core data, metadata, and
// acknowledgment handles.
type Message struct {
	// MessageData contains the core payload.
	MessageData

	// Attributes holds metadata from the message broker. The MQTT consumer
	// stores the originating topic under "mqtt_topic".
	Attributes map[string]string

	// Ack is a function to call to signal that processing was successful.
	Ack func()

	// Nack is a function to call to signal that processing has failed.
	Nack func()
}

// MessageData holds the essential payload of a message.
type MessageData struct {
	// ID is the identifier for the message from the source broker.
	ID string `json:"id"`

	// Payload is the raw byte content of the message.
	Payload []byte `json:"payload"`

	// PublishTime is the timestamp when the message was received from the broker.
	PublishTime time.Time `json:"publishTime"`
}
