// Package bridge assembles the MQTT-to-search-store pipeline: a transformer
// that routes each message through the mapping table to a destination index,
// a processor that provisions the index on demand and writes the document,
// and a Service tying them to a consumer.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/kestrelworks/mqtt2search/pkg/mapping"
	"github.com/kestrelworks/mqtt2search/pkg/pipeline"
)

// Document is the transformed payload flowing from the broker side of the
// pipeline to the store side: one JSON document bound to its destination index.
type Document struct {
	// Topic is the concrete MQTT topic the message arrived on.
	Topic string
	// Index is the destination index name, date placeholders already resolved.
	Index string
	// Schema is the index body applied if the index has to be created first.
	Schema json.RawMessage
	// Payload is the raw JSON document to write.
	Payload []byte
}

// NewTransformer returns a MessageTransformer that routes an MQTT message to
// its destination index via the mapping table. The index-name template is
// resolved per message so dated indices roll over while the bridge runs.
//
// Unmapped topics and payloads that are not UTF-8 encoded JSON are reported
// as per-message errors; the pipeline logs and Nacks them without stopping.
func NewTransformer(table *mapping.Table) (pipeline.MessageTransformer[Document], error) {
	if table == nil {
		return nil, fmt.Errorf("mapping table cannot be nil")
	}

	return func(_ context.Context, msg *pipeline.Message) (*Document, bool, error) {
		topic := msg.Attributes["mqtt_topic"]
		if topic == "" {
			return nil, false, fmt.Errorf("message %s carries no mqtt_topic attribute", msg.ID)
		}

		entry, ok := table.Lookup(topic)
		if !ok {
			return nil, false, fmt.Errorf("no mapping entry matches topic %q", topic)
		}

		// The JSON scanner admits raw bytes inside string literals, so the
		// encoding has to be checked separately.
		if !utf8.Valid(msg.Payload) {
			return nil, false, fmt.Errorf("payload on topic %q is not valid UTF-8", topic)
		}
		if !json.Valid(msg.Payload) {
			return nil, false, fmt.Errorf("payload on topic %q is not valid JSON", topic)
		}

		return &Document{
			Topic:   topic,
			Index:   entry.ResolvedIndex(time.Now()),
			Schema:  entry.Body,
			Payload: msg.Payload,
		}, false, nil
	}, nil
}
